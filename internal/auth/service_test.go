package auth

import (
	"context"
	"testing"
	"time"

	"github.com/nwehbe/waterops/internal/storage"
)

func seedAdmin(t *testing.T, st storage.Storage, email, password, role string) storage.Admin {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	a := storage.Admin{
		ID:           "admin-1",
		Name:         "Op",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	if err := st.CreateAdmin(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestLoginAdminIssuesValidToken(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	svc, err := NewService(st)
	if err != nil {
		t.Fatal(err)
	}
	seedAdmin(t, st, "op@example.com", "s3cret", RoleManager)

	a, raw, err := svc.LoginAdmin(ctx, "op@example.com", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if a.Email != "op@example.com" {
		t.Errorf("admin = %+v", a)
	}

	token, err := svc.ValidateToken(ctx, raw)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if token.UserID != a.ID || token.Kind != KindAdmin || token.Role != RoleManager {
		t.Errorf("token = %+v", token)
	}
}

func TestLoginAdminRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	svc, _ := NewService(st)
	seedAdmin(t, st, "op@example.com", "s3cret", RoleManager)

	if _, _, err := svc.LoginAdmin(ctx, "op@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.LoginAdmin(ctx, "nobody@example.com", "s3cret"); err != ErrInvalidCredentials {
		t.Errorf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	svc, _ := NewService(storage.NewMemory())

	if _, err := svc.ValidateToken(ctx, "not-a-token"); err == nil {
		t.Error("garbage token validated")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	svc, _ := NewService(st)
	seedAdmin(t, st, "op@example.com", "s3cret", RoleAdmin)

	_, raw, err := svc.LoginAdmin(ctx, "op@example.com", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Logout(ctx, raw); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateToken(ctx, raw); err == nil {
		t.Error("token still valid after logout")
	}
}

func TestEnforceRolePolicies(t *testing.T) {
	svc, err := NewService(storage.NewMemory())
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		role, obj, act string
		want           bool
	}{
		{RoleAdmin, "admins", "write", true},
		{RoleAdmin, "anything", "delete", true},
		{RoleManager, "customers", "write", true},
		{RoleManager, "pump", "execute", true},
		{RoleManager, "admins", "write", false},
		{RoleCustomer, "own", "read", true},
		{RoleCustomer, "customers", "read", false},
		{RoleCustomer, "pump", "execute", false},
	}
	for _, c := range cases {
		got, err := svc.Enforce(c.role, c.obj, c.act)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("Enforce(%s, %s, %s) = %v, want %v", c.role, c.obj, c.act, got, c.want)
		}
	}
}

func TestLoginCustomer(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	svc, _ := NewService(st)

	hash, _ := HashPassword("123456789")
	_ = st.CreateCustomer(ctx, storage.Customer{
		ID:             "cust-1",
		IdentityNumber: "123456789",
		Email:          "home@example.com",
		PasswordHash:   hash,
	})

	c, raw, err := svc.LoginCustomer(ctx, "home@example.com", "123456789")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	token, err := svc.ValidateToken(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if token.UserID != c.ID || token.Kind != KindCustomer || token.Role != RoleCustomer {
		t.Errorf("token = %+v", token)
	}
}
