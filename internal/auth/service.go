package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
	"github.com/nwehbe/waterops/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// Subject kinds carried on tokens.
const (
	KindAdmin    = "admin"
	KindCustomer = "customer"
)

// Roles, from most to least privileged.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleCustomer = "customer"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

const tokenTTL = 24 * time.Hour

type Service struct {
	storage  storage.Storage
	enforcer *casbin.Enforcer
}

func NewService(s storage.Storage) (*Service, error) {
	m, err := model.NewModelFromString(`
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m, NewAdapter(s))
	if err != nil {
		return nil, err
	}

	// Default policies. Custom rules loaded from storage come on top.
	e.AddPolicy(RoleAdmin, "*", "*")
	for _, obj := range []string{"customers", "tanks", "cities", "bills"} {
		e.AddPolicy(RoleManager, obj, "read")
		e.AddPolicy(RoleManager, obj, "write")
	}
	e.AddPolicy(RoleManager, "pump", "execute")
	e.AddPolicy(RoleManager, "dashboard", "read")
	e.AddPolicy(RoleManager, "search", "read")
	e.AddPolicy(RoleCustomer, "own", "read")
	e.AddPolicy(RoleCustomer, "own", "write")

	return &Service{storage: s, enforcer: e}, nil
}

// LoginAdmin checks credentials and issues an opaque bearer token.
func (s *Service) LoginAdmin(ctx context.Context, email, password string) (*storage.Admin, string, error) {
	a, err := s.storage.GetAdminByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if a == nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(ctx, a.ID, KindAdmin, a.Role)
	if err != nil {
		return nil, "", err
	}
	return a, token, nil
}

// LoginCustomer checks credentials and issues an opaque bearer token.
func (s *Service) LoginCustomer(ctx context.Context, email, password string) (*storage.Customer, string, error) {
	c, err := s.storage.GetCustomerByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if c == nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(ctx, c.ID, KindCustomer, RoleCustomer)
	if err != nil {
		return nil, "", err
	}
	return c, token, nil
}

func (s *Service) issueToken(ctx context.Context, userID, kind, role string) (string, error) {
	rawToken := uuid.New().String() + uuid.New().String()

	t := storage.Token{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		TokenHash: hashToken(rawToken),
		Role:      role,
		CreatedAt: time.Now(),
	}
	expires := t.CreatedAt.Add(tokenTTL)
	t.ExpiresAt = &expires

	if err := s.storage.CreateToken(ctx, t); err != nil {
		return "", err
	}
	return rawToken, nil
}

// ValidateToken resolves a raw bearer token to its stored record.
func (s *Service) ValidateToken(ctx context.Context, rawToken string) (*storage.Token, error) {
	t, err := s.storage.GetTokenByHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.New("invalid token")
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(time.Now()) {
		return nil, errors.New("token expired")
	}

	go s.storage.UpdateTokenLastUsed(context.Background(), t.ID)

	return t, nil
}

// Logout revokes the token.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	t, err := s.storage.GetTokenByHash(ctx, hashToken(rawToken))
	if err != nil || t == nil {
		return err
	}
	return s.storage.DeleteToken(ctx, t.ID)
}

// Enforce checks whether the role may perform act on obj.
func (s *Service) Enforce(role, obj, act string) (bool, error) {
	return s.enforcer.Enforce(role, obj, act)
}

// HashPassword wraps bcrypt for registration paths.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
