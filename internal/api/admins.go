package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nwehbe/waterops/internal/auth"
	"github.com/nwehbe/waterops/internal/storage"
)

func (s *Server) handleAdmins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createAdmin(w, r)
	case http.MethodGet:
		s.listAdmins(w, r)
	default:
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// createAdmin provisions an operator account with a generated temporary
// password. The password is returned once in the response and mailed to the
// new operator when email is configured.
func (s *Server) createAdmin(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, "admins", "write"); !ok {
		return
	}

	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" {
		s.error(w, r, http.StatusBadRequest, "name and email are required")
		return
	}
	role := req.Role
	if role == "" {
		role = auth.RoleManager
	}
	if role != auth.RoleAdmin && role != auth.RoleManager {
		s.error(w, r, http.StatusBadRequest, "role must be admin or manager")
		return
	}

	existing, err := s.storage.GetAdminByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if existing != nil {
		s.error(w, r, http.StatusConflict, "admin already exists")
		return
	}

	tempPassword := uuid.New().String()[:12]
	hash, err := auth.HashPassword(tempPassword)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}

	now := time.Now()
	a := storage.Admin{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.storage.CreateAdmin(r.Context(), a); err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}

	if s.mailer != nil {
		body := fmt.Sprintf("<p>Dear %s,</p><p>Your operator account has been created. "+
			"Temporary password: <b>%s</b></p>", a.Name, tempPassword)
		if err := s.mailer.Send(a.Email, "Your operator account", body); err != nil {
			log.Printf("api: operator welcome email to %s failed: %v", a.Email, err)
		}
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"admin":         a,
		"temp_password": tempPassword,
	})
}

func (s *Server) listAdmins(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, "admins", "read"); !ok {
		return
	}
	admins, err := s.storage.ListAdmins(r.Context())
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, admins)
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	a, token, err := s.auth.LoginAdmin(r.Context(), strings.ToLower(req.Email), req.Password)
	if err != nil {
		s.error(w, r, http.StatusUnauthorized, "invalid email or password")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"admin": a,
	})
}

// handleLogout revokes the caller's bearer token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.authOn {
		w.WriteHeader(http.StatusOK)
		return
	}

	header := r.Header.Get("Authorization")
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		s.error(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := s.auth.Logout(r.Context(), parts[1]); err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	w.WriteHeader(http.StatusOK)
}
