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

type createCustomerRequest struct {
	IdentityNumber string `json:"identity_number"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
}

func validIdentityNumber(s string) bool {
	if len(s) != 9 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createCustomer(w, r)
	case http.MethodGet:
		s.listCustomers(w, r)
	default:
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// createCustomer registers a household account. The initial password is the
// identity number; customers are expected to change it after first login.
func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, "customers", "write"); !ok {
		return
	}

	var req createCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Phone == "" {
		s.error(w, r, http.StatusBadRequest, "name, email and phone are required")
		return
	}
	if !validIdentityNumber(req.IdentityNumber) {
		s.error(w, r, http.StatusBadRequest, "identity_number must be exactly 9 digits")
		return
	}

	existing, err := s.storage.FindCustomerByAny(r.Context(), req.IdentityNumber, req.Email, req.Phone)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if existing != nil {
		s.error(w, r, http.StatusConflict, "customer already exists")
		return
	}

	hash, err := auth.HashPassword(req.IdentityNumber)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}

	now := time.Now()
	c := storage.Customer{
		ID:             uuid.New().String(),
		IdentityNumber: req.IdentityNumber,
		Name:           req.Name,
		Email:          strings.ToLower(req.Email),
		Phone:          req.Phone,
		PasswordHash:   hash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.storage.CreateCustomer(r.Context(), c); err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}

	if s.mailer != nil {
		body := fmt.Sprintf("<p>Dear %s,</p><p>Your water service account is ready. "+
			"Log in with your email and your identity number as the initial password.</p>", c.Name)
		if err := s.mailer.Send(c.Email, "Welcome to your water service account", body); err != nil {
			log.Printf("api: welcome email to %s failed: %v", c.Email, err)
		}
	}

	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, "customers", "read"); !ok {
		return
	}
	customers, err := s.storage.ListCustomers(r.Context())
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, customers)
}

// handleCustomerByID serves GET /api/v1/customers/{id}. Customers may read
// their own record; staff need the customers permission.
func (s *Server) handleCustomerByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/customers/")
	if id == "" || strings.Contains(id, "/") {
		s.error(w, r, http.StatusNotFound, "Not found")
		return
	}

	token, ok := s.subjectOrFail(w, r)
	if !ok {
		return
	}
	if token != nil && token.Kind == auth.KindCustomer {
		if token.UserID != id {
			s.error(w, r, http.StatusForbidden, "Forbidden")
			return
		}
	} else if _, ok := s.authorize(w, r, "customers", "read"); !ok {
		return
	}

	c, err := s.storage.GetCustomer(r.Context(), id)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if c == nil {
		s.error(w, r, http.StatusNotFound, "customer not found")
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCustomerLogin(w http.ResponseWriter, r *http.Request) {
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

	c, token, err := s.auth.LoginCustomer(r.Context(), strings.ToLower(req.Email), req.Password)
	if err != nil {
		s.error(w, r, http.StatusUnauthorized, "invalid email or password")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"customer": c,
	})
}
