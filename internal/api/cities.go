package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nwehbe/waterops/internal/storage"
)

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createCity(w, r)
	case http.MethodGet:
		s.listCities(w, r)
	default:
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// titleCase normalizes a city name so "beit mery" and "Beit Mery" are the
// same service area.
func titleCase(name string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func (s *Server) createCity(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, "cities", "write"); !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := titleCase(req.Name)
	if name == "" {
		s.error(w, r, http.StatusBadRequest, "name is required")
		return
	}

	existing, err := s.storage.GetCityByName(r.Context(), name)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if existing != nil {
		s.error(w, r, http.StatusConflict, "city already exists")
		return
	}

	now := time.Now()
	c := storage.City{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.CreateCity(r.Context(), c); err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listCities(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, "cities", "read"); !ok {
		return
	}
	cities, err := s.storage.ListCities(r.Context())
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, cities)
}
