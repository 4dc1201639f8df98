package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nwehbe/waterops/internal/auth"
	"github.com/nwehbe/waterops/internal/hardware"
	"github.com/nwehbe/waterops/internal/ledger"
	"github.com/nwehbe/waterops/internal/storage"
	"github.com/nwehbe/waterops/internal/tank"
)

// tankView is a tank plus its derived attributes. The derivations are
// computed on read so they always reflect the current inputs.
type tankView struct {
	storage.Tank
	MaxCapacity      float64 `json:"max_capacity"`
	MonthlyAllowance float64 `json:"monthly_capacity"`
	FillRatio        float64 `json:"fill_ratio"`
}

func newTankView(t storage.Tank, now time.Time) tankView {
	maxCap := tank.MaxCapacity(t.Radius, t.Height)
	return tankView{
		Tank:             t,
		MaxCapacity:      maxCap,
		MonthlyAllowance: tank.MonthlyAllowance(t.FamilyMembers, now),
		FillRatio:        tank.FillRatio(t.CurrentLevel, maxCap),
	}
}

func (s *Server) handleTanks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createTank(w, r)
	case http.MethodGet:
		s.listTanks(w, r)
	default:
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type createTankRequest struct {
	CustomerID    string                `json:"customer_id"`
	CityID        string                `json:"city_id"`
	Radius        float64               `json:"radius"`
	Height        float64               `json:"height"`
	FamilyMembers storage.FamilyMembers `json:"family_members"`
	Coordinates   storage.Coordinates   `json:"coordinates"`
	Hardware      storage.TankHardware  `json:"hardware"`
}

func (s *Server) createTank(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, "tanks", "write"); !ok {
		return
	}

	var req createTankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Radius <= 0 || req.Height <= 0 {
		s.error(w, r, http.StatusBadRequest, "radius and height must be positive")
		return
	}
	for _, m := range req.FamilyMembers {
		if m.Name == "" || m.DOB.IsZero() {
			s.error(w, r, http.StatusBadRequest, "family members need a name and date of birth")
			return
		}
		if m.Gender != storage.GenderMale && m.Gender != storage.GenderFemale {
			s.error(w, r, http.StatusBadRequest, "family member gender must be Male or Female")
			return
		}
	}

	customer, err := s.storage.GetCustomer(r.Context(), req.CustomerID)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if customer == nil {
		s.error(w, r, http.StatusBadRequest, "customer not found")
		return
	}
	city, err := s.storage.GetCity(r.Context(), req.CityID)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if city == nil {
		s.error(w, r, http.StatusBadRequest, "city not found")
		return
	}

	now := time.Now()
	t := storage.Tank{
		ID:            uuid.New().String(),
		CustomerID:    req.CustomerID,
		CityID:        req.CityID,
		Radius:        req.Radius,
		Height:        req.Height,
		FamilyMembers: req.FamilyMembers,
		Coordinates:   req.Coordinates,
		Hardware:      req.Hardware,
		Usage:         storage.UsageLedger{Ledger: ledger.New(now.Year(), now.Month())},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.storage.CreateTank(r.Context(), t); err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	s.writeJSON(w, http.StatusCreated, newTankView(t, now))
}

// listTanks returns all tanks for staff, or the caller's own tanks for
// customer tokens (also selectable with ?mine=1).
func (s *Server) listTanks(w http.ResponseWriter, r *http.Request) {
	token, ok := s.subjectOrFail(w, r)
	if !ok {
		return
	}

	var (
		tanks []storage.Tank
		err   error
	)
	if token != nil && (token.Kind == auth.KindCustomer || r.URL.Query().Get("mine") == "1") {
		tanks, err = s.storage.ListTanksByCustomer(r.Context(), token.UserID)
	} else {
		if _, ok := s.authorize(w, r, "tanks", "read"); !ok {
			return
		}
		tanks, err = s.storage.ListTanks(r.Context())
	}
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}

	now := time.Now()
	views := make([]tankView, 0, len(tanks))
	for _, t := range tanks {
		views = append(views, newTankView(t, now))
	}
	s.writeJSON(w, http.StatusOK, views)
}

// handleTankByID serves /api/v1/tanks/{id} and /api/v1/tanks/{id}/volume.
func (s *Server) handleTankByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tanks/")
	id, sub := rest, ""
	if i := strings.Index(rest, "/"); i >= 0 {
		id, sub = rest[:i], rest[i+1:]
	}
	if id == "" || (sub != "" && sub != "volume") {
		s.error(w, r, http.StatusNotFound, "Not found")
		return
	}

	t, err := s.storage.GetTank(r.Context(), id)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if t == nil {
		s.error(w, r, http.StatusNotFound, "tank not found")
		return
	}

	token, ok := s.subjectOrFail(w, r)
	if !ok {
		return
	}
	if token != nil && token.Kind == auth.KindCustomer {
		if token.UserID != t.CustomerID {
			s.error(w, r, http.StatusForbidden, "Forbidden")
			return
		}
	} else if _, ok := s.authorize(w, r, "tanks", "read"); !ok {
		return
	}

	now := time.Now()
	if sub == "volume" {
		maxCap := tank.MaxCapacity(t.Radius, t.Height)
		s.writeJSON(w, http.StatusOK, map[string]any{
			"tank_id":       t.ID,
			"current_level": t.CurrentLevel,
			"max_capacity":  maxCap,
			"fill_ratio":    tank.FillRatio(t.CurrentLevel, maxCap),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, newTankView(*t, now))
}

// handleMainTank reads or replaces the shared reservoir record.
func (s *Server) handleMainTank(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := s.authorize(w, r, "tanks", "read"); !ok {
			return
		}
		mt, err := s.storage.GetMainTank(r.Context())
		if err != nil {
			s.error(w, r, http.StatusInternalServerError, "Internal error")
			return
		}
		if mt == nil {
			s.error(w, r, http.StatusNotFound, "no reservoir found")
			return
		}
		s.writeJSON(w, http.StatusOK, mt)

	case http.MethodPut:
		if _, ok := s.authorize(w, r, "tanks", "write"); !ok {
			return
		}
		var req storage.MainTank
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.error(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Radius <= 0 || req.Height <= 0 {
			s.error(w, r, http.StatusBadRequest, "radius and height must be positive")
			return
		}

		now := time.Now()
		existing, err := s.storage.GetMainTank(r.Context())
		if err != nil {
			s.error(w, r, http.StatusInternalServerError, "Internal error")
			return
		}
		if existing != nil {
			req.ID = existing.ID
			req.CreatedAt = existing.CreatedAt
		} else {
			req.ID = uuid.New().String()
			req.CreatedAt = now
		}
		req.UpdatedAt = now
		if err := s.storage.SaveMainTank(r.Context(), req); err != nil {
			s.error(w, r, http.StatusInternalServerError, "Internal error")
			return
		}
		s.writeJSON(w, http.StatusOK, req)

	default:
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleMainTankVolume re-measures the reservoir through the ultrasonic
// sensor and persists the fresh reading.
func (s *Server) handleMainTankVolume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if _, ok := s.authorize(w, r, "tanks", "read"); !ok {
		return
	}

	mt, err := s.storage.GetMainTank(r.Context())
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if mt == nil {
		s.error(w, r, http.StatusNotFound, "no reservoir found")
		return
	}

	volume, err := s.hw.EstimateVolume(r.Context(), hardware.VolumeRequest{
		Radius:   mt.Radius,
		Height:   mt.Height,
		Hardware: mt.Hardware,
	})
	if err != nil {
		log.Printf("api: reservoir volume read failed: %v", err)
		s.error(w, r, http.StatusBadGateway, "volume read failed")
		return
	}

	mt.CurrentLevel = volume
	mt.UpdatedAt = time.Now()
	if err := s.storage.SaveMainTank(r.Context(), *mt); err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"estimated_volume_liters": volume,
		"max_capacity":            tank.MaxCapacity(mt.Radius, mt.Height),
	})
}
