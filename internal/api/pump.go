package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/nwehbe/waterops/internal/pump"
)

// handlePumpWater triggers one pump cycle. Business rejections come back as
// client errors so operators can tell a retryable condition from a hardware
// failure.
func (s *Server) handlePumpWater(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if _, ok := s.authorize(w, r, "pump", "execute"); !ok {
		return
	}

	summary, err := s.dispatcher.RunCycle(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, pump.ErrNoReservoir), errors.Is(err, pump.ErrNoTanks):
			s.error(w, r, http.StatusNotFound, err.Error())
		case errors.Is(err, pump.ErrReservoirEmpty), errors.Is(err, pump.ErrNoEligibleTanks):
			s.error(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, pump.ErrCycleInProgress):
			s.error(w, r, http.StatusConflict, err.Error())
		default:
			log.Printf("api: pump cycle failed: %v", err)
			s.error(w, r, http.StatusBadGateway, "pump cycle failed")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}
