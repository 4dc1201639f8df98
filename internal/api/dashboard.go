package api

import (
	"net/http"
	"strings"

	"github.com/nwehbe/waterops/internal/storage"
)

// handleDashboard returns the back-office overview counts.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if _, ok := s.authorize(w, r, "dashboard", "read"); !ok {
		return
	}

	ctx := r.Context()
	customers, err := s.storage.ListCustomers(ctx)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	tanks, err := s.storage.ListTanks(ctx)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	cities, err := s.storage.ListCities(ctx)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	bills, err := s.storage.ListBills(ctx)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}

	unpaid := 0
	for _, b := range bills {
		if b.Status == storage.BillUnpaid {
			unpaid++
		}
	}

	out := map[string]any{
		"customers":    len(customers),
		"tanks":        len(tanks),
		"cities":       len(cities),
		"bills":        len(bills),
		"unpaid_bills": unpaid,
	}
	if mt, err := s.storage.GetMainTank(ctx); err == nil && mt != nil {
		out["reservoir_level"] = mt.CurrentLevel
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleSearch finds customers by name, email, phone or identity number.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if _, ok := s.authorize(w, r, "search", "read"); !ok {
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.error(w, r, http.StatusBadRequest, "q is required")
		return
	}

	customers, err := s.storage.SearchCustomers(r.Context(), q)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"customers": customers,
	})
}
