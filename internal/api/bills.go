package api

import (
	"net/http"
	"strings"

	"github.com/nwehbe/waterops/internal/auth"
	"github.com/nwehbe/waterops/internal/billing"
	"github.com/nwehbe/waterops/internal/storage"
)

// billView is a bill plus its derived pricing. Amount stays in liters on the
// record; money is computed on read so a tariff change reprices open bills.
type billView struct {
	storage.Bill
	PriceForLiters float64 `json:"price_for_liters"`
	TotalPrice     float64 `json:"total_price"`
}

func newBillView(b storage.Bill) billView {
	return billView{
		Bill:           b,
		PriceForLiters: billing.PriceForLiters(b.Amount),
		TotalPrice:     billing.TotalPrice(b.Amount),
	}
}

// handleBills lists all bills for staff, or the caller's own bills for
// customer tokens (also selectable with ?mine=1).
func (s *Server) handleBills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token, ok := s.subjectOrFail(w, r)
	if !ok {
		return
	}

	var (
		bills []storage.Bill
		err   error
	)
	if token != nil && (token.Kind == auth.KindCustomer || r.URL.Query().Get("mine") == "1") {
		bills, err = s.storage.ListBillsByCustomer(r.Context(), token.UserID)
	} else {
		if _, ok := s.authorize(w, r, "bills", "read"); !ok {
			return
		}
		bills, err = s.storage.ListBills(r.Context())
	}
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}

	views := make([]billView, 0, len(bills))
	for _, b := range bills {
		views = append(views, newBillView(b))
	}
	s.writeJSON(w, http.StatusOK, views)
}

// handleBillByID serves GET /api/v1/bills/{id} and POST /api/v1/bills/{id}/pay.
func (s *Server) handleBillByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/bills/")
	id, sub := rest, ""
	if i := strings.Index(rest, "/"); i >= 0 {
		id, sub = rest[:i], rest[i+1:]
	}
	if id == "" || (sub != "" && sub != "pay") {
		s.error(w, r, http.StatusNotFound, "Not found")
		return
	}

	bill, err := s.storage.GetBill(r.Context(), id)
	if err != nil {
		s.error(w, r, http.StatusInternalServerError, "Internal error")
		return
	}
	if bill == nil {
		s.error(w, r, http.StatusNotFound, "bill not found")
		return
	}

	token, ok := s.subjectOrFail(w, r)
	if !ok {
		return
	}
	if token != nil && token.Kind == auth.KindCustomer {
		if token.UserID != bill.CustomerID {
			s.error(w, r, http.StatusForbidden, "Forbidden")
			return
		}
	} else if _, ok := s.authorize(w, r, "bills", "read"); !ok {
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.writeJSON(w, http.StatusOK, newBillView(*bill))

	case sub == "pay" && r.Method == http.MethodPost:
		if bill.Status == storage.BillPaid {
			s.error(w, r, http.StatusConflict, "bill already paid")
			return
		}
		if err := s.storage.MarkBillPaid(r.Context(), bill.ID); err != nil {
			s.error(w, r, http.StatusInternalServerError, "Internal error")
			return
		}
		bill.Status = storage.BillPaid
		s.writeJSON(w, http.StatusOK, newBillView(*bill))

	default:
		s.error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
