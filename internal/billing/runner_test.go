package billing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nwehbe/waterops/internal/ledger"
	"github.com/nwehbe/waterops/internal/storage"
)

type recordingNotifier struct {
	messages []string
	users    []string
}

func (n *recordingNotifier) Notify(ctx context.Context, message, userID string) {
	n.messages = append(n.messages, message)
	n.users = append(n.users, userID)
}

var augustNow = time.Date(2026, time.August, 5, 9, 0, 0, 0, time.UTC)

func newTestRunner(st storage.Storage, n Notifier, now time.Time) *Runner {
	r := NewRunner(st, n, nil)
	r.now = func() time.Time { return now }
	return r
}

func tankWithUsage(id, customerID string, year int, month time.Month, liters float64) storage.Tank {
	l := ledger.New(year, month)
	if liters > 0 {
		_ = l.Add(10, liters)
	}
	return storage.Tank{
		ID:         id,
		CustomerID: customerID,
		Radius:     50,
		Height:     100,
		Usage:      storage.UsageLedger{Ledger: l},
	}
}

func TestRunBillsStaleLedger(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.CreateTank(ctx, tankWithUsage("t1", "c1", 2026, time.July, 340))

	n := &recordingNotifier{}
	r := newTestRunner(st, n, augustNow)

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	bills, _ := st.ListBills(ctx)
	if len(bills) != 1 {
		t.Fatalf("bills = %d, want 1", len(bills))
	}
	b := bills[0]
	if b.TankID != "t1" || b.CustomerID != "c1" {
		t.Errorf("bill subject = %s/%s, want t1/c1", b.TankID, b.CustomerID)
	}
	if b.Year != 2026 || b.Month != int(time.July) {
		t.Errorf("bill period = %d-%d, want 2026-7", b.Year, b.Month)
	}
	if b.Amount != 340 {
		t.Errorf("bill amount = %v, want 340", b.Amount)
	}
	if b.Status != storage.BillUnpaid {
		t.Errorf("bill status = %s, want Unpaid", b.Status)
	}

	// Owner notified with the total price.
	if len(n.users) != 1 || n.users[0] != "c1" {
		t.Fatalf("notifications = %v, want one for c1", n.users)
	}
	if !strings.Contains(n.messages[0], "July") {
		t.Errorf("notification should name the billed month: %q", n.messages[0])
	}

	// Ledger reset to the current month.
	updated, _ := st.GetTank(ctx, "t1")
	if updated.Usage.Month != time.August || updated.Usage.Total() != 0 {
		t.Errorf("ledger after reconcile = %v %v, want empty August", updated.Usage.Month, updated.Usage.Total())
	}
}

func TestRunSkipsCurrentMonthLedger(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.CreateTank(ctx, tankWithUsage("t1", "c1", 2026, time.August, 120))

	r := newTestRunner(st, &recordingNotifier{}, augustNow)
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	bills, _ := st.ListBills(ctx)
	if len(bills) != 0 {
		t.Errorf("bills = %d, want 0 for a current-month ledger", len(bills))
	}
	updated, _ := st.GetTank(ctx, "t1")
	if updated.Usage.Total() != 120 {
		t.Errorf("current-month usage was reset: total = %v, want 120", updated.Usage.Total())
	}
}

func TestRunZeroUsageResetsWithoutBill(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.CreateTank(ctx, tankWithUsage("t1", "c1", 2026, time.July, 0))

	n := &recordingNotifier{}
	r := newTestRunner(st, n, augustNow)
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	bills, _ := st.ListBills(ctx)
	if len(bills) != 0 {
		t.Errorf("bills = %d, want 0 for zero usage", len(bills))
	}
	if len(n.messages) != 0 {
		t.Errorf("no notification expected for zero usage, got %v", n.messages)
	}
	updated, _ := st.GetTank(ctx, "t1")
	if updated.Usage.Month != time.August {
		t.Errorf("ledger month = %v, want August", updated.Usage.Month)
	}
}

func TestRunJanuaryWrapsToPreviousDecember(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.CreateTank(ctx, tankWithUsage("t1", "c1", 2026, time.December, 200))

	january := time.Date(2027, time.January, 3, 8, 0, 0, 0, time.UTC)
	r := newTestRunner(st, &recordingNotifier{}, january)
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	bills, _ := st.ListBills(ctx)
	if len(bills) != 1 {
		t.Fatalf("bills = %d, want 1", len(bills))
	}
	if bills[0].Year != 2026 || bills[0].Month != int(time.December) {
		t.Errorf("bill period = %d-%d, want 2026-12", bills[0].Year, bills[0].Month)
	}
}

func TestRunDuplicateBillStillResetsLedger(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.CreateTank(ctx, tankWithUsage("t1", "c1", 2026, time.July, 340))
	_ = st.CreateBill(ctx, storage.Bill{
		ID:         uuid.New().String(),
		CustomerID: "c1",
		TankID:     "t1",
		Amount:     340,
		Status:     storage.BillUnpaid,
		Year:       2026,
		Month:      int(time.July),
		CreatedAt:  augustNow,
	})

	n := &recordingNotifier{}
	r := newTestRunner(st, n, augustNow)
	if err := r.Run(ctx); err != nil {
		t.Fatalf("duplicate bill must not fail the run: %v", err)
	}

	bills, _ := st.ListBills(ctx)
	if len(bills) != 1 {
		t.Errorf("bills = %d, want 1 (no duplicate created)", len(bills))
	}
	if len(n.messages) != 0 {
		t.Errorf("already-billed tank should not re-notify, got %v", n.messages)
	}
	updated, _ := st.GetTank(ctx, "t1")
	if updated.Usage.Month != time.August || updated.Usage.Total() != 0 {
		t.Errorf("ledger not reset after duplicate: %v %v", updated.Usage.Month, updated.Usage.Total())
	}
}

func TestPreviousPeriod(t *testing.T) {
	cases := []struct {
		now       time.Time
		wantYear  int
		wantMonth time.Month
	}{
		{time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC), 2026, time.July},
		{time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC), 2026, time.December},
		{time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), 2026, time.January},
	}
	for _, c := range cases {
		year, month := previousPeriod(c.now)
		if year != c.wantYear || month != c.wantMonth {
			t.Errorf("previousPeriod(%v) = %d-%v, want %d-%v", c.now, year, month, c.wantYear, c.wantMonth)
		}
	}
}
