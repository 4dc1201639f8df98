// Package billing converts accumulated tank usage into monthly bills. The
// reconciler runs on a schedule; any tank whose ledger month no longer
// matches the wall clock gets billed for the previous period and reset.
package billing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nwehbe/waterops/internal/ledger"
	"github.com/nwehbe/waterops/internal/metrics"
	"github.com/nwehbe/waterops/internal/storage"
)

// Notifier mirrors pump.Notifier; billing notifications are best effort too.
type Notifier interface {
	Notify(ctx context.Context, message, userID string)
}

// Mailer sends the bill-issued email. Optional; nil disables email.
type Mailer interface {
	Send(to, subject, body string) error
}

// Runner reconciles stale ledgers into bills.
type Runner struct {
	storage  storage.Storage
	notifier Notifier
	mailer   Mailer

	// now is injectable for tests.
	now func() time.Time
}

func NewRunner(st storage.Storage, n Notifier, m Mailer) *Runner {
	return &Runner{storage: st, notifier: n, mailer: m, now: time.Now}
}

// Run performs one reconciliation pass over every tank. A failure on one
// tank is logged and does not stop the others; the first error is returned
// so the job run is recorded as failed.
func (r *Runner) Run(ctx context.Context) error {
	tanks, err := r.storage.ListTanks(ctx)
	if err != nil {
		return fmt.Errorf("billing: list tanks: %w", err)
	}

	now := r.now()
	var runErr error
	for _, t := range tanks {
		if err := r.reconcileTank(ctx, t, now); err != nil {
			log.Printf("billing: reconcile tank %s failed: %v", t.ID, err)
			if runErr == nil {
				runErr = err
			}
		}
	}
	return runErr
}

// reconcileTank finalizes one tank's previous billing period. The record is
// re-read first so a concurrent pump cycle's ledger writes are not clobbered;
// the reset is persisted even when no bill is due or the bill already exists,
// so the tank always returns to the current period.
func (r *Runner) reconcileTank(ctx context.Context, stale storage.Tank, now time.Time) error {
	latest, err := r.storage.GetTank(ctx, stale.ID)
	if err != nil {
		return fmt.Errorf("reload tank: %w", err)
	}
	if latest == nil {
		return nil
	}
	t := *latest
	if !t.Usage.Stale(now) && len(t.Usage.Days) > 0 {
		return nil
	}

	if err := Finalize(ctx, r.storage, r.notifier, r.mailer, &t, now); err != nil {
		return err
	}
	if err := r.storage.SaveTank(ctx, t); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return nil
}

// Finalize bills the tank's accumulated usage for the period one month before
// now, notifies the owner, and resets the ledger in place to a fresh ledger
// for the current month; the caller persists the tank. A duplicate bill means
// another run already billed the period: the reset still happens and no second
// notification is sent. The pump dispatcher calls this too, so a stale ledger
// is always reconciled before anything overwrites it.
func Finalize(ctx context.Context, st storage.Storage, n Notifier, m Mailer, t *storage.Tank, now time.Time) error {
	total := t.Usage.Total()
	if total > 0 {
		year, month := previousPeriod(now)
		bill := storage.Bill{
			ID:         uuid.New().String(),
			CustomerID: t.CustomerID,
			TankID:     t.ID,
			Amount:     total,
			Status:     storage.BillUnpaid,
			Year:       year,
			Month:      int(month),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		switch err := st.CreateBill(ctx, bill); {
		case err == nil:
			metrics.BillsCreatedTotal.Inc()
			notifyBill(ctx, st, n, m, *t, bill)
		case err == storage.ErrDuplicateBill:
			log.Printf("billing: bill for tank %s %d-%02d already exists", t.ID, year, month)
		default:
			return fmt.Errorf("create bill: %w", err)
		}
	}

	t.Usage.Ledger = ledger.New(now.Year(), now.Month())
	return nil
}

func notifyBill(ctx context.Context, st storage.Storage, n Notifier, m Mailer, t storage.Tank, bill storage.Bill) {
	msg := fmt.Sprintf(
		"Your water bill for %s %d is ready: %.2f liters used, total %.2f. Tank %s.",
		time.Month(bill.Month), bill.Year, bill.Amount, TotalPrice(bill.Amount), t.ID)
	n.Notify(ctx, msg, t.CustomerID)

	if m == nil {
		return
	}
	customer, err := st.GetCustomer(ctx, t.CustomerID)
	if err != nil || customer == nil {
		log.Printf("billing: load customer %s for bill email failed: %v", t.CustomerID, err)
		return
	}
	subject := fmt.Sprintf("Water bill for %s %d", time.Month(bill.Month), bill.Year)
	body := fmt.Sprintf(
		"<p>Dear %s,</p><p>Your water bill for %s %d is ready.</p>"+
			"<p>Consumption: %.2f liters<br>Amount due: %.2f</p>",
		customer.Name, time.Month(bill.Month), bill.Year, bill.Amount, TotalPrice(bill.Amount))
	if err := m.Send(customer.Email, subject, body); err != nil {
		log.Printf("billing: bill email to %s failed: %v", customer.Email, err)
	}
}

// previousPeriod returns the billing period one month before now, wrapping
// January back to December of the prior year.
func previousPeriod(now time.Time) (int, time.Month) {
	year, month := now.Year(), now.Month()
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}
