package pump

import (
	"context"
	"fmt"

	"github.com/nwehbe/waterops/internal/storage"
	"github.com/nwehbe/waterops/internal/tank"
)

// Thresholds are inclusive on the blocked side: a tank at exactly 80% is
// full, a reservoir at exactly 30% is empty.
const (
	fullRatio  = 0.80
	emptyRatio = 0.30
)

// maxUnpaidBills is the count at which a tank is cut off.
const maxUnpaidBills = 2

// Outcome classifies a tank for the current cycle.
type Outcome int

const (
	Eligible Outcome = iota
	BlockedUnpaidBills
	BlockedFull
)

func (o Outcome) String() string {
	switch o {
	case Eligible:
		return "eligible"
	case BlockedUnpaidBills:
		return "blocked_unpaid_bills"
	case BlockedFull:
		return "blocked_full"
	default:
		return "unknown"
	}
}

// Notifier records a message for a user. Failures are the notifier's problem;
// classification never fails on notification errors.
type Notifier interface {
	Notify(ctx context.Context, message, userID string)
}

// Evaluator classifies tanks and notifies owners of blocked ones.
type Evaluator struct {
	notifier Notifier
}

func NewEvaluator(n Notifier) *Evaluator {
	return &Evaluator{notifier: n}
}

// Classify decides whether the tank may receive water this cycle. The unpaid
// bill check takes precedence over fullness. Every blocked tank produces
// exactly one owner notification; that is a mandatory side effect of
// classification, not an optional extra.
func (e *Evaluator) Classify(ctx context.Context, t storage.Tank, unpaidBills int) Outcome {
	if unpaidBills >= maxUnpaidBills {
		e.notifier.Notify(ctx, fmt.Sprintf(
			"Tank %s was skipped this pump cycle: you have %d unpaid bills. Please settle them to resume water delivery.",
			t.ID, unpaidBills), t.CustomerID)
		return BlockedUnpaidBills
	}

	maxCap := tank.MaxCapacity(t.Radius, t.Height)
	if tank.FillRatio(t.CurrentLevel, maxCap) >= fullRatio {
		e.notifier.Notify(ctx, fmt.Sprintf(
			"Tank %s was skipped this pump cycle: it is already at or above %.0f%% capacity.",
			t.ID, fullRatio*100), t.CustomerID)
		return BlockedFull
	}

	return Eligible
}
