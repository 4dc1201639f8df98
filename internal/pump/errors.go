package pump

import "errors"

// Business outcomes of a pump cycle. The API layer maps these to HTTP
// statuses; everything else is a system error.
var (
	// ErrNoReservoir means no main tank record exists. Fatal to the request.
	ErrNoReservoir = errors.New("no reservoir found")

	// ErrNoTanks means no household tanks are registered. Fatal to the request.
	ErrNoTanks = errors.New("no tanks found")

	// ErrReservoirEmpty aborts the cycle before any tank is evaluated.
	// Retryable once the reservoir is refilled.
	ErrReservoirEmpty = errors.New("main tank is empty")

	// ErrNoEligibleTanks means every tank was blocked this cycle. Nothing was
	// mutated; safe to retry on the next trigger.
	ErrNoEligibleTanks = errors.New("no tanks to pump")

	// ErrCycleInProgress means another pump cycle holds the reservoir lock.
	ErrCycleInProgress = errors.New("a pump cycle is already running")
)
