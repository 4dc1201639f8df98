package pump

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nwehbe/waterops/internal/billing"
	"github.com/nwehbe/waterops/internal/hardware"
	"github.com/nwehbe/waterops/internal/metrics"
	"github.com/nwehbe/waterops/internal/storage"
	"github.com/nwehbe/waterops/internal/tank"
)

// reservoirLockKey serializes pump cycles. The reservoir is a singleton, so a
// single advisory key is enough; two concurrent triggers must not race on the
// same tank ledgers.
const reservoirLockKey int64 = 7301

// CycleSummary is returned to the caller after a successful cycle.
type CycleSummary struct {
	TanksPumped    int                    `json:"tanks_pumped"`
	TanksBlocked   int                    `json:"tanks_blocked"`
	Hardware       *hardware.PumpResponse `json:"hardware"`
	ReservoirLevel float64                `json:"reservoir_level"`
}

// Dispatcher orchestrates one pump cycle end to end: guard the reservoir,
// classify every tank, drive the hardware, then persist the new levels.
type Dispatcher struct {
	storage   storage.Storage
	hw        hardware.Client
	evaluator *Evaluator
	notifier  Notifier

	// now is injectable for tests.
	now func() time.Time
}

func NewDispatcher(st storage.Storage, hw hardware.Client, n Notifier) *Dispatcher {
	return &Dispatcher{
		storage:   st,
		hw:        hw,
		evaluator: NewEvaluator(n),
		notifier:  n,
		now:       time.Now,
	}
}

// candidate is a tank that passed classification, with its pump target.
type candidate struct {
	tank   storage.Tank
	target float64
}

// RunCycle executes one pump cycle. Classification always runs to completion
// (every blocked tank is notified) even though only the eligible subset is
// pumped; partial success is the intended steady state, not an error.
func (d *Dispatcher) RunCycle(ctx context.Context) (*CycleSummary, error) {
	ok, err := d.storage.AcquireLock(ctx, reservoirLockKey)
	if err != nil {
		return nil, fmt.Errorf("pump: acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, ErrCycleInProgress
	}
	defer func() {
		if _, err := d.storage.ReleaseLock(ctx, reservoirLockKey); err != nil {
			log.Printf("pump: release cycle lock failed: %v", err)
		}
	}()

	summary, err := d.runLocked(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		switch err {
		case ErrReservoirEmpty:
			outcome = "reservoir_empty"
		case ErrNoEligibleTanks:
			outcome = "no_eligible_tanks"
		}
	}
	metrics.PumpCyclesTotal.WithLabelValues(outcome).Inc()
	return summary, err
}

func (d *Dispatcher) runLocked(ctx context.Context) (*CycleSummary, error) {
	// Step 1: load the reservoir and apply the guard before touching any tank.
	reservoir, err := d.storage.GetMainTank(ctx)
	if err != nil {
		return nil, fmt.Errorf("pump: load reservoir: %w", err)
	}
	if reservoir == nil {
		return nil, ErrNoReservoir
	}
	if ReservoirEmpty(*reservoir) {
		return nil, ErrReservoirEmpty
	}

	// Step 2: load all tanks.
	tanks, err := d.storage.ListTanks(ctx)
	if err != nil {
		return nil, fmt.Errorf("pump: list tanks: %w", err)
	}
	if len(tanks) == 0 {
		return nil, ErrNoTanks
	}

	// Step 3: classify every tank. Blocked owners are notified here; the
	// partition must complete even if nothing ends up eligible.
	now := d.now()
	var eligible []candidate
	blocked := 0
	for _, t := range tanks {
		unpaid, err := d.storage.CountUnpaidBills(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("pump: count unpaid bills for tank %s: %w", t.ID, err)
		}
		if d.evaluator.Classify(ctx, t, unpaid) != Eligible {
			blocked++
			continue
		}
		used := t.Usage.Total()
		remaining := tank.MonthlyAllowance(t.FamilyMembers, now) - used
		if remaining < 0 {
			remaining = 0
		}
		eligible = append(eligible, candidate{tank: t, target: remaining})
	}

	// Step 4: nothing eligible is a clean, retryable outcome; no state has
	// been mutated beyond the owner notifications.
	if len(eligible) == 0 {
		return nil, ErrNoEligibleTanks
	}

	// Step 5: dispatch the pump command.
	req := hardware.PumpRequest{
		MainTank: hardware.PumpMainTank{
			Hardware:          reservoir.Hardware,
			WaterPumpDuration: reservoir.PumpDurationSeconds,
		},
	}
	for _, c := range eligible {
		req.Tanks = append(req.Tanks, hardware.PumpTank{
			ID:       c.tank.ID,
			Hardware: c.tank.Hardware,
			Target:   c.target,
		})
	}
	resp, err := d.hw.ControlPump(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("pump: control pump: %w", err)
	}

	// Step 6: re-measure the reservoir and persist its new level.
	volume, err := d.hw.EstimateVolume(ctx, hardware.VolumeRequest{
		Radius:   reservoir.Radius,
		Height:   reservoir.Height,
		Hardware: reservoir.Hardware,
	})
	if err != nil {
		return nil, fmt.Errorf("pump: re-measure reservoir: %w", err)
	}
	reservoir.CurrentLevel = volume
	if err := d.storage.SaveMainTank(ctx, *reservoir); err != nil {
		return nil, fmt.Errorf("pump: save reservoir: %w", err)
	}

	// Step 7: persist per-tank results. One tank's failure must not abort
	// persistence for the others.
	pumped := 0
	for _, result := range resp.Tanks {
		if err := d.applyResult(ctx, result, now); err != nil {
			log.Printf("pump: update tank %s failed: %v", result.TankID, err)
			continue
		}
		pumped++
		metrics.LitersDeliveredTotal.Add(result.Liters)
	}
	metrics.TanksPumpedTotal.Add(float64(pumped))

	return &CycleSummary{
		TanksPumped:    pumped,
		TanksBlocked:   blocked,
		Hardware:       resp,
		ReservoirLevel: volume,
	}, nil
}

// applyResult re-reads the tank so the read-modify-write is against the
// latest record, not a copy cached across the hardware call.
func (d *Dispatcher) applyResult(ctx context.Context, result hardware.PumpResult, now time.Time) error {
	t, err := d.storage.GetTank(ctx, result.TankID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("tank %s no longer exists", result.TankID)
	}

	t.CurrentLevel = result.FinalLiters
	if t.Usage.Stale(now) || len(t.Usage.Days) == 0 {
		// A stale ledger still holds the previous period's unbilled usage;
		// it must be billed before the reset, not overwritten.
		if err := billing.Finalize(ctx, d.storage, d.notifier, nil, t, now); err != nil {
			return err
		}
	}
	if err := t.Usage.Add(now.Day(), result.Liters); err != nil {
		return err
	}
	return d.storage.SaveTank(ctx, *t)
}
