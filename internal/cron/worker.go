package cron

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/nwehbe/waterops/internal/billing"
	"github.com/nwehbe/waterops/internal/metrics"
	"github.com/nwehbe/waterops/internal/storage"
	"github.com/robfig/cron/v3"
)

// billingLockKey keeps the reconciliation job single-flight across replicas
// (Postgres advisory lock; process-local lock on other backends).
const billingLockKey int64 = 7302

const jobName = "billing_reconcile"

// settingKey lets operators retune the interval at runtime through the
// settings table without redeploying.
const settingKey = "billing_interval"

// Worker periodically runs the billing reconciler and sweeps expired
// notifications. The interval setting accepts integer seconds or a standard
// cron expression.
type Worker struct {
	storage storage.Storage
	runner  *billing.Runner

	// Interval is the initial setting; the DB value overrides it.
	Interval string
}

func NewWorker(st storage.Storage, runner *billing.Runner, interval string) *Worker {
	if interval == "" {
		interval = "7200"
	}
	return &Worker{storage: st, runner: runner, Interval: interval}
}

// nextRun calculates the next run time from the current setting.
func nextRun(setting string, after time.Time) time.Time {
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return after.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(after)
	}
	// Unparseable setting: fall back to two hours.
	return after.Add(2 * time.Hour)
}

// Run blocks until the context is cancelled. The control loop re-checks the
// interval setting every tick so operators can retune without a restart.
func (w *Worker) Run(ctx context.Context) error {
	setting := w.Interval
	if val, err := w.storage.GetSetting(ctx, settingKey); err == nil && val != "" {
		setting = val
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	// Run immediately on startup, then on schedule.
	next := time.Now()

	log.Printf("cron: billing worker starting, interval=%q", setting)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if val, err := w.storage.GetSetting(ctx, settingKey); err == nil && val != "" && val != setting {
				log.Printf("cron: billing interval updated from %q to %q", setting, val)
				setting = val
				next = nextRun(setting, time.Now())
			}

			if time.Now().Before(next) {
				continue
			}

			w.runOnce(ctx)
			next = nextRun(setting, time.Now())
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	started := time.Now()

	ok, err := w.storage.AcquireLock(ctx, billingLockKey)
	if err != nil {
		log.Printf("cron: acquire billing lock failed: %v", err)
		metrics.UpdateJobMetrics(jobName, started, err)
		return
	}
	if !ok {
		log.Printf("cron: billing lock held by another worker, skipping run")
		return
	}

	var runErr error
	func() {
		defer func() {
			if _, err := w.storage.ReleaseLock(ctx, billingLockKey); err != nil {
				log.Printf("cron: release billing lock failed: %v", err)
			}
		}()

		runErr = w.runner.Run(ctx)

		if purged, err := w.storage.PurgeExpiredNotifications(ctx, time.Now()); err != nil {
			log.Printf("cron: purge expired notifications failed: %v", err)
		} else if purged > 0 {
			log.Printf("cron: purged %d expired notifications", purged)
		}
	}()

	metrics.UpdateJobMetrics(jobName, started, runErr)
	dur := time.Since(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := w.storage.UpdateScheduledJob(ctx, jobName, started, dur, runErr == nil, errMsg); err != nil {
		log.Printf("cron: update scheduled_jobs failed: %v", err)
	}

	if runErr != nil {
		log.Printf("cron: job %s completed with error: %v (duration=%s)", jobName, runErr, dur)
	} else {
		log.Printf("cron: job %s completed successfully (duration=%s)", jobName, dur)
	}
}
