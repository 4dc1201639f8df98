package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterops_requests_total",
			Help: "Total number of requests per path",
		},
		[]string{"path"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waterops_request_duration_seconds",
			Help:    "Request duration in seconds per path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterops_request_errors_total",
			Help: "Total number of error responses per path and code",
		},
		[]string{"path", "code"},
	)
)

var (
	PumpCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterops_pump_cycles_total",
			Help: "Total number of pump cycles per outcome",
		},
		[]string{"outcome"},
	)

	TanksPumpedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waterops_tanks_pumped_total",
			Help: "Total number of tanks that received water",
		},
	)

	LitersDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waterops_liters_delivered_total",
			Help: "Total liters delivered across all pump cycles",
		},
	)

	BillsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waterops_bills_created_total",
			Help: "Total number of bills created by the billing reconciler",
		},
	)
)

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waterops_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waterops_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterops_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
