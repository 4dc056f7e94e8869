package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smallbiznis/referly/internal/errs"
	"gorm.io/gorm"
)

// Error reasons recorded on referly_scheduler_job_errors_total.
const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonForbidden            = "forbidden"
	SchedulerJobReasonLockHeld             = "lock_held"
	SchedulerJobReasonStaleWrite           = "stale_write"
	SchedulerJobReasonPayoutProvider       = "payout_provider"
	SchedulerJobReasonUnknown              = "unknown"
)

const SchedulerBatchDeferredReasonLockHeld = "lock_held"

// Sweep job names.
const (
	JobPromoteInstalls   = "promote_installs"
	JobRecomputeMetrics  = "recompute_metrics"
	JobRetryRewardPayout = "retry_reward_payouts"
	JobPurgeSessions     = "purge_sessions"
)

// SchedulerMetrics are the prometheus series for the background sweep.
// A nil *SchedulerMetrics records nothing.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	batchDeferred  *prometheus.CounterVec
	runLoopLag     prometheus.Histogram
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics, registering them on
// first use.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig is Scheduler with service and env labels; only the
// first call's labels take effect.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = NewSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest drops the singleton so a test can bind a fresh registry.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)
	labels := prometheus.Labels{
		"service": orDefault(cfg.ServiceName, "referly"),
		"env":     orDefault(cfg.Environment, "unknown"),
	}
	const ns, sub = "referly", "scheduler"

	return &SchedulerMetrics{
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "job_runs_total",
			Help: "Sweep job runs by name.", ConstLabels: labels,
		}, []string{"job"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "job_duration_seconds",
			Help:    "Sweep job latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300}, ConstLabels: labels,
		}, []string{"job"}),
		jobTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "job_timeouts_total",
			Help: "Sweep jobs cut short by their timeout.", ConstLabels: labels,
		}, []string{"job"}),
		jobErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "job_errors_total",
			Help: "Sweep job errors by reason.", ConstLabels: labels,
		}, []string{"job", "reason"}),
		batchProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "batch_processed_total",
			Help: "Contractors, payouts and sessions handled per job.", ConstLabels: labels,
		}, []string{"job", "resource"}),
		batchDeferred: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "batch_deferred_total",
			Help: "Sweeps skipped, by reason.", ConstLabels: labels,
		}, []string{"job", "reason"}),
		runLoopLag: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "runloop_lag_seconds",
			Help:    "How late a sweep started relative to its tick.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300}, ConstLabels: labels,
		}),
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *SchedulerMetrics) IncBatchDeferred(job, reason string) {
	if m != nil {
		m.batchDeferred.WithLabelValues(job, reason).Inc()
	}
}

func (m *SchedulerMetrics) ObserveRunLoopLag(d time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(d, 0).Seconds())
	}
}

// Postgres SQLSTATEs the sweep can hit under contention.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

// IsSchedulerErrorRetryable reports whether the next sweep can be expected to
// succeed where this one failed.
func IsSchedulerErrorRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errs.IsRetryable(err):
		return true
	}
	code := pgCode(err)
	return code == pgLockNotAvailable || code == pgSerializationFailure
}

// ClassifySchedulerJobReason maps sweep errors to a bounded set of label values.
func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SchedulerJobReasonDeadlineExceeded
	}
	switch errs.KindOf(err) {
	case errs.KindAuthorization:
		return SchedulerJobReasonForbidden
	case errs.KindUnavailable:
		return SchedulerJobReasonLockHeld
	case errs.KindConflict:
		return SchedulerJobReasonStaleWrite
	case errs.KindDependency:
		return SchedulerJobReasonPayoutProvider
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return SchedulerJobReasonUniqueViolation
	}
	switch pgCode(err) {
	case pgLockNotAvailable:
		return SchedulerJobReasonDBLockTimeout
	case pgSerializationFailure:
		return SchedulerJobReasonSerializationFailure
	case pgUniqueViolation:
		return SchedulerJobReasonUniqueViolation
	}
	return SchedulerJobReasonUnknown
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}
