package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/referly/internal/errs"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"deadline":      {context.DeadlineExceeded, SchedulerJobReasonDeadlineExceeded},
		"forbidden":     {errs.New(errs.KindAuthorization, "forbidden"), SchedulerJobReasonForbidden},
		"lock held":     {fmt.Errorf("sweep: %w", errs.New(errs.KindUnavailable, "locked")), SchedulerJobReasonLockHeld},
		"stale write":   {errs.New(errs.KindConflict, "stale_write"), SchedulerJobReasonStaleWrite},
		"payout failed": {errs.NewRetryable(errs.KindDependency, "payout_failed"), SchedulerJobReasonPayoutProvider},
		"db lock":       {&pgconn.PgError{Code: "55P03"}, SchedulerJobReasonDBLockTimeout},
		"serialization": {&pgconn.PgError{Code: "40001"}, SchedulerJobReasonSerializationFailure},
		"duplicate":     {gorm.ErrDuplicatedKey, SchedulerJobReasonUniqueViolation},
		"pg duplicate":  {&pgconn.PgError{Code: "23505"}, SchedulerJobReasonUniqueViolation},
		"unknown":       {errors.New("boom"), SchedulerJobReasonUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestSchedulerCounters(t *testing.T) {
	m := NewSchedulerMetrics(prometheus.NewRegistry(), Config{ServiceName: "referly", Environment: "test"})

	m.AddBatchProcessed(JobPromoteInstalls, "contractor", 3)
	m.AddBatchProcessed(JobPromoteInstalls, "contractor", 0)
	m.IncJobError(JobRetryRewardPayout, errs.NewRetryable(errs.KindDependency, "payout_failed"))
	m.IncJobError(JobRetryRewardPayout, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.batchProcessed.WithLabelValues(JobPromoteInstalls, "contractor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobErrors.WithLabelValues(JobRetryRewardPayout, SchedulerJobReasonPayoutProvider)))
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	assert.NotPanics(t, func() {
		m.IncJobRun("x")
		m.ObserveJobDuration("x", time.Second)
		m.IncJobError("x", errors.New("boom"))
		m.ObserveRunLoopLag(-time.Second)
	})
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	assert.True(t, IsSchedulerErrorRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsSchedulerErrorRetryable(context.Canceled))
	assert.False(t, IsSchedulerErrorRetryable(errs.New(errs.KindValidation, "bad")))
	assert.False(t, IsSchedulerErrorRetryable(nil))
}
