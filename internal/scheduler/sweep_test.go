package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	authdomain "github.com/smallbiznis/referly/internal/auth/domain"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	obsmetrics "github.com/smallbiznis/referly/internal/observability/metrics"
	"github.com/smallbiznis/referly/internal/ratelimit"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
	referralmetricdomain "github.com/smallbiznis/referly/internal/referralmetric/domain"
	rewarddomain "github.com/smallbiznis/referly/internal/reward/domain"
	"github.com/smallbiznis/referly/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeReferrals struct {
	referraldomain.Service
	promoted []snowflake.ID
	calls    int
}

func (f *fakeReferrals) PromoteDue(context.Context, int) ([]snowflake.ID, error) {
	f.calls++
	return f.promoted, nil
}

type fakeMetrics struct {
	referralmetricdomain.Service
	recomputed []snowflake.ID
	fail       snowflake.ID
}

func (f *fakeMetrics) Recompute(_ context.Context, contractorID snowflake.ID) (referralmetricdomain.ReferralMetric, error) {
	if contractorID == f.fail {
		return referralmetricdomain.ReferralMetric{}, errors.New("boom")
	}
	f.recomputed = append(f.recomputed, contractorID)
	return referralmetricdomain.ReferralMetric{ContractorID: contractorID}, nil
}

type fakeRewards struct {
	rewarddomain.Service
	retried int
}

func (f *fakeRewards) RetryFailed(context.Context, int) (int, error) {
	f.retried++
	return 2, nil
}

type fakeSessions struct {
	authdomain.Service
	cutoffs []time.Time
}

func (f *fakeSessions) PurgeExpiredSessions(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, nil
}

type sweepFixture struct {
	sched     *Scheduler
	db        *gorm.DB
	referrals *fakeReferrals
	metrics   *fakeMetrics
	rewards   *fakeRewards
	sessions  *fakeSessions
}

func newSweepFixture(t *testing.T, locker *ratelimit.Locker) *sweepFixture {
	t.Helper()
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&referraldomain.Referral{}, &referralmetricdomain.ReferralMetric{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &sweepFixture{
		db:        conn,
		referrals: &fakeReferrals{promoted: []snowflake.ID{100}},
		metrics:   &fakeMetrics{},
		rewards:   &fakeRewards{},
		sessions:  &fakeSessions{},
	}
	f.sched, err = New(Params{
		DB:        conn,
		Log:       zaptest.NewLogger(t),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)),
		AppConfig: config.Config{TimeZone: "UTC"},
		Referrals: f.referrals,
		Metrics:   f.metrics,
		Rewards:   f.rewards,
		Sessions:  f.sessions,
		Locker:    locker,
	})
	require.NoError(t, err)
	return f
}

func (f *sweepFixture) seedReferral(t *testing.T, id, contractorID snowflake.ID) {
	t.Helper()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&referraldomain.Referral{
		ID:           id,
		ReferralCode: "CODE" + id.String(),
		ContractorID: contractorID,
		ReferrerID:   1,
		Status:       lifecycle.StatusPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error)
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	f := newSweepFixture(t, nil)
	f.seedReferral(t, 1, 100)
	f.seedReferral(t, 2, 100)
	f.seedReferral(t, 3, 101)
	f.seedReferral(t, 4, 102)

	// 102 is current, 101 is from yesterday, 100 has no snapshot yet.
	require.NoError(t, f.db.Create(&referralmetricdomain.ReferralMetric{
		ContractorID: 101, ComputedOn: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
	}).Error)
	require.NoError(t, f.db.Create(&referralmetricdomain.ReferralMetric{
		ContractorID: 102, ComputedOn: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}).Error)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, 1, f.referrals.calls)
	assert.ElementsMatch(t, []snowflake.ID{100, 101}, f.metrics.recomputed)
	assert.Equal(t, 1, f.rewards.retried)
	assert.Equal(t, []time.Time{time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}, f.sessions.cutoffs)
}

func TestRecomputeMetricsJobContinuesPastFailures(t *testing.T) {
	f := newSweepFixture(t, nil)
	f.seedReferral(t, 1, 100)
	f.seedReferral(t, 2, 101)
	f.metrics.fail = 100

	err := f.sched.RecomputeMetricsJob(context.Background())
	require.Error(t, err)
	assert.Equal(t, []snowflake.ID{101}, f.metrics.recomputed)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	f := newSweepFixture(t, nil)
	f.sched.cfg.EnabledJobs = []string{obsmetrics.JobRetryRewardPayout}

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Zero(t, f.referrals.calls)
	assert.Empty(t, f.metrics.recomputed)
	assert.Equal(t, 1, f.rewards.retried)
}

func TestRunOnceSkipsWhileAnotherInstanceSweeps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	f := newSweepFixture(t, locker)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, sweepLockKey, time.Minute)
	require.NoError(t, err)

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Zero(t, f.referrals.calls)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.referrals.calls)
	assert.False(t, mr.Exists(sweepLockKey), "sweep lock must be released after a run")
}
