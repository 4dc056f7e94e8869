package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/referly/internal/auth/domain"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	obsmetrics "github.com/smallbiznis/referly/internal/observability/metrics"
	"github.com/smallbiznis/referly/internal/ratelimit"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
	referralmetricdomain "github.com/smallbiznis/referly/internal/referralmetric/domain"
	rewarddomain "github.com/smallbiznis/referly/internal/reward/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	resourceContractor = "contractor"
	resourcePayout     = "reward_payout"
	resourceSession    = "session"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	AppConfig config.Config
	Referrals referraldomain.Service
	Metrics   referralmetricdomain.Service
	Rewards   rewarddomain.Service `optional:"true"`
	Sessions  authdomain.Service   `optional:"true"`
	Locker    *ratelimit.Locker    `optional:"true"`
	Config    Config               `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	loc       *time.Location
	referrals referraldomain.Service
	metrics   referralmetricdomain.Service
	rewards   rewarddomain.Service
	sessions  authdomain.Service
	locker    *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Referrals == nil || p.Metrics == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		loc:       p.AppConfig.Location(),
		referrals: p.Referrals,
		metrics:   p.Metrics,
		rewards:   p.Rewards,
		sessions:  p.Sessions,
		locker:    p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next run picks up the remainder.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce performs a single sweep. Job failures are joined; one failing job
// does not stop the others.
func (s *Scheduler) RunOnce(parent context.Context) error {
	release, err := s.acquireSweepLock(parent)
	if err != nil {
		if errors.Is(err, ErrSweepLockHeld) {
			obsmetrics.Scheduler().IncBatchDeferred(obsmetrics.JobPromoteInstalls, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
			s.log.Debug("another instance holds the sweep lock")
			return nil
		}
		return err
	}
	defer release()

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{obsmetrics.JobPromoteInstalls, s.PromoteInstallsJob},
		{obsmetrics.JobRecomputeMetrics, s.RecomputeMetricsJob},
		{obsmetrics.JobRetryRewardPayout, s.RetryRewardPayoutsJob},
		{obsmetrics.JobPurgeSessions, s.PurgeSessionsJob},
	}

	var jobErr error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		jobErr = errors.Join(jobErr, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return jobErr
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// PromoteInstallsJob persists wait_for_install referrals whose installation
// day has arrived. Reads already evaluate status fresh; this keeps stored
// rows, rewards and metrics in step without a read.
func (s *Scheduler) PromoteInstallsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, obsmetrics.JobPromoteInstalls, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	contractors, err := s.referrals.PromoteDue(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.promote.failed", obsmetrics.JobPromoteInstalls, 0, err)
		return err
	}
	run.AddProcessed(len(contractors))
	obsmetrics.Scheduler().AddBatchProcessed(obsmetrics.JobPromoteInstalls, resourceContractor, len(contractors))
	return nil
}

// RecomputeMetricsJob refreshes snapshots that are missing or from a previous
// day, so dashboards stay current for contractors nobody is looking at.
func (s *Scheduler) RecomputeMetricsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, obsmetrics.JobRecomputeMetrics, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	today := clock.Today(s.clock, s.loc)
	contractors, err := s.fetchStaleContractors(ctx, today, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.metrics.fetch.failed", obsmetrics.JobRecomputeMetrics, 0, err)
		return err
	}

	var jobErr error
	for _, contractorID := range contractors {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		if _, err := s.metrics.Recompute(s.withLogContext(ctx, contractorID), contractorID); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.metrics.recompute.failed", obsmetrics.JobRecomputeMetrics, contractorID, err)
			continue
		}
		run.AddProcessed(1)
	}
	obsmetrics.Scheduler().AddBatchProcessed(obsmetrics.JobRecomputeMetrics, resourceContractor, run.processedCount)
	return jobErr
}

// RetryRewardPayoutsJob retries failed payouts that still have attempts left.
func (s *Scheduler) RetryRewardPayoutsJob(ctx context.Context) error {
	if s.rewards == nil {
		return nil
	}
	ctx, run, owner := s.ensureJobRun(ctx, obsmetrics.JobRetryRewardPayout, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	retried, err := s.rewards.RetryFailed(ctx, s.cfg.BatchSize)
	run.AddProcessed(retried)
	obsmetrics.Scheduler().AddBatchProcessed(obsmetrics.JobRetryRewardPayout, resourcePayout, retried)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reward.retry.failed", obsmetrics.JobRetryRewardPayout, 0, err)
		return err
	}
	return nil
}

func (s *Scheduler) PurgeSessionsJob(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	ctx, run, owner := s.ensureJobRun(ctx, obsmetrics.JobPurgeSessions, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	cutoff := s.clock.Now().Add(-s.cfg.SessionRetention)
	deleted, err := s.sessions.PurgeExpiredSessions(ctx, cutoff, s.cfg.BatchSize)
	run.AddProcessed(int(deleted))
	obsmetrics.Scheduler().AddBatchProcessed(obsmetrics.JobPurgeSessions, resourceSession, int(deleted))
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.sessions.purge.failed", obsmetrics.JobPurgeSessions, 0, err)
		return err
	}
	return nil
}
