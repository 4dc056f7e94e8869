package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/referly/internal/observability/context"
	obslogger "github.com/smallbiznis/referly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/referly/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one job invocation within a sweep. Nested calls (RunOnce
// wrapping a job that also opens a run) share the outer run.
type jobRun struct {
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r != nil && count > 0 {
		r.processedCount += count
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errorCount++
	}
}

func (r *jobRun) outcome() string {
	switch {
	case r.errorCount == 0:
		return "ok"
	case r.processedCount > 0:
		return "partial"
	default:
		return "failed"
	}
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && run != nil {
		return ctx, run, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	return context.WithValue(s.withLogContext(ctx, 0), jobRunKey{}, run), run, true
}

// withLogContext marks the context as a scheduler actor, scoped to one
// contractor when contractorID is set.
func (s *Scheduler) withLogContext(ctx context.Context, contractorID snowflake.ID) context.Context {
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	if contractorID != 0 {
		ctx = obscontext.WithContractorID(ctx, contractorID.String())
	}
	return ctx
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Debug("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

// logJobFinish logs quiet runs at debug so an hourly sweep with nothing due
// does not flood the logs.
func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	log := s.logger(ctx).With(
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("outcome", run.outcome()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
		zap.Duration("duration", s.clock.Now().Sub(run.startedAt)),
	)
	switch {
	case run.errorCount > 0:
		log.Warn("scheduler.job.finish")
	case run.processedCount > 0:
		log.Info("scheduler.job.finish")
	default:
		log.Debug("scheduler.job.finish")
	}
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, job string, contractorID snowflake.ID, err error) {
	if err == nil {
		return
	}
	run.IncError()

	fields := []zap.Field{
		zap.String("job", job),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	}
	if run != nil {
		fields = append(fields, zap.String("run_id", run.runID))
	}
	s.logger(s.withLogContext(ctx, contractorID)).Error(msg, fields...)
}
