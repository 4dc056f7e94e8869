package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/errs"
	"github.com/smallbiznis/referly/internal/ratelimit"
	"go.uber.org/zap"
)

const sweepLockKey = "scheduler:referral-sweep"

var ErrSweepLockHeld = errs.New(errs.KindUnavailable, "sweep_lock_held")

// acquireSweepLock makes sure only one instance sweeps at a time. Without a
// locker every instance sweeps; the per-referral guards keep that safe.
func (s *Scheduler) acquireSweepLock(ctx context.Context) (func(), error) {
	lease, err := s.locker.Acquire(ctx, sweepLockKey, s.cfg.RunInterval)
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		return nil, ErrSweepLockHeld
	case err != nil:
		s.log.Warn("sweep lock unavailable, sweeping anyway", zap.Error(err))
		return func() {}, nil
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release sweep lock", zap.Error(err))
		}
	}, nil
}

// fetchStaleContractors lists contractors whose snapshot is missing or was
// computed before today.
func (s *Scheduler) fetchStaleContractors(ctx context.Context, today time.Time, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}
	var ids []int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT r.contractor_id
		 FROM referrals r
		 LEFT JOIN referral_metrics m ON m.contractor_id = r.contractor_id
		 WHERE m.contractor_id IS NULL OR m.computed_on < ?
		 ORDER BY r.contractor_id
		 LIMIT ?`,
		today,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		out = append(out, snowflake.ID(id))
	}
	return out, nil
}
