package service

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/clock"
	"github.com/smallbiznis/referly/internal/config"
	obsmetrics "github.com/smallbiznis/referly/internal/observability/metrics"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
	"github.com/smallbiznis/referly/internal/referralmetric/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	triggerPush = "push"
	triggerPull = "pull"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Source  domain.ReferralSource
	Clock   clock.Clock
	Config  config.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	source  domain.ReferralSource
	clock   clock.Clock
	loc     *time.Location
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("referralmetric.service"),
		repo:    p.Repo,
		source:  p.Source,
		clock:   p.Clock,
		loc:     p.Config.Location(),
		metrics: p.Metrics,
	}
}

func (s *Service) Recompute(ctx context.Context, contractorID snowflake.ID) (domain.ReferralMetric, error) {
	return s.recompute(ctx, contractorID, triggerPush)
}

func (s *Service) Get(ctx context.Context, contractorID snowflake.ID) (domain.ReferralMetric, error) {
	stored, err := s.repo.Find(ctx, s.db, contractorID)
	if err != nil {
		return domain.ReferralMetric{}, err
	}
	if stored == nil {
		return s.recompute(ctx, contractorID, triggerPull)
	}

	today := clock.Today(s.clock, s.loc)
	if stored.ComputedOn.Before(today) {
		return s.recompute(ctx, contractorID, triggerPull)
	}

	latest, err := s.source.LatestUpdate(ctx, contractorID)
	if err != nil {
		return domain.ReferralMetric{}, err
	}
	if latest != nil && (stored.SourceUpdatedAt == nil || stored.SourceUpdatedAt.Before(*latest)) {
		return s.recompute(ctx, contractorID, triggerPull)
	}
	return *stored, nil
}

func (s *Service) recompute(ctx context.Context, contractorID snowflake.ID, trigger string) (domain.ReferralMetric, error) {
	samples, err := s.source.Samples(ctx, contractorID)
	if err != nil {
		return domain.ReferralMetric{}, err
	}

	today := clock.Today(s.clock, s.loc)
	next := Aggregate(contractorID, samples, today, s.loc)

	stored, err := s.repo.Find(ctx, s.db, contractorID)
	if err != nil {
		return domain.ReferralMetric{}, err
	}
	if stored != nil && stored.SameFigures(next) {
		s.metrics.RecordMetricsRecomputed(ctx, trigger, false)
		return *stored, nil
	}

	next.UpdatedAt = s.clock.Now()
	if err := s.repo.Upsert(ctx, s.db, &next); err != nil {
		return domain.ReferralMetric{}, err
	}
	s.metrics.RecordMetricsRecomputed(ctx, trigger, true)
	s.log.Debug("referral metrics recomputed",
		zap.String("contractor_id", contractorID.String()),
		zap.String("trigger", trigger),
		zap.Int64("total", next.TotalReferrals),
		zap.Int64("converted", next.ConvertedReferrals),
	)
	return next, nil
}

// Aggregate computes a snapshot from samples with status evaluated for today.
// UpdatedAt is left for the caller to stamp.
func Aggregate(contractorID snowflake.ID, samples []domain.Sample, today time.Time, loc *time.Location) domain.ReferralMetric {
	metric := domain.ReferralMetric{
		ContractorID: contractorID,
		ComputedOn:   today,
	}

	var daysSum, daysCount int64
	for _, sample := range samples {
		metric.TotalReferrals++
		if metric.SourceUpdatedAt == nil || sample.UpdatedAt.After(*metric.SourceUpdatedAt) {
			watermark := sample.UpdatedAt
			metric.SourceUpdatedAt = &watermark
		}

		if lifecycle.Evaluate(sample.InstallationDate, sample.Verified, today) != lifecycle.StatusComplete {
			continue
		}
		metric.ConvertedReferrals++
		if sample.InstallationDate != nil && !sample.CreatedAt.IsZero() {
			daysSum += int64(lifecycle.DaysBetween(sample.CreatedAt, *sample.InstallationDate, loc))
			daysCount++
		}
	}

	metric.ConversionRateBP = ConversionRateBP(metric.ConvertedReferrals, metric.TotalReferrals)
	if daysCount > 0 {
		avg := int64(math.Floor(float64(daysSum) / float64(daysCount)))
		metric.AverageTimeToConversion = &avg
	}
	return metric
}

// ConversionRateBP returns converted/total as a percentage in basis points,
// rounded half away from zero. Zero total yields zero.
func ConversionRateBP(converted, total int64) int64 {
	if total <= 0 {
		return 0
	}
	num := converted * 10000
	q, r := num/total, num%total
	if 2*r >= total {
		q++
	}
	return q
}
