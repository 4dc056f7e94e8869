package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/referralmetric/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, contractorID snowflake.ID) (*domain.ReferralMetric, error) {
	var metric domain.ReferralMetric
	err := db.WithContext(ctx).Where("contractor_id = ?", contractorID).First(&metric).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &metric, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, metric *domain.ReferralMetric) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "contractor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_referrals",
				"converted_referrals",
				"conversion_rate",
				"average_time_to_conversion",
				"source_updated_at",
				"computed_on",
				"updated_at",
			}),
		}).
		Create(metric).Error
}

type source struct {
	db *gorm.DB
}

// NewReferralSource reads the referrals table directly so the aggregator
// does not depend on the referral service.
func NewReferralSource(db *gorm.DB) domain.ReferralSource {
	return &source{db: db}
}

type sampleRow struct {
	InstallationDate *time.Time
	Verified         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (s *source) Samples(ctx context.Context, contractorID snowflake.ID) ([]domain.Sample, error) {
	var rows []sampleRow
	err := s.db.WithContext(ctx).
		Table("referrals").
		Select("installation_date, verified, created_at, updated_at").
		Where("contractor_id = ?", contractorID).
		Order("id asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	samples := make([]domain.Sample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, domain.Sample(row))
	}
	return samples, nil
}

func (s *source) LatestUpdate(ctx context.Context, contractorID snowflake.ID) (*time.Time, error) {
	var row struct {
		UpdatedAt time.Time
	}
	res := s.db.WithContext(ctx).
		Table("referrals").
		Select("updated_at").
		Where("contractor_id = ?", contractorID).
		Order("updated_at desc").
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row.UpdatedAt, nil
}
