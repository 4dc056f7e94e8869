package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/reward/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.RewardPayout) error {
	return db.WithContext(ctx).Create(payout).Error
}

func (r *repo) FindByReferral(ctx context.Context, db *gorm.DB, referralID snowflake.ID) (*domain.RewardPayout, error) {
	var payout domain.RewardPayout
	err := db.WithContext(ctx).Where("referral_id = ?", referralID).First(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, payout *domain.RewardPayout) error {
	return db.WithContext(ctx).
		Model(&domain.RewardPayout{}).
		Where("id = ?", payout.ID).
		Updates(map[string]any{
			"status":         payout.Status,
			"transaction_id": payout.TransactionID,
			"attempts":       payout.Attempts,
			"last_error":     payout.LastError,
			"updated_at":     payout.UpdatedAt,
			"paid_at":        payout.PaidAt,
		}).Error
}

func (r *repo) ListByContractor(ctx context.Context, db *gorm.DB, contractorID snowflake.ID) ([]*domain.RewardPayout, error) {
	var items []*domain.RewardPayout
	err := db.WithContext(ctx).
		Where("contractor_id = ?", contractorID).
		Order("id desc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListRetryable(ctx context.Context, db *gorm.DB, maxAttempts int, limit int) ([]*domain.RewardPayout, error) {
	var items []*domain.RewardPayout
	err := db.WithContext(ctx).
		Where("status = ? AND attempts < ?", domain.PayoutStatusFailed, maxAttempts).
		Order("updated_at asc, id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
