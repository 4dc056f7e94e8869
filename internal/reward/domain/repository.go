package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *RewardPayout) error
	FindByReferral(ctx context.Context, db *gorm.DB, referralID snowflake.ID) (*RewardPayout, error)
	Update(ctx context.Context, db *gorm.DB, payout *RewardPayout) error
	ListByContractor(ctx context.Context, db *gorm.DB, contractorID snowflake.ID) ([]*RewardPayout, error)
	// ListRetryable returns failed payouts that still have attempts left.
	ListRetryable(ctx context.Context, db *gorm.DB, maxAttempts int, limit int) ([]*RewardPayout, error)
}
