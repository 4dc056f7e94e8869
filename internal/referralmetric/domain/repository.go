package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ReferralSource is the read-only view of referrals the aggregator depends on.
type ReferralSource interface {
	Samples(ctx context.Context, contractorID snowflake.ID) ([]Sample, error)
	LatestUpdate(ctx context.Context, contractorID snowflake.ID) (*time.Time, error)
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, contractorID snowflake.ID) (*ReferralMetric, error)
	Upsert(ctx context.Context, db *gorm.DB, metric *ReferralMetric) error
}
