package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Recompute derives the snapshot from the contractor's referrals and
	// stores it. An unchanged snapshot is returned without a write.
	Recompute(ctx context.Context, contractorID snowflake.ID) (ReferralMetric, error)
	// Get returns the stored snapshot, recomputing it when missing or stale.
	Get(ctx context.Context, contractorID snowflake.ID) (ReferralMetric, error)
}
