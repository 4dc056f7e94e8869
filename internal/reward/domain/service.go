package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	referraldomain "github.com/smallbiznis/referly/internal/referral/domain"
)

type Service interface {
	// DispatchForReferral pays the referrer of a newly completed referral when
	// automatic payouts are enabled. Calling it again for the same referral is
	// a no-op once the payout was sent.
	DispatchForReferral(ctx context.Context, referral referraldomain.Referral) (*RewardPayout, error)
	// TriggerPayout is the contractor-initiated payout or retry.
	TriggerPayout(ctx context.Context, contractorID, referralID snowflake.ID) (RewardPayout, error)
	List(ctx context.Context, contractorID snowflake.ID) ([]RewardPayout, error)
	// RetryFailed re-attempts failed payouts and reports how many were sent.
	RetryFailed(ctx context.Context, limit int) (int, error)
}
