package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusSent    PayoutStatus = "sent"
	PayoutStatusFailed  PayoutStatus = "failed"
)

// RewardPayout is the single payout record for a referral. Amount is in
// minor units of Currency.
type RewardPayout struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	ReferralID     snowflake.ID `gorm:"not null;uniqueIndex" json:"referral_id"`
	ContractorID   snowflake.ID `gorm:"not null;index" json:"contractor_id"`
	RecipientID    snowflake.ID `gorm:"not null" json:"recipient_id"`
	Provider       string       `gorm:"type:text;not null" json:"provider"`
	RewardType     string       `gorm:"type:text;not null" json:"reward_type"`
	Amount         int64        `gorm:"not null" json:"amount"`
	Currency       string       `gorm:"type:text;not null" json:"currency"`
	Status         PayoutStatus `gorm:"type:text;not null;index" json:"status"`
	IdempotencyKey string       `gorm:"type:text;not null;uniqueIndex" json:"-"`
	TransactionID  *string      `gorm:"type:text" json:"transaction_id,omitempty"`
	Attempts       int          `gorm:"not null;default:0" json:"attempts"`
	LastError      *string      `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
	PaidAt         *time.Time   `json:"paid_at,omitempty"`
}

func (RewardPayout) TableName() string { return "reward_payouts" }

// IdempotencyKeyFor is stable per referral so vendor retries never double pay.
func IdempotencyKeyFor(referralID snowflake.ID) string {
	return fmt.Sprintf("referral-%s", referralID.String())
}
