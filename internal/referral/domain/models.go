package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
)

type Referral struct {
	ID                      snowflake.ID     `gorm:"primaryKey" json:"id"`
	ReferralCode            string           `gorm:"type:text;not null;uniqueIndex" json:"referral_code"`
	ContractorID            snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_referrals_contractor_address,where:referred_address_key IS NOT NULL" json:"contractor_id"`
	ReferrerID              snowflake.ID     `gorm:"not null;index" json:"referrer_id"`
	ReferredID              *snowflake.ID    `json:"referred_id,omitempty"`
	ReferredCustomerAddress *string          `gorm:"type:text" json:"referred_customer_address,omitempty"`
	ReferredAddressKey      *string          `gorm:"type:text;uniqueIndex:ux_referrals_contractor_address,where:referred_address_key IS NOT NULL" json:"-"`
	ReferredEmail           *string          `gorm:"type:text" json:"referred_email,omitempty"`
	ReferredPhone           *string          `gorm:"type:text" json:"referred_phone,omitempty"`
	Status                  lifecycle.Status `gorm:"type:text;not null;index" json:"status"`
	Verified                bool             `gorm:"not null;default:false" json:"verified"`
	InstallationDate        *time.Time       `json:"installation_date,omitempty"`
	Version                 int64            `gorm:"not null;default:1" json:"version"`
	CreatedAt               time.Time        `gorm:"not null;<-:create" json:"created_at"`
	UpdatedAt               time.Time        `gorm:"not null" json:"updated_at"`
	VerifiedAt              *time.Time       `json:"verified_at,omitempty"`
}

func (Referral) TableName() string { return "referrals" }

// Refresh re-derives Status for today and reports whether it changed.
func (r *Referral) Refresh(today time.Time) bool {
	next := lifecycle.Evaluate(r.InstallationDate, r.Verified, today)
	if next == r.Status {
		return false
	}
	r.Status = next
	return true
}

// IsConverted reports whether the referral counts as a conversion.
func (r Referral) IsConverted() bool {
	return r.Status == lifecycle.StatusComplete
}

// AddressKey is the comparison form of an address: trimmed, internal
// whitespace collapsed, lower-cased. Empty input yields nil.
func AddressKey(address string) *string {
	fields := strings.Fields(address)
	if len(fields) == 0 {
		return nil
	}
	key := strings.ToLower(strings.Join(fields, " "))
	return &key
}
