package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ReferralMetric is the per-contractor snapshot derived from referrals.
// ConversionRateBP is the percentage in basis points: 12.34% is 1234.
type ReferralMetric struct {
	ContractorID            snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	TotalReferrals          int64        `gorm:"not null"`
	ConvertedReferrals      int64        `gorm:"not null"`
	ConversionRateBP        int64        `gorm:"column:conversion_rate;not null"`
	AverageTimeToConversion *int64
	SourceUpdatedAt         *time.Time
	ComputedOn              time.Time `gorm:"not null"`
	UpdatedAt               time.Time `gorm:"not null"`
}

func (ReferralMetric) TableName() string { return "referral_metrics" }

// ConversionRate renders the rate with two decimals, e.g. "66.67".
func (m ReferralMetric) ConversionRate() string {
	return fmt.Sprintf("%d.%02d", m.ConversionRateBP/100, m.ConversionRateBP%100)
}

// SameFigures reports whether two snapshots carry identical computed values.
func (m ReferralMetric) SameFigures(other ReferralMetric) bool {
	return m.ContractorID == other.ContractorID &&
		m.TotalReferrals == other.TotalReferrals &&
		m.ConvertedReferrals == other.ConvertedReferrals &&
		m.ConversionRateBP == other.ConversionRateBP &&
		equalInt64Ptr(m.AverageTimeToConversion, other.AverageTimeToConversion) &&
		equalTimePtr(m.SourceUpdatedAt, other.SourceUpdatedAt) &&
		m.ComputedOn.Equal(other.ComputedOn)
}

func (m ReferralMetric) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ContractorID            string    `json:"contractor_id"`
		TotalReferrals          int64     `json:"total_referrals"`
		ConvertedReferrals      int64     `json:"converted_referrals"`
		ConversionRate          string    `json:"conversion_rate"`
		AverageTimeToConversion *int64    `json:"average_time_to_conversion"`
		UpdatedAt               time.Time `json:"updated_at"`
	}{
		ContractorID:            m.ContractorID.String(),
		TotalReferrals:          m.TotalReferrals,
		ConvertedReferrals:      m.ConvertedReferrals,
		ConversionRate:          m.ConversionRate(),
		AverageTimeToConversion: m.AverageTimeToConversion,
		UpdatedAt:               m.UpdatedAt,
	})
}

// Sample is the slice of a referral the aggregator needs.
type Sample struct {
	InstallationDate *time.Time
	Verified         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
