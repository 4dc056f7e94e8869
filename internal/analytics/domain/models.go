package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/pkg/db/pagination"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventReferralCreated    EventType = "referral_created"
	EventReferralUpdated    EventType = "referral_updated"
	EventReferralVerified   EventType = "referral_verified"
	EventRewardPaid         EventType = "reward_paid"
	EventRewardFailed       EventType = "reward_failed"
	EventNotificationFailed EventType = "notification_failed"
)

func ParseEventType(raw string) (EventType, bool) {
	switch EventType(raw) {
	case EventReferralCreated, EventReferralUpdated, EventReferralVerified,
		EventRewardPaid, EventRewardFailed, EventNotificationFailed:
		return EventType(raw), true
	default:
		return "", false
	}
}

type Event struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	ContractorID  snowflake.ID      `gorm:"not null;index" json:"contractor_id"`
	Type          EventType         `gorm:"column:event_type;type:text;not null;index" json:"event_type"`
	ReferralID    *snowflake.ID     `gorm:"index" json:"referral_id,omitempty"`
	ActorID       *snowflake.ID     `json:"actor_id,omitempty"`
	ActorRole     *string           `gorm:"type:text" json:"actor_role,omitempty"`
	CorrelationID string            `gorm:"type:text;not null" json:"correlation_id"`
	Data          datatypes.JSONMap `json:"data"`
	CreatedAt     time.Time         `gorm:"not null;index" json:"created_at"`
}

func (Event) TableName() string { return "analytics_events" }

type ListFilter struct {
	ContractorID snowflake.ID
	Type         EventType
	ReferralID   *snowflake.ID
	StartAt      *time.Time
	EndAt        *time.Time
	Cursor       *pagination.Cursor
	Limit        int
}
