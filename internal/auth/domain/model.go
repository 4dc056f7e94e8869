// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
)

// Session represents a persisted login session.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// Usable reports why a session can no longer authenticate, if it cannot.
// Revocation wins over expiry.
func (s Session) Usable(now time.Time) error {
	if s.RevokedAt != nil {
		return ErrSessionRevoked
	}
	if now.After(s.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}

type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	CompanyName string
	Phone       string
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	User      userdomain.User
	RawToken  string
	ExpiresAt time.Time
	SessionID snowflake.ID
}

// Principal is an authenticated session joined with its account.
type Principal struct {
	Session Session
	User    userdomain.User
}
