package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SessionRepository returns (nil, nil) when a lookup finds no row.
type SessionRepository interface {
	Insert(ctx context.Context, db *gorm.DB, session *Session) error
	FindByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*Session, error)
	Touch(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, seenAt time.Time) error
	Revoke(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, revokedAt time.Time) (bool, error)
	DeleteExpired(ctx context.Context, db *gorm.DB, before time.Time, limit int) (int64, error)
}
