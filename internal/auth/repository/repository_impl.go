package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/auth/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.SessionRepository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, session *domain.Session) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.Session, error) {
	var session domain.Session
	err := db.WithContext(ctx).Where("session_token_hash = ?", tokenHash).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repo) Touch(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, seenAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("last_seen_at", seenAt).Error
}

// Revoke reports false when the session was already revoked or does not exist.
func (r *repo) Revoke(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, revokedAt time.Time) (bool, error) {
	tx := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", revokedAt)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *repo) DeleteExpired(ctx context.Context, db *gorm.DB, before time.Time, limit int) (int64, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("expires_at < ? OR revoked_at < ?", before, before).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	tx := db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Session{})
	return tx.RowsAffected, tx.Error
}
