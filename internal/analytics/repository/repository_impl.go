package repository

import (
	"context"

	"github.com/smallbiznis/referly/internal/analytics/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	if event == nil {
		return nil
	}
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Event, error) {
	var events []*domain.Event
	stmt := db.WithContext(ctx).Model(&domain.Event{}).
		Where("contractor_id = ?", filter.ContractorID)

	if filter.Type != "" {
		stmt = stmt.Where("event_type = ?", filter.Type)
	}
	if filter.ReferralID != nil {
		stmt = stmt.Where("referral_id = ?", *filter.ReferralID)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
