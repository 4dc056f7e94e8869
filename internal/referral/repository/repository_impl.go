package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/referral/domain"
	"github.com/smallbiznis/referly/internal/referral/lifecycle"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, referral *domain.Referral) error {
	return db.WithContext(ctx).Create(referral).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Referral, error) {
	return r.first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Referral, error) {
	stmt := db.WithContext(ctx)
	if supportsRowLocks(db) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(stmt.Where("id = ?", id))
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Referral, error) {
	return r.first(db.WithContext(ctx).Where("referral_code = ?", code))
}

func (r *repo) ListByContractor(ctx context.Context, db *gorm.DB, contractorID snowflake.ID) ([]*domain.Referral, error) {
	var items []*domain.Referral
	err := db.WithContext(ctx).
		Where("contractor_id = ?", contractorID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByReferrer(ctx context.Context, db *gorm.DB, referrerID snowflake.ID) ([]*domain.Referral, error) {
	var items []*domain.Referral
	err := db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListDuePromotions(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*domain.Referral, error) {
	var items []*domain.Referral
	err := db.WithContext(ctx).
		Where("status = ? AND installation_date IS NOT NULL AND installation_date < ?", lifecycle.StatusWaitForInstall, cutoff).
		Order("id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AddressTaken(ctx context.Context, db *gorm.DB, contractorID snowflake.ID, addressKey string, excludeID snowflake.ID) (bool, error) {
	var count int64
	stmt := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Where("contractor_id = ? AND referred_address_key = ?", contractorID, addressKey)
	if excludeID != 0 {
		stmt = stmt.Where("id <> ?", excludeID)
	}
	if err := stmt.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CodeExists checks both referral codes and homeowners' standing codes, which
// share one namespace.
func (r *repo) CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Where("referral_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	err = db.WithContext(ctx).
		Table("users").
		Where("referral_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) UpdateVersioned(ctx context.Context, db *gorm.DB, referral *domain.Referral, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Where("id = ? AND version = ?", referral.ID, expectedVersion).
		Updates(map[string]any{
			"referred_id":               referral.ReferredID,
			"referred_customer_address": referral.ReferredCustomerAddress,
			"referred_address_key":      referral.ReferredAddressKey,
			"referred_email":            referral.ReferredEmail,
			"referred_phone":            referral.ReferredPhone,
			"status":                    referral.Status,
			"verified":                  referral.Verified,
			"installation_date":         referral.InstallationDate,
			"verified_at":               referral.VerifiedAt,
			"version":                   referral.Version,
			"updated_at":                referral.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) first(stmt *gorm.DB) (*domain.Referral, error) {
	var referral domain.Referral
	err := stmt.First(&referral).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &referral, nil
}

func supportsRowLocks(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
