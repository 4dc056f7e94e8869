package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referly/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) ListByContractor(ctx context.Context, db *gorm.DB, contractorID snowflake.ID, role domain.Role) ([]*domain.User, error) {
	var users []*domain.User
	stmt := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("contractor_id = ?", contractorID)
	if role != "" {
		stmt = stmt.Where("role = ?", role)
	}
	if err := stmt.Order("id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ReferralCodeExists checks standing codes and issued referral codes, which
// share one namespace.
func (r *repo) ReferralCodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("referral_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	err = db.WithContext(ctx).
		Table("referrals").
		Where("referral_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
