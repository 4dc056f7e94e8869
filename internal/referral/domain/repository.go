package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, referral *Referral) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Referral, error)
	// FindByIDForUpdate takes a row lock where the dialect supports it.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Referral, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Referral, error)
	ListByContractor(ctx context.Context, db *gorm.DB, contractorID snowflake.ID) ([]*Referral, error)
	ListByReferrer(ctx context.Context, db *gorm.DB, referrerID snowflake.ID) ([]*Referral, error)
	// ListDuePromotions returns wait_for_install rows whose installation date is before cutoff.
	ListDuePromotions(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*Referral, error)
	AddressTaken(ctx context.Context, db *gorm.DB, contractorID snowflake.ID, addressKey string, excludeID snowflake.ID) (bool, error)
	CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error)
	// UpdateVersioned writes referral if the stored version still equals
	// expectedVersion, and reports whether a row was written.
	UpdateVersioned(ctx context.Context, db *gorm.DB, referral *Referral, expectedVersion int64) (bool, error)
}
