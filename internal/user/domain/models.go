package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleContractor        Role = "contractor"
	RoleExistingHomeowner Role = "existing_homeowner"
	RoleReferredHomeowner Role = "referred_homeowner"
)

// ParseRole rejects anything outside the closed role set.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleContractor, RoleExistingHomeowner, RoleReferredHomeowner:
		return Role(raw), nil
	default:
		return "", ErrInvalidRole
	}
}

func (r Role) IsHomeowner() bool {
	switch r {
	case RoleExistingHomeowner, RoleReferredHomeowner:
		return true
	case RoleContractor:
		return false
	default:
		return false
	}
}

type User struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email        string        `gorm:"type:text;not null;uniqueIndex" json:"email"`
	PasswordHash *string       `gorm:"type:text" json:"-"`
	DisplayName  string        `gorm:"type:text;not null" json:"display_name"`
	Role         Role          `gorm:"type:text;not null;index" json:"role"`
	CompanyName  *string       `gorm:"type:text" json:"company_name,omitempty"`
	Address      *string       `gorm:"type:text" json:"address,omitempty"`
	Phone        *string       `gorm:"type:text" json:"phone,omitempty"`
	ReferralCode *string       `gorm:"type:text;uniqueIndex" json:"referral_code,omitempty"`
	ContractorID *snowflake.ID `gorm:"index" json:"contractor_id,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// BelongsTo reports whether a homeowner was onboarded by contractorID.
func (u User) BelongsTo(contractorID snowflake.ID) bool {
	return u.ContractorID != nil && *u.ContractorID == contractorID
}

// Company returns the contractor's company name, falling back to the display name.
func (u User) Company() string {
	if u.CompanyName != nil && *u.CompanyName != "" {
		return *u.CompanyName
	}
	return u.DisplayName
}
