package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateReferralRequest struct {
	ContractorID    snowflake.ID
	ReferrerID      snowflake.ID
	ReferredAddress string
	ReferredEmail   string
	ReferredPhone   string
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	ReferredID              *snowflake.ID
	ReferredCustomerAddress *string
	ReferredEmail           *string
	ReferredPhone           *string
	Verified                *bool
	InstallationDate        *time.Time
	// ClearInstallationDate unsets the date, returning the referral to pending.
	ClearInstallationDate bool
	// ExpectedVersion, when set, rejects the patch if the referral changed
	// since the caller read it.
	ExpectedVersion *int64
}

func (p Patch) IsEmpty() bool {
	return p.ReferredID == nil &&
		p.ReferredCustomerAddress == nil &&
		p.ReferredEmail == nil &&
		p.ReferredPhone == nil &&
		p.Verified == nil &&
		p.InstallationDate == nil &&
		!p.ClearInstallationDate
}

type VerifyRequest struct {
	Code string
	// ContractorID, when set, limits verification to that contractor's codes.
	ContractorID     snowflake.ID
	ReferredID       *snowflake.ID
	ReferredAddress  string
	InstallationDate time.Time
	// Verified defaults to true; false only records the installation date.
	Verified *bool
}

// PublicReferral is what an anonymous visitor may learn about a code.
type PublicReferral struct {
	ReferralCode string `json:"referral_code"`
	CompanyName  string `json:"company_name"`
	Valid        bool   `json:"valid"`
}

type Service interface {
	CreateReferral(ctx context.Context, req CreateReferralRequest) (Referral, error)
	ListByContractor(ctx context.Context, contractorID snowflake.ID) ([]Referral, error)
	ListByReferrer(ctx context.Context, referrerID snowflake.ID) ([]Referral, error)
	GetByID(ctx context.Context, id snowflake.ID) (Referral, error)
	GetByCode(ctx context.Context, code string) (Referral, error)
	LookupPublic(ctx context.Context, code string) (PublicReferral, error)
	UpdateReferral(ctx context.Context, id snowflake.ID, patch Patch) (Referral, error)
	Verify(ctx context.Context, req VerifyRequest) (Referral, error)
	// PromoteDue persists status promotions of referrals whose installation
	// day has arrived and returns the affected contractors.
	PromoteDue(ctx context.Context, limit int) ([]snowflake.ID, error)
}
