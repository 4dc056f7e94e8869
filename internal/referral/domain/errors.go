package domain

import "github.com/smallbiznis/referly/internal/errs"

var (
	ErrInvalidContractor  = errs.New(errs.KindAuthorization, "invalid_contractor")
	ErrInvalidReferrer    = errs.New(errs.KindAuthorization, "invalid_referrer")
	ErrInvalidCode        = errs.New(errs.KindValidation, "invalid_referral_code")
	ErrInvalidAddress     = errs.New(errs.KindValidation, "invalid_address")
	ErrInvalidEmail       = errs.New(errs.KindValidation, "invalid_email")
	ErrInvalidInstallDate = errs.New(errs.KindValidation, "invalid_installation_date")
	ErrEmptyPatch         = errs.New(errs.KindValidation, "empty_patch")
	ErrDuplicateAddress   = errs.New(errs.KindConflict, "duplicate_address")
	ErrAlreadyVerified    = errs.New(errs.KindConflict, "already_verified")
	ErrStaleWrite         = errs.NewRetryable(errs.KindConflict, "stale_write")
	ErrVersionRequired    = errs.New(errs.KindConflict, "expected_version_required")
	ErrLocked             = errs.New(errs.KindUnavailable, "referral_locked")
	ErrNotFound           = errs.New(errs.KindNotFound, "referral_not_found")
	ErrForbidden          = errs.New(errs.KindAuthorization, "forbidden")
)
