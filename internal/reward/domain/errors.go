package domain

import "github.com/smallbiznis/referly/internal/errs"

var (
	ErrRewardsDisabled      = errs.New(errs.KindConflict, "rewards_disabled")
	ErrReferralNotComplete  = errs.New(errs.KindConflict, "referral_not_complete")
	ErrAlreadyPaid          = errs.New(errs.KindConflict, "reward_already_paid")
	ErrAttemptsExhausted    = errs.New(errs.KindConflict, "payout_attempts_exhausted")
	ErrRecipientUnreachable = errs.New(errs.KindValidation, "recipient_missing_email")
	ErrPayoutFailed         = errs.New(errs.KindDependency, "payout_failed")
	ErrReferralNotFound     = errs.New(errs.KindNotFound, "referral_not_found")
	ErrForbidden            = errs.New(errs.KindAuthorization, "forbidden")
)
