package domain

import (
	"errors"

	"github.com/smallbiznis/referly/internal/errs"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errs.New(errs.KindValidation, "weak_password")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrInvalidSession     = errors.New("invalid session")
)
