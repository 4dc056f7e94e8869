package domain

import "github.com/smallbiznis/referly/internal/errs"

var (
	ErrInvalidRole       = errs.New(errs.KindValidation, "invalid_role")
	ErrInvalidEmail      = errs.New(errs.KindValidation, "invalid_email")
	ErrInvalidName       = errs.New(errs.KindValidation, "invalid_name")
	ErrInvalidContractor = errs.New(errs.KindValidation, "invalid_contractor")
	ErrInvalidImport     = errs.New(errs.KindValidation, "invalid_import")
	ErrUserExists        = errs.New(errs.KindConflict, "user_exists")
	ErrNotFound          = errs.New(errs.KindNotFound, "user_not_found")
	ErrForbidden         = errs.New(errs.KindAuthorization, "forbidden")
)
