package authorization

import (
	"context"

	"github.com/smallbiznis/referly/internal/actorcontext"
	"github.com/smallbiznis/referly/internal/errs"
)

var (
	ErrInvalidActor  = errs.New(errs.KindAuthorization, "invalid_actor")
	ErrInvalidObject = errs.New(errs.KindValidation, "invalid_object")
	ErrInvalidAction = errs.New(errs.KindValidation, "invalid_action")
	ErrForbidden     = errs.New(errs.KindAuthorization, "forbidden")
)

// Service answers whether an actor may perform action on object.
type Service interface {
	Authorize(ctx context.Context, actor actorcontext.Actor, object string, action string) error
}
