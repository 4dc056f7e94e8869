// Package actorcontext carries the authenticated account through request contexts.
package actorcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/referly/internal/user/domain"
)

type Actor struct {
	UserID snowflake.ID
	Role   userdomain.Role
	// ContractorID is the user's own ID for contractors and the issuing contractor for homeowners.
	ContractorID snowflake.ID
}

func (a Actor) IsContractor() bool {
	return a.Role == userdomain.RoleContractor
}

type actorContextKey struct{}

// ActorFor derives the request actor from a stored account.
func ActorFor(user userdomain.User) Actor {
	actor := Actor{UserID: user.ID, Role: user.Role}
	switch user.Role {
	case userdomain.RoleContractor:
		actor.ContractorID = user.ID
	case userdomain.RoleExistingHomeowner, userdomain.RoleReferredHomeowner:
		if user.ContractorID != nil {
			actor.ContractorID = *user.ContractorID
		}
	}
	return actor
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor, if set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.UserID == 0 {
		return Actor{}, false
	}
	return actor, true
}
