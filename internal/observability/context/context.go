package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey    ctxKey = "obs_request_id"
	contractorIDKey ctxKey = "obs_contractor_id"
	actorRoleKey    ctxKey = "obs_actor_role"
	actorIDKey      ctxKey = "obs_actor_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithContractorID(ctx context.Context, contractorID string) context.Context {
	return context.WithValue(ctx, contractorIDKey, strings.TrimSpace(contractorID))
}

func ContractorIDFromContext(ctx context.Context) string {
	return stringValue(ctx, contractorIDKey)
}

func WithActor(ctx context.Context, role, id string) context.Context {
	ctx = context.WithValue(ctx, actorRoleKey, strings.TrimSpace(role))
	return context.WithValue(ctx, actorIDKey, strings.TrimSpace(id))
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, actorRoleKey), stringValue(ctx, actorIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
