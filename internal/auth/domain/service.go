package domain

import (
	"context"
	"time"

	userdomain "github.com/smallbiznis/referly/internal/user/domain"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (userdomain.User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Principal, error)
	// PurgeExpiredSessions deletes up to limit sessions that expired or were
	// revoked before cutoff.
	PurgeExpiredSessions(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
