package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Delete only while the stored token is ours, so a lease that outlived its
// TTL cannot drop the next holder's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrLockHeld = errors.New("lock held by another owner")

// Locker hands out single-holder leases on redis keys. It serialises writes
// to one referral and keeps scheduler sweeps to one instance.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, release: redis.NewScript(releaseScript)}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Lease is a held lock. A nil Lease releases as a no-op.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes key for ttl. It returns ErrLockHeld when someone else holds
// it and (nil, nil) when no redis is configured.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if !l.Enabled() {
		return nil, nil
	}
	if key == "" || ttl <= 0 {
		return nil, errors.New("lock needs a key and a positive ttl")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{locker: l, key: key, token: token}, nil
}

func (ls *Lease) Release(ctx context.Context) error {
	if ls == nil {
		return nil
	}
	return ls.locker.release.Run(ctx, ls.locker.client, []string{ls.key}, ls.token).Err()
}
