package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/referly/internal/config"
)

const keyPublicLookup = "referral:lookup:%s"

// PublicLookupLimiter throttles anonymous referral-code lookups per client.
// Without redis every request is allowed.
type PublicLookupLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewPublicLookupLimiter(cfg config.Config, bucket *TokenBucket) (*PublicLookupLimiter, error) {
	if bucket == nil {
		return &PublicLookupLimiter{}, nil
	}
	if cfg.RateLimit.PublicLookupRate <= 0 || cfg.RateLimit.PublicLookupBurst <= 0 {
		return nil, errors.New("public lookup rate limit must be positive")
	}
	return &PublicLookupLimiter{
		bucket: bucket,
		rate:   cfg.RateLimit.PublicLookupRate,
		burst:  cfg.RateLimit.PublicLookupBurst,
	}, nil
}

func (l *PublicLookupLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *PublicLookupLimiter) Allow(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "anonymous"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPublicLookup, clientKey), l.rate, l.burst)
}
