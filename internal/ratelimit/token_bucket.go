package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// gcraScript is the generic cell rate algorithm: a token bucket stored as a
// single "theoretical arrival time" per key. All times are milliseconds from
// the redis clock, so replicas with skewed clocks agree.
const gcraScript = `
local emission = tonumber(ARGV[1])
local tolerance = emission * tonumber(ARGV[2])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local tat = tonumber(redis.call("GET", KEYS[1]))
if tat == nil or tat < now then
  tat = now
end

local next_tat = tat + emission
local allow_at = next_tat - tolerance
if allow_at > now then
  return {0, tostring(allow_at - now), tostring((tolerance - (tat - now)) / emission)}
end

redis.call("SET", KEYS[1], tostring(next_tat), "PX", math.ceil(next_tat - now))
return {1, "0", tostring((tolerance - (next_tat - now)) / emission)}
`

var ErrLimiterNotConfigured = errors.New("rate limiter not configured")

// TokenBucket enforces rate/burst limits per key in redis.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(gcraScript)}
}

// Allow spends one token from key's bucket, which refills at rate tokens per
// second up to burst.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	switch {
	case t == nil || t.client == nil:
		return nil, ErrLimiterNotConfigured
	case key == "":
		return nil, errors.New("rate limiter key is empty")
	case rate <= 0 || burst <= 0:
		return nil, fmt.Errorf("rate limiter needs positive rate and burst, got %v/%d", rate, burst)
	}

	emissionMs := 1000 / rate
	reply, err := t.script.Run(ctx, t.client, []string{key},
		strconv.FormatFloat(emissionMs, 'f', -1, 64),
		burst,
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("unexpected rate limit reply: %v", reply)
	}

	allowed, _ := reply[0].(int64)
	waitMs := parseFloatReply(reply[1])
	remaining := int(parseFloatReply(reply[2]))

	return &RateLimitResult{
		Allowed:    allowed == 1,
		Limit:      burst,
		Remaining:  max(remaining, 0),
		RetryAfter: time.Duration(waitMs * float64(time.Millisecond)),
	}, nil
}

func parseFloatReply(v any) float64 {
	s, _ := v.(string)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
