package redisinfra

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const allowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// OTPRateLimiter caps how many codes one phone number may request per window.
// It fails open: a Redis outage never blocks sign-in.
type OTPRateLimiter struct {
	client evaler
	window time.Duration
	max    int
	prefix string
}

// NewOTPRateLimiter returns nil when client is nil; a nil limiter allows everything.
func NewOTPRateLimiter(client *redis.Client, window time.Duration, max int) *OTPRateLimiter {
	if client == nil {
		return nil
	}
	return newOTPRateLimiter(client, window, max)
}

func newOTPRateLimiter(client evaler, window time.Duration, max int) *OTPRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &OTPRateLimiter{client: client, window: window, max: max, prefix: "wave:otp:rl:"}
}

func (l *OTPRateLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, allowScript, []string{l.prefix + key}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
