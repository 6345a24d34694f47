package pkg

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Errors
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// DistributedLimiter combines a local rate.Limiter with a per-subject Redis window counter.
// Without a Redis client only the local limiter is enforced.
type DistributedLimiter struct {
	localLimiter *rate.Limiter
	redisClient  *redis.Client
	keyPrefix    string        // e.g: "ledger:rate"
	window       time.Duration // counter expiry, e.g: 1s
	perWindow    int64         // max requests per subject inside one window
	logger       *zap.Logger
}

// NewDistributedLimiter creates a limiter; if ratePerSec=0, it's unlimited.
func NewDistributedLimiter(redisClient *redis.Client, keyPrefix string, ratePerSec, burst int, window time.Duration, logger *zap.Logger) *DistributedLimiter {
	var local *rate.Limiter
	if ratePerSec > 0 {
		local = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	if window <= 0 {
		window = time.Second
	}
	perWindow := int64(float64(ratePerSec)*window.Seconds()) + int64(burst)
	return &DistributedLimiter{
		localLimiter: local,
		redisClient:  redisClient,
		keyPrefix:    keyPrefix,
		window:       window,
		perWindow:    perWindow,
		logger:       logger,
	}
}

// Allow checks if a token is available for subject.
func (d *DistributedLimiter) Allow(ctx context.Context, subject string) bool {
	if d.localLimiter == nil {
		return true // Unlimited
	}

	// Local check first (fast path)
	if !d.localLimiter.Allow() {
		return false
	}
	if d.redisClient == nil {
		return true
	}

	// Distributed check via Redis atomic increment
	key := d.keyPrefix + ":" + subject
	pipe := d.redisClient.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, d.window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		d.logger.Error("redis rate limit error; falling back to local", zap.Error(err))
		return true
	}

	count := incr.Val()
	if count > d.perWindow {
		d.logger.Warn("rate limit exceeded", zap.String("subject", subject), zap.Int64("count", count))
		return false
	}
	return true
}
