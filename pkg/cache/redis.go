package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout     = 3 * time.Second
	defaultIOTimeout       = 2 * time.Second
	defaultPoolSize        = 10
	defaultMinIdleConns    = 2
	defaultMaxRetries      = 3
	defaultMinRetryBackoff = 50 * time.Millisecond
	defaultMaxRetryBackoff = 500 * time.Millisecond
)

// Config holds the Redis options used for idempotency keys and rate-limit counters.
// Zero values fall back to the defaults above.
type Config struct {
	Addr            string
	Username        string
	Password        string
	DB              int
	UseTLS          bool
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

func (c Config) options() *redis.Options {
	opts := &redis.Options{
		Addr:            c.Addr,
		Username:        c.Username,
		Password:        c.Password,
		DB:              c.DB,
		DialTimeout:     orDuration(c.DialTimeout, defaultDialTimeout),
		ReadTimeout:     orDuration(c.ReadTimeout, defaultIOTimeout),
		WriteTimeout:    orDuration(c.WriteTimeout, defaultIOTimeout),
		PoolSize:        orInt(c.PoolSize, defaultPoolSize),
		MinIdleConns:    orInt(c.MinIdleConns, defaultMinIdleConns),
		MaxRetries:      orInt(c.MaxRetries, defaultMaxRetries),
		MinRetryBackoff: orDuration(c.MinRetryBackoff, defaultMinRetryBackoff),
		MaxRetryBackoff: orDuration(c.MaxRetryBackoff, defaultMaxRetryBackoff),
	}
	if c.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// New returns a redis.Client that answered PING, and its closer.
func New(ctx context.Context, logger *zap.Logger, cfg Config) (*redis.Client, func(), error) {
	client := redis.NewClient(cfg.options())
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	logger.Info("Redis client connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))

	closer := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Redis client close failed", zap.Error(err))
			return
		}
		logger.Info("Redis client closed")
	}
	return client, closer, nil
}

func orDuration(v, d time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return d
}

func orInt(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}
