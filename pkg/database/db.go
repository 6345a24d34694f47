package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config holds database connection details.
type Config struct {
	PrimaryDSN string // host:port/db?sslmode=disable with credentials, without the scheme
	MaxConns   int32
	MinConns   int32
	// ConnectTimeout bounds the total time spent retrying the first connection.
	ConnectTimeout time.Duration
}

// DB wraps the primary pool. Every ledger read and write goes to the primary.
type DB struct {
	writer *pgxpool.Pool
}

// New creates a DB with a connection pool, retrying with exponential backoff until ConnectTimeout.
func New(ctx context.Context, logger *zap.Logger, cfg Config) (*DB, func(), error) {
	var writer *pgxpool.Pool
	operation := func() error {
		pool, err := newPool(ctx, logger, cfg.PrimaryDSN, cfg.MaxConns, cfg.MinConns)
		if err != nil {
			logger.Warn("postgres not ready, retrying", zap.Error(err))
			return err
		}
		writer = pool
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.ConnectTimeout
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 30 * time.Second
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	closer := func() {
		writer.Close()
		logger.Info("PostgreSQL connection pool closed")
	}
	return &DB{writer: writer}, closer, nil
}

func newPool(ctx context.Context, logger *zap.Logger, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	dsn = fmt.Sprintf("postgres://%s", dsn)
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	if minConns > 0 {
		config.MinConns = minConns
	}
	config.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Debug("postgreSQL_connection_pool_established", zap.String("dsn", maskDSN(dsn)))
	return pool, nil
}

// maskDSN hides the password of a postgres URL.
func maskDSN(dsn string) string {
	parts := strings.SplitN(dsn, "@", 2)
	if len(parts) < 2 {
		return dsn
	}
	auth := strings.SplitN(parts[0], "://", 2)
	if len(auth) < 2 {
		return dsn
	}
	user := strings.SplitN(auth[1], ":", 2)
	if len(user) < 2 {
		return dsn
	}
	return auth[0] + "://" + user[0] + ":*****@" + parts[1]
}

// WithTransaction runs fn in a transaction; commits if no error, rolls back otherwise. Recovers panics.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := db.writer.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	err = fn(ctx, tx)
	return err
}

// Ping checks the primary is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.writer.Ping(ctx)
}
