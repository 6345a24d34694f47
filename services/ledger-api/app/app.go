package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/cache"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/database"
	kafkautils "github.com/nimeshabuddhika/resilient-ledger/pkg/kafka"
	middleware "github.com/nimeshabuddhika/resilient-ledger/pkg/middlewares"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/repositories"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/configs"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/handlers"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/observability"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	rateLimitKeyPrefix   = "ledger:rate"
	idempotencyKeyPrefix = "ledger:idem"
	topicInitTimeout     = 30 * time.Second
	readHeaderTimeout    = 5 * time.Second
)

// Build wires dependencies for cfg, builds the Gin engine, and returns an *http.Server and a cleanup func.
// The cleanup closes resources in reverse order of acquisition.
func Build(ctx context.Context, logger *zap.Logger, cfg *configs.Config) (*http.Server, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*http.Server, func(), error) {
		cleanup()
		return nil, nil, err
	}
	checks := map[string]handlers.HealthCheck{}

	// Ledger store
	store, err := openStore(ctx, logger, cfg, &closers, checks)
	if err != nil {
		return fail(err)
	}

	// Optional redis for idempotency keys and distributed rate limiting
	var redisClient *redis.Client
	var idempotency services.IdempotencyStore = services.NewMemoryIdempotencyStore(time.Now)
	if cfg.RedisAddr != "" {
		client, closeRedis, err := cache.New(ctx, logger, cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, closeRedis)
		redisClient = client
		idempotency = services.NewRedisIdempotencyStore(client, idempotencyKeyPrefix)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	// Optional kafka for ledger events
	var publisher services.EventPublisher = services.NoopPublisher{}
	if cfg.KafkaBrokers != "" {
		topics := kafkautils.KafkaConfig{
			BootstrapServers: cfg.KafkaBrokers,
			Topics: []kafkautils.TopicConfig{{
				Topic:             cfg.KafkaTransactionTopic,
				NumPartitions:     int(cfg.KafkaPartition),
				ReplicationFactor: 1,
				Config:            map[string]string{"retention.ms": fmt.Sprint(cfg.KafkaRetention.Milliseconds())},
			}},
		}
		if err := kafkautils.InitKafkaTopics(ctx, logger, topics, topicInitTimeout); err != nil {
			return fail(err)
		}
		producer, closeProducer, err := kafkautils.NewProducer(logger, cfg.KafkaBrokers, cfg.KafkaFlushTimeout)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, closeProducer)
		publisher = services.NewKafkaEventPublisher(logger, producer, cfg.KafkaTransactionTopic, cfg.KafkaPartition)
	}

	// Ledger engine
	fees, err := ledger.NewFeePolicy(ledger.FeeConfig{
		Policy:  cfg.FeePolicy,
		Flat:    cfg.TransferFee,
		Rate:    cfg.FeeRate,
		Minimum: cfg.FeeMinimum,
		Tiers:   cfg.FeeTiers,
	})
	if err != nil {
		return fail(err)
	}
	locker := ledger.NewAccountLocker(cfg.LockTimeout)
	engine := ledger.NewEngine(logger, store,
		ledger.WithFeePolicy(fees),
		ledger.WithLocker(locker),
		ledger.WithRecorder(ledger.NewTransactionRecorder(cfg.CancellationWindow, time.Now)),
		ledger.WithMetrics(observability.LedgerMetrics{}),
	)

	// Setup dependencies
	accountService := services.NewAccountService(logger, store, locker, cfg.AccountNumberAttempts)
	transactionService := services.NewTransactionService(logger, engine, idempotency, cfg.IdempotencyTTL, publisher)
	baseHandler := handlers.NewBaseHandler(logger, checks)
	accountHandler := handlers.NewAccountHandler(logger, accountService)
	transactionHandler := handlers.NewTransactionHandler(logger, transactionService)
	limiter := pkg.NewDistributedLimiter(redisClient, rateLimitKeyPrefix, cfg.RateLimitPerSec, cfg.RateLimitBurst, time.Second, logger)

	// Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceID())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	baseHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	api.Use(middleware.Principal(logger))
	api.Use(middleware.RateLimit(logger, limiter))

	accountHandler.RegisterRoutes(api)
	transactionHandler.RegisterRoutes(api)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: readHeaderTimeout}

	logger.Info("ledger wired",
		zap.String("store", cfg.StoreDriver),
		zap.Bool("redis", redisClient != nil),
		zap.Bool("kafka", cfg.KafkaBrokers != ""),
		zap.String("fee_policy", cfg.FeePolicy))
	return srv, cleanup, nil
}

// openStore returns the UnitOfWork named by cfg.StoreDriver and registers its closer and health check.
func openStore(ctx context.Context, logger *zap.Logger, cfg *configs.Config, closers *[]func(), checks map[string]handlers.HealthCheck) (repositories.UnitOfWork, error) {
	switch pkg.StoreDriver(strings.ToLower(cfg.StoreDriver)) {
	case pkg.StoreDriverPostgres:
		// Run migrations on primary
		if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
			return nil, err
		}
		db, disconnect, err := database.New(ctx, logger, database.Config{
			PrimaryDSN:     cfg.PrimaryDbAddr,
			MaxConns:       cfg.MaxDbCons,
			MinConns:       cfg.MinDbCons,
			ConnectTimeout: cfg.DbConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, disconnect)
		checks["postgres"] = db.Ping
		return repositories.NewPostgresStore(logger, db), nil
	default:
		store := repositories.NewMemoryStore()
		if cfg.SnapshotPath == "" {
			return store, nil
		}
		snap, ok, err := repositories.LoadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := store.Restore(snap); err != nil {
				return nil, err
			}
			logger.Info("ledger snapshot restored",
				zap.String("path", cfg.SnapshotPath),
				zap.Int("accounts", len(snap.Accounts)),
				zap.Int("transactions", len(snap.Transactions)))
		}
		*closers = append(*closers, func() {
			if err := repositories.SaveSnapshot(cfg.SnapshotPath, store.Snapshot()); err != nil {
				logger.Error("failed to save ledger snapshot", zap.String("path", cfg.SnapshotPath), zap.Error(err))
				return
			}
			logger.Info("ledger snapshot saved", zap.String("path", cfg.SnapshotPath))
		})
		return store, nil
	}
}
