package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for ledger-api.
type Config struct {
	Port                  string        `mapstructure:"PORT" validate:"required"`
	StoreDriver           string        `mapstructure:"STORE_DRIVER" validate:"oneof=memory postgres"`
	PrimaryDbAddr         string        `mapstructure:"PRIMARY_DB_ADDR" validate:"required_if=StoreDriver postgres"`
	MaxDbCons             int32         `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons             int32         `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1,ltefield=MaxDbCons"`
	DbConnectTimeout      time.Duration `mapstructure:"DB_CONNECT_TIMEOUT" validate:"gt=0"`
	SnapshotPath          string        `mapstructure:"SNAPSHOT_PATH"` // memory driver only
	RedisAddr             string        `mapstructure:"REDIS_ADDR"`
	RedisPassword         string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB               int           `mapstructure:"REDIS_DB" validate:"min=0"`
	KafkaBrokers          string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTransactionTopic string        `mapstructure:"KAFKA_TRANSACTION_TOPIC" validate:"required_with=KafkaBrokers"`
	KafkaPartition        int32         `mapstructure:"KAFKA_PARTITION" validate:"min=1"`
	KafkaRetention        time.Duration `mapstructure:"KAFKA_RETENTION" validate:"gt=0"`
	KafkaFlushTimeout     time.Duration `mapstructure:"KAFKA_FLUSH_TIMEOUT" validate:"gt=0"`
	TransferFee           string        `mapstructure:"TRANSFER_FEE" validate:"required,numeric"`
	FeePolicy             string        `mapstructure:"FEE_POLICY" validate:"oneof=flat percentage tiered"`
	FeeRate               string        `mapstructure:"FEE_RATE" validate:"required_if=FeePolicy percentage"`
	FeeMinimum            string        `mapstructure:"FEE_MINIMUM"`
	FeeTiers              string        `mapstructure:"FEE_TIERS" validate:"required_if=FeePolicy tiered"`
	LockTimeout           time.Duration `mapstructure:"LOCK_TIMEOUT" validate:"gt=0"`
	CancellationWindow    time.Duration `mapstructure:"CANCELLATION_WINDOW" validate:"gt=0"`
	IdempotencyTTL        time.Duration `mapstructure:"IDEMPOTENCY_TTL" validate:"gt=0"`
	RateLimitPerSec       int           `mapstructure:"RATE_LIMIT_PER_SEC" validate:"min=0"` // 0 disables
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST" validate:"min=0"`
	AccountNumberAttempts int           `mapstructure:"ACCOUNT_NUMBER_ATTEMPTS" validate:"min=1,max=100"`
	ShutdownTimeout       time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

func Load(logger *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("app") // Prefix for env vars
	v.AutomaticEnv()

	// Default values
	v.SetDefault("PORT", "8080")
	v.SetDefault("STORE_DRIVER", "memory")
	v.SetDefault("MAX_DB_CONNECTIONS", "10")
	v.SetDefault("MIN_DB_CONNECTIONS", "2")
	v.SetDefault("DB_CONNECT_TIMEOUT", "30s")
	v.SetDefault("REDIS_DB", "0")
	v.SetDefault("KAFKA_TRANSACTION_TOPIC", "ledger.transactions")
	v.SetDefault("KAFKA_PARTITION", "4")
	v.SetDefault("KAFKA_RETENTION", "168h")
	v.SetDefault("KAFKA_FLUSH_TIMEOUT", "5s")
	v.SetDefault("TRANSFER_FEE", "100")
	v.SetDefault("FEE_POLICY", "flat")
	v.SetDefault("LOCK_TIMEOUT", "2s")
	v.SetDefault("CANCELLATION_WINDOW", "1h")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("RATE_LIMIT_PER_SEC", "0")
	v.SetDefault("RATE_LIMIT_BURST", "0")
	v.SetDefault("ACCOUNT_NUMBER_ATTEMPTS", "10")
	v.SetDefault("SHUTDOWN_TIMEOUT", "5s")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		v.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running in test mode")
		v.SetConfigName("config.test")
	} else {
		logger.Warn("running in development mode")
		v.SetConfigName("config.dev")
	}
	v.SetConfigType("yaml")
	v.AddConfigPath("./services/ledger-api/configs")
	_ = v.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(v, &cfg); err != nil {
		return nil, err
	}
	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
