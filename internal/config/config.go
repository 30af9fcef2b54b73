package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr        string        `env:"GRPC_ADDR" envDefault:":50051"`
	MySQLDSN        string        `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/tantovale?parseTime=true"`
	MigrationsDir   string        `env:"MIGRATIONS_DIR" envDefault:"internal/adapter/storage/migrations"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic      string        `env:"KAFKA_TOPIC" envDefault:"order-lifecycle"`
	JWTSecret       string        `env:"JWT_SECRET,required,notEmpty"`
	SessionCookie   string        `env:"SESSION_COOKIE" envDefault:"tantovale_session"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	WorkerCount     int           `env:"WORKER_COUNT" envDefault:"4"`
	EventQueueSize  int           `env:"EVENT_QUEUE_SIZE" envDefault:"1024"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.EventQueueSize < 0 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must not be negative, got %d", c.EventQueueSize)
	}
	return nil
}
