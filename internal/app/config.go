package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config описывает настройки запуска сервиса; все значения читаются из
// переменных окружения.
type Config struct {
	MetricsAddr  string   `env:"OFS_METRICS_ADDR" envDefault:":9090"`
	DatabaseDSN  string   `env:"OFS_DATABASE_DSN"`
	KafkaBrokers []string `env:"OFS_KAFKA_BROKERS" envSeparator:","`

	SweepInitialDelay time.Duration `env:"OFS_SWEEP_INITIAL_DELAY" envDefault:"30s"`
	SweepInterval     time.Duration `env:"OFS_SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatchSize    int           `env:"OFS_SWEEP_BATCH_SIZE" envDefault:"50"`
	SweepConcurrency  int           `env:"OFS_SWEEP_CONCURRENCY" envDefault:"4"`

	RetryBaseDelay   time.Duration `env:"OFS_RETRY_BASE_DELAY" envDefault:"1m"`
	RetryMaxDelay    time.Duration `env:"OFS_RETRY_MAX_DELAY" envDefault:"6h"`
	RetryMaxAttempts int           `env:"OFS_RETRY_MAX_ATTEMPTS" envDefault:"10"`

	DefaultServiceDays int `env:"OFS_DEFAULT_SERVICE_DAYS" envDefault:"30"`
}

// LoadConfig читает конфигурацию из окружения.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
