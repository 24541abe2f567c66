package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the ledger daemon.
type Config struct {
	Addr              string        `env:"ADDR,default=:8080"`
	DBDSN             string        `env:"DB_DSN,required"`
	NATSURL           string        `env:"NATS_URL"`
	OTLPEndpoint      string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	CollectorEndpoint string        `env:"COLLECTOR_ENDPOINT,required"`
	CollectorTimeout  time.Duration `env:"COLLECTOR_TIMEOUT,default=120s"`
	SyncWorkers       int           `env:"SYNC_WORKERS,default=8"`
	SchedulerEnabled  bool          `env:"SCHEDULER_ENABLED,default=true"`
	SyncInterval      time.Duration `env:"SYNC_INTERVAL,default=1h"`
	AllowedOrigins    []string      `env:"CORS_ALLOWED_ORIGINS"`
	RateLimit         int           `env:"RATE_LIMIT_PER_MINUTE,default=100"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
