package changes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DriverLocal    = "local"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	// Driver is local, postgres or redis. Empty picks postgres when a pool is
	// available and local otherwise.
	Driver  string
	Channel string
	Redis   RedisConfig
}

// Open builds the configured bus. pool may be nil unless Driver is postgres.
func Open(ctx context.Context, cfg Config, pool *pgxpool.Pool, log *slog.Logger) (Bus, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverLocal
		if pool != nil {
			driver = DriverPostgres
		}
	}

	switch driver {
	case DriverLocal:
		return NewLocalBus(), nil
	case DriverPostgres:
		return NewPostgresBus(pool, cfg.Channel, log)
	case DriverRedis:
		rc := cfg.Redis
		if rc.Channel == "" {
			rc.Channel = cfg.Channel
		}
		return NewRedisBus(ctx, rc, log)
	default:
		return nil, fmt.Errorf("changes: unknown driver %q", cfg.Driver)
	}
}
