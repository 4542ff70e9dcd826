package infra

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bazaarino/bazaar/internal/config"
)

// Backends holds the optional storage connections. A nil field means the
// matching URL was not configured and in-memory stores take over.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Open connects to every backend whose URL is set in cfg. When AUTO_MIGRATE
// is enabled the schema is migrated up before the pool is opened.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}
	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if err := Migrate(cfg.DatabaseURL, "up"); err != nil {
				return nil, err
			}
			logger.Info("database migrated")
		}
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close(logger)
			return nil, err
		}
		b.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, using in-memory code store")
	}
	return b, nil
}

// Close releases whatever Open connected.
func (b *Backends) Close(logger *slog.Logger) {
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			logger.Warn("close redis", slog.Any("error", err))
		}
	}
	if b.DB != nil {
		b.DB.Close()
	}
}
