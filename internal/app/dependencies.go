// Package app opens the infrastructure shared by the API and the worker.
package app

import (
	"context"
	"errors"
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/ratelimit"
	"github.com/noah-isme/storefront/internal/store"
)

// Dependencies enumerates the clients shared across modules.
type Dependencies struct {
	DB           *pgxpool.Pool
	Redis        *redis.Client
	Validator    *validator.Validate
	LimiterStore limiter.Store
	TaskClient   *asynq.Client
}

// Open connects Postgres and Redis, applies migrations when enabled and
// builds the rate limit store and task client.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger, tracing bool) (*Dependencies, error) {
	if cfg.AutoMigrate {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		log.Info().Msg("migrations applied")
	}

	pool, err := store.NewPool(ctx, store.PoolConfig{DatabaseURL: cfg.DatabaseURL, Tracing: tracing})
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{DB: pool, Validator: common.NewValidator()}

	deps.Redis, err = NewRedis(ctx, cfg.RedisURL, tracing, cfg.MetricsEnabled, log)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.LimiterStore, err = ratelimit.NewRedisStore(deps.Redis, "rl:")
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("limiter store: %w", err)
	}

	connOpt, err := RedisConnOpt(cfg.RedisURL)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.TaskClient = asynq.NewClient(connOpt)
	return deps, nil
}

// Close releases every opened client.
func (d *Dependencies) Close() error {
	var errs []error
	if d.TaskClient != nil {
		errs = append(errs, d.TaskClient.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		d.DB.Close()
	}
	return errors.Join(errs...)
}

// NewRedis parses url, instruments the client and checks connectivity.
func NewRedis(ctx context.Context, url string, tracing, metrics bool, log zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if tracing {
		if err := redisotel.InstrumentTracing(client); err != nil {
			log.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			log.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisConnOpt converts a redis:// URL into asynq connection options.
func RedisConnOpt(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("parse asynq redis uri: %w", err)
	}
	return opt, nil
}
