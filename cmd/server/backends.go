package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"auditd/internal/platform/config"
	"auditd/internal/platform/postgres"
	platformredis "auditd/internal/platform/redis"
	httptransport "auditd/internal/transport/http"
	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/audit/filter"
)

// backends holds shared connections. Each is nil unless some component needs it.
type backends struct {
	redis *platformredis.Client
	db    *sql.DB
	pool  *pgxpool.Pool
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	be := &backends{}

	if cfg.Filter.Source == "redis" || cfg.Sinks.RedisStream.Enabled {
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		be.redis = client
	}
	if cfg.Sinks.Postgres.Enabled {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			be.Close()
			return nil, err
		}
		be.db = db
	}
	if cfg.Filter.Source == "postgres" {
		pool, err := postgres.OpenPool(ctx, cfg.Postgres)
		if err != nil {
			be.Close()
			return nil, err
		}
		be.pool = pool
	}
	return be, nil
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

func (b *backends) healthChecks(f *filter.Filter) map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{
		"filter": func(context.Context) error {
			if !f.Loaded() {
				return audit.ErrFilterUnavailable
			}
			return nil
		},
	}
	if b.redis != nil {
		checks["redis"] = b.redis.Health
	}
	if b.db != nil {
		checks["postgres"] = b.db.PingContext
	}
	if b.pool != nil {
		checks["postgres_pool"] = b.pool.Ping
	}
	return checks
}

// filterSource picks the configured source. The returned store is nil for the
// static source, so admin changes then live only until the next refresh.
func filterSource(ctx context.Context, cfg *config.Config, be *backends) (filter.Source, filter.Store, error) {
	seed, err := cfg.Filter.Decisions()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Filter.Source {
	case "redis":
		src := filter.NewRedisSource(be.redis.Client, cfg.Filter.RedisKey)
		if err := seedStore(ctx, src, src, seed); err != nil {
			return nil, nil, err
		}
		return src, src, nil
	case "postgres":
		src := filter.NewPostgresSource(be.pool)
		if err := src.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		if err := seedStore(ctx, src, src, seed); err != nil {
			return nil, nil, err
		}
		return src, src, nil
	}
	return filter.StaticSource(seed), nil, nil
}

// seedStore writes the configured decisions into an empty store.
func seedStore(ctx context.Context, src filter.Source, store filter.Store, seed map[filter.Key]bool) error {
	if len(seed) == 0 {
		return nil
	}
	current, err := src.Load(ctx)
	if err != nil {
		return err
	}
	if len(current) > 0 {
		return nil
	}
	for key, enabled := range seed {
		if err := store.Set(ctx, key, enabled); err != nil {
			return fmt.Errorf("seed audit filter: %w", err)
		}
	}
	return nil
}
