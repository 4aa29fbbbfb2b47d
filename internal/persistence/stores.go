package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/repository"
)

// Pinger is a backend connection that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores bundles the repositories selected by STORE_DRIVER together with the
// connections backing them.
type Stores struct {
	Driver  string
	Tickets repository.TicketRepository
	Users   repository.UserRepository
	Resets  repository.PasswordResetRepository

	Postgres *Postgres
	Mongo    *Mongo
	Redis    *Redis
}

// OpenStores connects to the configured backend. With Redis configured the
// reset ledger lives there; otherwise it stays in process.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	stores := &Stores{Driver: cfg.Store.Driver}

	switch cfg.Store.Driver {
	case config.StoreMemory:
		stores.Tickets = repository.NewMemoryTicketRepository(nil)
		stores.Users = repository.NewMemoryUserRepository()
		logger.Warn("using in-memory store; data is lost on restart")

	case config.StorePostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		stores.Postgres = pg
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		stores.Tickets = repository.NewTicketRepository(pg.Pool)
		stores.Users = repository.NewUserRepository(pg.Pool)

	case config.StoreMongo:
		m, err := NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, err
		}
		stores.Mongo = m
		tickets := repository.NewMongoTicketRepository(m.Database, cfg.Mongo.Timeout())
		users := repository.NewMongoUserRepository(m.Database, cfg.Mongo.Timeout())
		if err := tickets.EnsureIndexes(ctx); err != nil {
			m.Close(ctx)
			return nil, fmt.Errorf("ensure ticket indexes: %w", err)
		}
		if err := users.EnsureIndexes(ctx); err != nil {
			m.Close(ctx)
			return nil, fmt.Errorf("ensure user indexes: %w", err)
		}
		stores.Tickets = tickets
		stores.Users = users

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	if r := NewRedis(ctx, cfg.Redis, logger); r != nil {
		stores.Redis = r
		stores.Resets = repository.NewRedisPasswordResetRepository(r.Client)
	} else {
		stores.Resets = repository.NewMemoryPasswordResetRepository()
	}

	logger.Info("stores ready", zap.String("driver", stores.Driver), zap.Bool("redis", stores.Redis != nil))
	return stores, nil
}

// Health returns a pinger per connected backend, keyed by name.
func (s *Stores) Health() map[string]Pinger {
	deps := map[string]Pinger{}
	if s.Postgres != nil {
		deps["postgres"] = s.Postgres
	}
	if s.Mongo != nil {
		deps["mongo"] = s.Mongo
	}
	if s.Redis != nil {
		deps["redis"] = s.Redis
	}
	return deps
}

// Close releases every open connection.
func (s *Stores) Close(ctx context.Context) {
	s.Redis.Close()
	s.Postgres.Close()
	s.Mongo.Close(ctx)
}
