package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dropp/internal/cache"
	"dropp/internal/config"
	"dropp/internal/database"
	"dropp/internal/datastore"
	"dropp/internal/featureflags"
	"dropp/internal/lock"
	"dropp/internal/observability"
	"dropp/internal/repository"
	"dropp/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the storage connections the server and the commands run on.
// Redis is optional for SQL drivers; without it pair locks are process
// local and notifications are disabled.
type Deps struct {
	Store datastore.Datastore
	DB    *gorm.DB
	Redis *redis.Client
}

// Connect opens the datastore selected by cfg.DatastoreDriver.
func Connect(ctx context.Context, cfg *config.Config) (*Deps, error) {
	switch cfg.DatastoreDriver {
	case config.DriverRedis:
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return &Deps{
			Store: datastore.NewRedisStore(rdb, cfg.DatastoreNamespace),
			Redis: rdb,
		}, nil

	case config.DriverPostgres, config.DriverSQLite:
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		store := datastore.NewSQLStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		deps := &Deps{Store: store, DB: db}

		if cfg.RedisURL != "" {
			rdb, err := cache.Connect(ctx, cfg.RedisURL)
			if err != nil {
				observability.Logger.Warn("redis unavailable; using local pair locks",
					slog.String("error", err.Error()),
				)
			} else {
				deps.Redis = rdb
			}
		}
		return deps, nil

	default:
		return nil, fmt.Errorf("unknown datastore driver %q", cfg.DatastoreDriver)
	}
}

// Close releases every open connection.
func (d *Deps) Close() error {
	var errs []error
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			if cerr := sqlDB.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close sql DB: %w", cerr))
			}
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Services is the wired service layer.
type Services struct {
	Flags    *featureflags.Manager
	Follows  *service.FollowService
	Accounts *service.AccountService
}

// NewServices wires repositories, the pair locker and the services on deps.
func NewServices(cfg *config.Config, deps *Deps) *Services {
	users := repository.NewUserRepository(deps.Store)
	conns := repository.NewConnectionStore(deps.Store)
	reporter := service.NewInconsistencyReporter(deps.Store)
	flags := featureflags.NewManager(cfg.FeatureFlags)
	locker := NewLocker(cfg, deps.Redis)

	graph := service.NewSocialGraphService(conns, reporter, flags)
	return &Services{
		Flags:    flags,
		Follows:  service.NewFollowService(graph, conns, users, locker, reporter),
		Accounts: service.NewAccountService(users, conns, locker, reporter),
	}
}

// NewLocker returns a Redis pair locker when rdb is set, a local one otherwise.
func NewLocker(cfg *config.Config, rdb *redis.Client) lock.PairLocker {
	if rdb != nil {
		return lock.NewRedisLocker(rdb, cfg.DatastoreNamespace+":", cfg.PairLockTTL, cfg.PairLockWait)
	}
	return lock.NewLocalLocker(cfg.PairLockWait)
}
