package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/sales/internal/health"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
	"github.com/vladislavdragonenkov/sales/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/sales/internal/storage/redis"
)

// runtimeDependencies собирает хранилища и проверки здоровья, выбранные по конфигурации.
type runtimeDependencies struct {
	saleRepo        domain.SaleRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	checkers        map[string]healthcheck.Checker
	closers         []func() error
}

func (d *runtimeDependencies) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// initRuntimeDependencies открывает хранилища. При ошибке уже открытые ресурсы закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *runtimeDependencies, err error) {
	deps = &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}
	defer func() {
		if err != nil {
			_ = deps.close()
			deps = nil
		}
	}()

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case StorageDriverMemory:
		deps.saleRepo = memory.NewSaleRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres dsn is required for postgres storage")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxOpenConns(cfg.PostgresMaxOpenConns))
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		deps.closers = append(deps.closers, registerPoolMetrics(store.DB(), logger))
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.saleRepo = postgres.NewSaleRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.timelineRepo = postgres.NewTimelineRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.checkers["postgres"] = healthcheck.NewPingChecker("postgres", store.Ping)
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.IdempotencyDriver)) {
	case "", IdempotencyDriverStorage:
	case IdempotencyDriverRedis:
		client, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		repo := redisstore.NewIdempotencyRepository(client)
		deps.idempotencyRepo = repo
		deps.checkers["redis"] = healthcheck.NewOptionalChecker("redis", repo.Ping)
		logger.WithField("addr", cfg.RedisAddr).Info("using redis for idempotency keys")
	default:
		return nil, fmt.Errorf("unsupported idempotency driver %q", cfg.IdempotencyDriver)
	}

	return deps, nil
}

// registerPoolMetrics публикует статистику пула database/sql и возвращает функцию снятия регистрации.
func registerPoolMetrics(db *sql.DB, logger *log.Entry) func() error {
	collector := collectors.NewDBStatsCollector(db, "sales")
	if err := prometheus.Register(collector); err != nil {
		logger.WithError(err).Warn("failed to register postgres pool metrics")
		return func() error { return nil }
	}
	return func() error {
		prometheus.Unregister(collector)
		return nil
	}
}
