package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/app"
	"github.com/vladislavdragonenkov/sales/internal/version"
)

const (
	envConfigFile                  = "SALES_CONFIG_FILE"
	envGRPCAddr                    = "SALES_GRPC_ADDR"
	envHTTPAddr                    = "SALES_HTTP_ADDR"
	envMetricsAddr                 = "SALES_METRICS_ADDR"
	envLogLevel                    = "SALES_LOG_LEVEL"
	envLogFormat                   = "SALES_LOG_FORMAT"
	envStorageDriver               = "SALES_STORAGE_DRIVER"
	envPostgresDSN                 = "SALES_POSTGRES_DSN"
	envPostgresAutoMigrate         = "SALES_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxOpenConns        = "SALES_POSTGRES_MAX_OPEN_CONNS"
	envIdempotencyDriver           = "SALES_IDEMPOTENCY_DRIVER"
	envIdempotencyTTL              = "SALES_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "SALES_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "SALES_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envRedisAddr                   = "SALES_REDIS_ADDR"
	envRedisPassword               = "SALES_REDIS_PASSWORD"
	envRedisDB                     = "SALES_REDIS_DB"
	envKafkaBrokers                = "SALES_KAFKA_BROKERS"
	envKafkaClientID               = "SALES_KAFKA_CLIENT_ID"
	envKafkaTopic                  = "SALES_KAFKA_TOPIC"
	envKafkaDLQTopic               = "SALES_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval          = "SALES_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "SALES_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "SALES_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "SALES_OUTBOX_RETRY_DELAY"
)

type envLookup func(string) (string, bool)

func positiveInt(v int) bool                   { return v > 0 }
func nonNegativeInt(v int) bool                { return v >= 0 }
func positiveDuration(v time.Duration) bool    { return v > 0 }
func nonNegativeDuration(v time.Duration) bool { return v >= 0 }

// readConfigFromEnv накладывает переменные окружения на base.
// Некорректные значения не применяются и возвращаются как предупреждения.
func readConfigFromEnv(base app.Config, lookup envLookup) (app.Config, []string) {
	cfg := base
	var warnings []string
	warn := func(name, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", name, value, err))
	}

	setString := func(name string, dst *string, normalize func(string) string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = normalize(strings.TrimSpace(v))
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseBool(v)
			if err != nil {
				warn(name, v, err)
				return
			}
			*dst = parsed
		}
	}
	setInt := func(name string, dst *int, valid func(int) bool, rule string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseInt(v, valid, rule)
			if err != nil {
				warn(name, v, err)
				return
			}
			*dst = parsed
		}
	}
	setDuration := func(name string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseDuration(v, valid, rule)
			if err != nil {
				warn(name, v, err)
				return
			}
			*dst = parsed
		}
	}
	keep := func(s string) string { return s }

	setString(envGRPCAddr, &cfg.GRPCAddr, keep)
	setString(envHTTPAddr, &cfg.HTTPAddr, keep)
	setString(envMetricsAddr, &cfg.MetricsAddr, keep)
	setString(envLogLevel, &cfg.LogLevel, strings.ToLower)
	setString(envLogFormat, &cfg.LogFormat, strings.ToLower)
	setString(envStorageDriver, &cfg.StorageDriver, strings.ToLower)
	setString(envPostgresDSN, &cfg.PostgresDSN, keep)
	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	setInt(envPostgresMaxOpenConns, &cfg.PostgresMaxOpenConns, nonNegativeInt, "must be >= 0")
	setString(envIdempotencyDriver, &cfg.IdempotencyDriver, strings.ToLower)
	setDuration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	setDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	setInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positiveInt, "must be > 0")
	setString(envRedisAddr, &cfg.RedisAddr, keep)
	setString(envRedisPassword, &cfg.RedisPassword, keep)
	setInt(envRedisDB, &cfg.RedisDB, nonNegativeInt, "must be >= 0")
	setString(envKafkaBrokers, &cfg.KafkaBrokers, keep)
	setString(envKafkaClientID, &cfg.KafkaClientID, keep)
	setString(envKafkaTopic, &cfg.KafkaTopic, keep)
	setString(envKafkaDLQTopic, &cfg.KafkaDLQTopic, keep)
	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

// loadConfig: значения по умолчанию, затем YAML-файл, затем окружение.
func loadConfig(configPath string, lookup envLookup) (app.Config, []string, error) {
	cfg := app.DefaultConfig()
	if configPath == "" {
		if v, ok := lookup(envConfigFile); ok {
			configPath = strings.TrimSpace(v)
		}
	}
	if configPath != "" {
		fileCfg, err := app.LoadConfigFile(cfg, configPath)
		if err != nil {
			return cfg, nil, err
		}
		cfg = fileCfg
	}

	cfg, warnings := readConfigFromEnv(cfg, lookup)
	return cfg, warnings, nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, warnings, err := loadConfig(*configPath, os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("не удалось прочитать конфигурацию")
	}
	app.ConfigureLogging(cfg)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":      version.String(),
		"grpc_addr":    cfg.GRPCAddr,
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"idempotency":  cfg.IdempotencyDriver,
	}).Info("запускаем SalesService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("SalesService остановлен")
}
