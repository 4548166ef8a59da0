package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	// maxBatchesPerSweep ограничивает один проход, остаток дочищается на следующем тике.
	maxBatchesPerSweep = 1000
)

var (
	cleanupSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_idempotency_cleanup_runs_total",
		Help: "Idempotency cleanup sweeps grouped by result.",
	}, []string{"result"})
	cleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_idempotency_cleanup_deleted_total",
		Help: "Expired idempotency keys removed by cleanup.",
	})
	cleanupSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sales_idempotency_cleanup_duration_seconds",
		Help:    "Duration of a single idempotency cleanup sweep.",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	})
)

// SweepReport — итог одного прохода очистки.
type SweepReport struct {
	Deleted int
	Batches int
	// Truncated выставляется, если проход упёрся в maxBatchesPerSweep.
	Truncated bool
}

type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

type CleanupOption func(*CleanupOptions)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) { opts.Logger = logger }
}

func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) { opts.Interval = interval }
}

func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) { opts.BatchSize = batchSize }
}

// WithCleanupClock подменяет источник времени, от которого считается просрочка.
func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(opts *CleanupOptions) { opts.Now = now }
}

// CleanupWorker удаляет ключи идемпотентности с истёкшим TTL.
type CleanupWorker struct {
	repo domain.IdempotencyRepository
	opts CleanupOptions
}

func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{}
	for _, option := range options {
		option(&opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "idempotency-cleanup")
	}
	return &CleanupWorker{repo: repo, opts: opts}
}

// Run делает проход сразу и затем раз в Interval, пока ctx не отменён.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.opts.Logger.Warn("idempotency cleanup disabled: no repository")
		return
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) tick(ctx context.Context) {
	report, err := w.Sweep(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		cleanupSweeps.WithLabelValues("error").Inc()
		w.opts.Logger.WithError(err).WithField("deleted", report.Deleted).Warn("idempotency cleanup failed")
		return
	}

	cleanupSweeps.WithLabelValues("ok").Inc()
	if report.Deleted == 0 {
		return
	}
	entry := w.opts.Logger.WithFields(log.Fields{
		"deleted": report.Deleted,
		"batches": report.Batches,
	})
	if report.Truncated {
		entry.Warn("idempotency cleanup hit batch limit, rest deferred")
		return
	}
	entry.Info("expired idempotency keys removed")
}

// Sweep удаляет просроченные на текущий момент ключи порциями BatchSize.
func (w *CleanupWorker) Sweep(ctx context.Context) (SweepReport, error) {
	return w.DeleteExpired(ctx, w.opts.Now())
}

// DeleteExpired удаляет записи с TTL не позже before. Проход заканчивается на неполной порции.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (SweepReport, error) {
	started := time.Now()
	defer func() { cleanupSweepDuration.Observe(time.Since(started).Seconds()) }()

	var report SweepReport
	for report.Batches < maxBatchesPerSweep {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		n, err := w.repo.DeleteExpired(ctx, before, w.opts.BatchSize)
		if err != nil {
			return report, err
		}
		report.Batches++
		report.Deleted += n
		cleanupDeleted.Add(float64(n))

		if n < w.opts.BatchSize {
			return report, nil
		}
	}
	report.Truncated = true
	return report, nil
}
