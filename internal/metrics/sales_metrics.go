package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SalesMetrics содержит метрики операций над продажами.
type SalesMetrics struct {
	// Счётчики операций
	salesCreated   prometheus.Counter
	salesUpdated   prometheus.Counter
	salesCancelled prometheus.Counter
	salesDeleted   prometheus.Counter

	// Нумерация продаж
	numberConflicts prometheus.Counter
	numberFallbacks prometheus.Counter
	createRetries   prometheus.Counter

	operationDuration *prometheus.HistogramVec
	saleAmount        prometheus.Histogram

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewSalesMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewSalesMetrics() *SalesMetrics {
	return NewSalesMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSalesMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewSalesMetricsWithRegisterer(registerer prometheus.Registerer) *SalesMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SalesMetrics{
		salesCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_created_total",
			Help: "Total number of sales created",
		}),
		salesUpdated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_updated_total",
			Help: "Total number of sales updated",
		}),
		salesCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_cancelled_total",
			Help: "Total number of sales cancelled",
		}),
		salesDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_deleted_total",
			Help: "Total number of sales deleted",
		}),
		numberConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_number_conflicts_total",
			Help: "Total number of sale number uniqueness conflicts on create",
		}),
		numberFallbacks: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_number_fallbacks_total",
			Help: "Total number of unparsable last sale numbers replaced by sequence 1",
		}),
		createRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_create_retries_total",
			Help: "Total number of create retries after a sale number conflict",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "sales_operation_duration_seconds",
			Help:    "Duration of sale operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation", "result"}),
		saleAmount: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "sales_amount",
			Help:    "Total amount of created sales",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 50000},
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_outbox_events_total",
			Help: "Total number of events enqueued into outbox",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

func (m *SalesMetrics) RecordSaleCreated(amount float64) {
	m.salesCreated.Inc()
	m.saleAmount.Observe(amount)
}

func (m *SalesMetrics) RecordSaleUpdated() {
	m.salesUpdated.Inc()
}

func (m *SalesMetrics) RecordSaleCancelled() {
	m.salesCancelled.Inc()
}

func (m *SalesMetrics) RecordSaleDeleted() {
	m.salesDeleted.Inc()
}

// RecordNumberConflict учитывает нарушение уникальности номера при создании.
func (m *SalesMetrics) RecordNumberConflict() {
	m.numberConflicts.Inc()
}

// RecordNumberFallback учитывает нераспознанный последний номер за дату.
func (m *SalesMetrics) RecordNumberFallback() {
	m.numberFallbacks.Inc()
}

func (m *SalesMetrics) RecordCreateRetry() {
	m.createRetries.Inc()
}

// RecordOperation записывает длительность операции с результатом "ok" или "error".
func (m *SalesMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}

func (m *SalesMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

func (m *SalesMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
