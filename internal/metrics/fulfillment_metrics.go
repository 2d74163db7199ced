package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics содержит метрики движка фулфилмента.
type FulfillmentMetrics struct {
	// Счётчики исходов обработки
	ordersStarted   prometheus.Counter
	ordersFulfilled prometheus.Counter
	ordersRetried   prometheus.Counter
	ordersFailed    prometheus.Counter
	alertsSent      prometheus.Counter

	// Гистограммы времени выполнения
	processDuration prometheus.Histogram
	stageDuration   *prometheus.HistogramVec

	// Gauge для заказов в обработке
	activeOrders prometheus.Gauge
}

// NewFulfillmentMetrics создаёт метрики в default-реестре Prometheus.
func NewFulfillmentMetrics() *FulfillmentMetrics {
	return newFulfillmentMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newFulfillmentMetricsWithRegisterer(registerer prometheus.Registerer) *FulfillmentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &FulfillmentMetrics{
		ordersStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ofs_orders_started_total",
			Help: "Total number of fulfillment attempts started",
		}),
		ordersFulfilled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ofs_orders_fulfilled_total",
			Help: "Total number of orders fulfilled successfully",
		}),
		ordersRetried: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ofs_orders_retried_total",
			Help: "Total number of attempts postponed for retry",
		}),
		ordersFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ofs_orders_failed_total",
			Help: "Total number of orders failed terminally",
		}),
		alertsSent: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ofs_alerts_sent_total",
			Help: "Total number of operator alerts emitted",
		}),
		processDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ofs_order_process_duration_seconds",
			Help:    "Duration of a single fulfillment attempt in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stageDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ofs_order_stage_duration_seconds",
			Help:    "Duration of individual fulfillment stages in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"stage"}),
		activeOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ofs_active_orders",
			Help: "Number of orders currently being processed",
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

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
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

// RecordStarted увеличивает счётчик начатых попыток.
func (m *FulfillmentMetrics) RecordStarted() {
	m.ordersStarted.Inc()
	m.activeOrders.Inc()
}

// RecordFinished уменьшает количество активных заказов.
func (m *FulfillmentMetrics) RecordFinished() {
	m.activeOrders.Dec()
}

// RecordFulfilled увеличивает счётчик исполненных заказов.
func (m *FulfillmentMetrics) RecordFulfilled() {
	m.ordersFulfilled.Inc()
}

// RecordRetried увеличивает счётчик отложенных попыток.
func (m *FulfillmentMetrics) RecordRetried() {
	m.ordersRetried.Inc()
}

// RecordFailed увеличивает счётчик терминально неудачных заказов.
func (m *FulfillmentMetrics) RecordFailed() {
	m.ordersFailed.Inc()
}

// RecordAlert увеличивает счётчик отправленных оповещений.
func (m *FulfillmentMetrics) RecordAlert() {
	m.alertsSent.Inc()
}

// RecordProcessDuration записывает длительность одной попытки.
func (m *FulfillmentMetrics) RecordProcessDuration(duration time.Duration) {
	m.processDuration.Observe(duration.Seconds())
}

// RecordStageDuration записывает длительность отдельной стадии.
func (m *FulfillmentMetrics) RecordStageDuration(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
