package fulfillment

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
)

// FlagSweeper — имя фичефлага, выключающего свип целиком.
// Флаг опрашивается один раз в начале каждого цикла.
const FlagSweeper = "fulfillment-sweeper"

const (
	defaultInitialDelay = 30 * time.Second
	defaultInterval     = 1 * time.Minute
	defaultBatchSize    = 50
	defaultConcurrency  = 4
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ofs_sweep_runs_total",
		Help: "Total number of sweep cycles grouped by result.",
	}, []string{"result"})
	sweepDueOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ofs_sweep_due_orders",
		Help: "Number of due orders loaded by the last sweep cycle.",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ofs_sweep_duration_seconds",
		Help:    "Duration of a full sweep cycle in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

// SweeperOptions задаёт параметры свипера.
type SweeperOptions struct {
	Logger       *log.Entry
	InitialDelay time.Duration
	Interval     time.Duration
	BatchSize    int
	Concurrency  int
	Producer     *kafka.Producer
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*SweeperOptions)

// WithSweeperLogger задаёт logger для свипера.
func WithSweeperLogger(logger *log.Entry) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithInitialDelay задаёт паузу перед первым циклом после старта.
func WithInitialDelay(delay time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.InitialDelay = delay
	}
}

// WithInterval задаёт период между циклами.
func WithInterval(interval time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задаёт лимит заказов на один цикл.
func WithBatchSize(batchSize int) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.BatchSize = batchSize
	}
}

// WithConcurrency задаёт размер пула воркеров.
func WithConcurrency(concurrency int) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Concurrency = concurrency
	}
}

// WithSweeperProducer включает публикацию событий жизненного цикла свипа в Kafka.
func WithSweeperProducer(producer *kafka.Producer) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Producer = producer
	}
}

// Sweeper периодически проходит по необработанным заказам и раздаёт их
// ограниченному пулу воркеров.
type Sweeper struct {
	engine       *Engine
	orders       domain.OrderRepository
	flags        domain.FeatureFlags
	logger       *log.Entry
	initialDelay time.Duration
	interval     time.Duration
	batchSize    int
	concurrency  int
	producer     *kafka.Producer

	// Однослотовый семафор: новый цикл пропускается, пока идёт предыдущий.
	slot chan struct{}
}

// NewSweeper создаёт свипер.
func NewSweeper(engine *Engine, orders domain.OrderRepository, flags domain.FeatureFlags, options ...SweeperOption) *Sweeper {
	opts := SweeperOptions{
		InitialDelay: defaultInitialDelay,
		Interval:     defaultInterval,
		BatchSize:    defaultBatchSize,
		Concurrency:  defaultConcurrency,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "sweeper")
	}

	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	return &Sweeper{
		engine:       engine,
		orders:       orders,
		flags:        flags,
		logger:       logger,
		initialDelay: opts.InitialDelay,
		interval:     opts.Interval,
		batchSize:    opts.BatchSize,
		concurrency:  opts.Concurrency,
		producer:     opts.Producer,
		slot:         make(chan struct{}, 1),
	}
}

// Run запускает периодический свип до отмены ctx. Возврат из Run означает,
// что начатый цикл дорисован и воркеры остановлены.
func (s *Sweeper) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.initialDelay):
	}

	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// TriggerNow запускает внеочередной цикл (ручной запуск оператором).
// Возвращает false, если цикл уже идёт и запуск был пропущен.
func (s *Sweeper) TriggerNow(ctx context.Context) bool {
	s.logger.Info("manual sweep triggered")
	return s.SweepOnce(ctx)
}

// SweepOnce выполняет один цикл. Возвращает false, если цикл пропущен
// из-за идущего предыдущего или выключенного фичефлага.
func (s *Sweeper) SweepOnce(ctx context.Context) bool {
	select {
	case s.slot <- struct{}{}:
	default:
		s.logger.Debug("previous sweep still running, skipping cycle")
		sweepRunsTotal.WithLabelValues("skipped").Inc()
		return false
	}
	defer func() { <-s.slot }()

	if s.flags != nil && !s.flags.IsEnabled(FlagSweeper) {
		s.logger.Debug("sweeper disabled by feature flag")
		sweepRunsTotal.WithLabelValues("disabled").Inc()
		return false
	}

	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	due, err := s.orders.ListDue(time.Now().UTC(), s.batchSize)
	if err != nil {
		// Ошибка уровня цикла не фатальна: следующий интервал попробует снова.
		s.logger.WithError(err).Warn("failed to load due orders")
		sweepRunsTotal.WithLabelValues("error").Inc()
		return true
	}
	sweepDueOrders.Set(float64(len(due)))
	if len(due) == 0 {
		sweepRunsTotal.WithLabelValues("empty").Inc()
		return true
	}

	s.logger.WithField("due", len(due)).Info("sweep cycle started")
	s.publishSweepEvent(kafka.EventTypeSweepStarted, map[string]interface{}{
		"due": len(due),
	})

	jobs := make(chan string, len(due))
	for _, order := range due {
		jobs <- order.ID
	}
	close(jobs)

	workers := s.concurrency
	if workers > len(due) {
		workers = len(due)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for orderID := range jobs {
				// Начатая попытка всегда доводится до классифицированного
				// исхода; отмена проверяется только между заказами.
				if ctx.Err() != nil {
					return
				}
				if err := s.engine.Process(ctx, orderID); err != nil {
					// Ошибка одного заказа не роняет соседей по циклу.
					s.logger.WithError(err).WithField("order_id", orderID).Warn("order processing error")
				}
			}
		}()
	}
	wg.Wait()

	sweepRunsTotal.WithLabelValues("ok").Inc()
	s.logger.WithField("duration", time.Since(start)).Info("sweep cycle finished")
	s.publishSweepEvent(kafka.EventTypeSweepDone, map[string]interface{}{
		"due":              len(due),
		"duration_seconds": time.Since(start).Seconds(),
	})
	return true
}

// publishSweepEvent публикует событие жизненного цикла свипа (если producer настроен).
func (s *Sweeper) publishSweepEvent(eventType kafka.EventType, metadata map[string]interface{}) {
	if s.producer == nil {
		return
	}

	event := kafka.NewFulfillmentEvent(eventType, "", metadata)
	if err := s.producer.PublishEvent(kafka.TopicFulfillmentEvents, string(eventType), event); err != nil {
		// Событие — телеметрия: сбой публикации цикл не прерывает.
		s.logger.WithError(err).WithField("event_type", eventType).Warn("failed to publish sweep event to kafka")
	}
}
