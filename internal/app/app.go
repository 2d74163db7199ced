// Package app собирает сервис фулфилмента из компонентов и управляет его
// жизненным циклом.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/alert"
	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/flags"
	healthcheck "github.com/vladislavdragonenkov/ofs/internal/health"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ofs/internal/retry"
	"github.com/vladislavdragonenkov/ofs/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/ofs/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run запускает сервис и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	// Kafka опциональна: без брокеров события не публикуются, а оповещения
	// уходят в лог.
	var kafkaProducer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	var notifier domain.Notifier
	if kafkaProducer != nil {
		notifier = alert.NewKafkaNotifier(kafkaProducer, logger.WithField("component", "alert-notifier"))
	} else {
		notifier = alert.NewLogNotifier(logger.WithField("component", "alert-notifier"))
	}

	engineDeps := fulfillment.Deps{
		Orders:       deps.Orders,
		Accounts:     deps.Accounts,
		Codes:        deps.Codes,
		Users:        deps.Users,
		Reservations: deps.Reservations,
		Sync:         deps.Sync,
		Notifier:     notifier,
		Locks:        deps.Locks,
		Logger:       logger.WithField("component", "fulfillment"),
	}
	engineCfg := fulfillment.Config{
		Policy: retry.Policy{
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			MaxAttempts: cfg.RetryMaxAttempts,
		},
		DefaultServiceDays: cfg.DefaultServiceDays,
	}

	var engine *fulfillment.Engine
	if kafkaProducer != nil {
		engine = fulfillment.NewEngineWithKafka(engineDeps, engineCfg, kafkaProducer)
	} else {
		engine = fulfillment.NewEngine(engineDeps, engineCfg)
	}

	sweeperOptions := []fulfillment.SweeperOption{
		fulfillment.WithSweeperLogger(logger.WithField("component", "sweeper")),
		fulfillment.WithInitialDelay(cfg.SweepInitialDelay),
		fulfillment.WithInterval(cfg.SweepInterval),
		fulfillment.WithBatchSize(cfg.SweepBatchSize),
		fulfillment.WithConcurrency(cfg.SweepConcurrency),
	}
	if kafkaProducer != nil {
		sweeperOptions = append(sweeperOptions, fulfillment.WithSweeperProducer(kafkaProducer))
	}
	sweeper := fulfillment.NewSweeper(engine, deps.Orders, flags.FromEnv(), sweeperOptions...)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.CheckerFunc{
			Name: "postgres",
			Fn: func() error {
				pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return deps.Store.Ping(pingCtx)
			},
		})
	}

	adminSrv := startAdminServer(ctx, cfg.MetricsAddr, logger, healthHandler, sweeper)

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("получен сигнал остановки, завершаем свипер")

	select {
	case <-sweeperDone:
	case <-time.After(30 * time.Second):
		logger.Warn("свипер не завершился вовремя")
	}

	shutdownHTTP(adminSrv, logger)

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			logger.Info("kafka producer closed")
		}
	}

	return ctx.Err()
}

func buildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if cfg.DatabaseDSN != "" {
		deps, err := NewPostgresDependencies(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("storage: postgres")
		return deps, nil
	}
	logger.Info("storage: in-memory")
	return NewDependencies(logger), nil
}

// startAdminServer запускает HTTP-обработчики метрик, health-чеков и
// ручного запуска свипа.
func startAdminServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler, sweeper *fulfillment.Sweeper) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/sweep", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		// Цикл выполняется синхронно: ответ приходит после завершения свипа.
		if sweeper.TriggerNow(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("sweep completed"))
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("sweep skipped"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("admin server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("admin server shutdown with error")
	}
}
