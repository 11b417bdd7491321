package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-records/internal/config"
	"github.com/jwalitptl/clinic-records/internal/email"
	"github.com/jwalitptl/clinic-records/internal/repository/postgres"
	"github.com/jwalitptl/clinic-records/internal/service/notification"
	internalworker "github.com/jwalitptl/clinic-records/internal/worker"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	redisbroker "github.com/jwalitptl/clinic-records/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
	"github.com/jwalitptl/clinic-records/pkg/worker"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:          "clinic-worker",
		Short:        "Publish outbox events and run scheduled cleanup",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := logger.NewLogger(&logger.Config{
				Level:   logger.ParseLevel(cfg.Logging.Level),
				Console: cfg.Logging.Console,
			})
			if err := run(cmd.Context(), cfg, log); err != nil {
				log.Error(err, "worker stopped")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default: config.yml in ., ./config or /app/config)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Redis.Enabled() {
		return errors.New("redis.url is required to publish outbox events")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := redisbroker.NewClient(ctx, redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		return err
	}
	broker := redisbroker.NewRedisBroker(client, log.Zerolog())
	defer broker.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("clinic_worker", reg)

	var notifier worker.Notifier
	if cfg.SMTP.Enabled() {
		notifier = notification.NewService(email.NewSMTPService(cfg.SMTP), cfg.SMTP.FrontDesk, log)
		log.Info("front desk notifications enabled", "to", cfg.SMTP.FrontDesk)
	}

	outboxRepo := postgres.NewOutboxRepository(db)
	processor, err := worker.NewOutboxProcessor(outboxRepo, broker, notifier, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		Channel:       cfg.Outbox.Channel,
		ClaimLease:    cfg.Outbox.ClaimLease,
	}, log, m)
	if err != nil {
		return err
	}

	scheduler := cron.New()
	cleanup := internalworker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.Retention, log)
	if err := cleanup.Schedule(scheduler, cfg.Outbox.CleanupSchedule); err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	srv := healthServer(cfg.Outbox.HealthPort, db, reg)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "health check server failed")
			stop()
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	processor.Start(ctx)
	return nil
}

func healthServer(port int, db *sqlx.DB, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
