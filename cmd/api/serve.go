package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-records/internal/config"
	appointmenthandler "github.com/jwalitptl/clinic-records/internal/handler/appointment"
	authhandler "github.com/jwalitptl/clinic-records/internal/handler/auth"
	billinghandler "github.com/jwalitptl/clinic-records/internal/handler/billing"
	"github.com/jwalitptl/clinic-records/internal/handler/health"
	patienthandler "github.com/jwalitptl/clinic-records/internal/handler/patient"
	"github.com/jwalitptl/clinic-records/internal/middleware"
	"github.com/jwalitptl/clinic-records/internal/repository/postgres"
	"github.com/jwalitptl/clinic-records/internal/router"
	"github.com/jwalitptl/clinic-records/internal/service/appointment"
	"github.com/jwalitptl/clinic-records/internal/service/billing"
	"github.com/jwalitptl/clinic-records/internal/service/patient"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	redisbroker "github.com/jwalitptl/clinic-records/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

const metricsNamespace = "clinic"

func newServeCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

// bootstrap loads and validates the config and builds the process logger.
func bootstrap(path string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Logging.Level),
		Console: cfg.Logging.Console,
	})
	return cfg, log, nil
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := middleware.RegisterValidators(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("schema applied")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(metricsNamespace, reg)

	checks := map[string]health.Checker{"database": db}

	var locker billing.Locker
	if cfg.Redis.Enabled() {
		client, err := redisbroker.NewClient(ctx, redisConfig(cfg.Redis))
		if err != nil {
			return err
		}
		defer client.Close()
		locker = billing.NewRedisLocker(client, cfg.Billing.LockTTL, cfg.Billing.LockWait)
		checks["redis"] = pingRedis(client)
		log.Info("billing record lock enabled")
	}

	policy, err := appointment.ParsePolicy(cfg.Scheduling.TransitionPolicy)
	if err != nil {
		return err
	}

	authSvc, err := newAuthService(cfg, db, log)
	if err != nil {
		return err
	}
	billingSvc := billing.NewService(postgres.NewBillingRepository(db), locker, log, m)
	appointmentSvc := appointment.NewService(postgres.NewAppointmentRepository(db),
		appointment.Config{Policy: policy, TodayCacheTTL: cfg.Scheduling.TodayCacheTTL}, log, m)
	patientSvc := patient.NewService(postgres.NewPatientRepository(db), log)

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		authhandler.NewHandler(authSvc),
		billinghandler.NewHandler(billingSvc),
		appointmenthandler.NewHandler(appointmentSvc),
		patienthandler.NewHandler(patientSvc),
		health.NewHandler(reg, checks),
		router.Config{
			Mode:      cfg.Server.Mode,
			RateLimit: cfg.RateLimit,
			CORS:      cfg.CORS,
			Namespace: metricsNamespace,
			Registry:  reg,
			Logger:    log,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:           cfg.Server.Addr(),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "policy", string(policy))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

func redisConfig(cfg config.RedisConfig) redisbroker.Config {
	return redisbroker.Config{
		URL:          cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
}

func pingRedis(client *redis.Client) health.CheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
