// Fleet Worker — выполняет workflow на парке устройств.
//
// Worker:
//   - Получает job'ы из RabbitMQ (jobs.execute) и из БД (polling fallback)
//   - Выполняет workflow на каждом устройстве job'а
//   - Ведёт жизненный цикл устройств в Redis (running, error, quarantined)
//   - Сохраняет итог job'а в Postgres и публикует события
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Fleet/internal/action"
	"github.com/shaiso/Fleet/internal/aggregator"
	"github.com/shaiso/Fleet/internal/api"
	"github.com/shaiso/Fleet/internal/catalog"
	"github.com/shaiso/Fleet/internal/config"
	"github.com/shaiso/Fleet/internal/engine"
	"github.com/shaiso/Fleet/internal/lifecycle"
	"github.com/shaiso/Fleet/internal/mq"
	"github.com/shaiso/Fleet/internal/repo"
	"github.com/shaiso/Fleet/internal/state"
	"github.com/shaiso/Fleet/internal/telemetry"
	"github.com/shaiso/Fleet/internal/worker"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	cmd := &cobra.Command{
		Use:           "fleet-worker",
		Short:         "Fleet worker — executes device workflows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.SetupFlags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting fleet-worker", "version", version, "node_id", cfg.NodeID)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	if err := repo.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("database connected")

	jobRepo := repo.NewJobRepo(pool)

	// Device state
	var store state.Store
	if cfg.UsesRedis() {
		redisStore, err := state.NewRedisStore(ctx, state.RedisConfig{
			Addrs:     cfg.RedisAddrs,
			Namespace: cfg.RedisNamespace,
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisStore.Close()
		store = redisStore
		logger.Info("redis connected", "addrs", cfg.RedisAddrs)
	} else {
		store = state.NewMemoryStore()
		logger.Warn("redis-addr is empty, device state is kept in process memory")
	}

	// RabbitMQ
	var (
		mqConn    *mq.Connection
		events    lifecycle.EventPublisher
		results   aggregator.ResultPublisher
		progress  worker.ProgressPublisher
		publisher *mq.Publisher
	)
	mqConn, err = mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		logger.Debug(mq.TopologyInfo())

		publisher = mq.NewPublisher(mqConn, logger)
		events, results, progress = publisher, publisher, publisher
	}

	// Workflow catalog
	workflows := catalog.New(cfg.WorkflowsDir, logger)
	if err := workflows.Reload(); err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}
	if cfg.WorkflowsReloadCron != "" {
		if err := workflows.ScheduleReload(ctx, cfg.WorkflowsReloadCron); err != nil {
			return err
		}
	}
	go reloadOnSIGHUP(ctx, workflows, logger)

	// Execution pipeline
	dispatcher := action.NewDispatcher(action.Config{
		Scripts:         action.NewHTTPActuator(cfg.ActuatorURL, "scripts"),
		Shell:           action.NewHTTPActuator(cfg.ActuatorURL, "shell"),
		ActuatorTimeout: cfg.ActuatorTimeout,
		Logger:          logger,
	})

	tracker := lifecycle.NewTracker(lifecycle.Config{
		Store:               store,
		Events:              events,
		NodeID:              cfg.NodeID,
		QuarantineThreshold: cfg.QuarantineThreshold,
		Logger:              logger,
	})

	sequencer := engine.NewSequencer(engine.SequencerConfig{
		Executor:           dispatcher,
		Observer:           tracker,
		DefaultStepTimeout: cfg.DefaultStepTimeout,
		MaxTransitions:     cfg.MaxStepTransitions,
		Logger:             logger,
	})

	agg := aggregator.New(aggregator.Config{
		Workflows:   workflows,
		Runner:      sequencer,
		Tracker:     tracker,
		Results:     jobRepo,
		Publisher:   results,
		Cancel:      jobRepo,
		Concurrency: cfg.DeviceConcurrency,
		Logger:      logger,
	})

	w := worker.New(worker.Config{
		Jobs:              jobRepo,
		Runner:            agg,
		Progress:          progress,
		Nodes:             store,
		Conn:              mqConn,
		NodeID:            cfg.NodeID,
		PollInterval:      cfg.PollInterval,
		BatchSize:         cfg.PollBatchSize,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            logger,
	})

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	// HTTP: /healthz, /metrics, status API
	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Workflows:  workflows,
		Executions: jobRepo,
		Devices:    store,
		NodeID:     cfg.NodeID,
		Logger:     logger,
	}).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Текущий job доводится до конца по отменённому ctx: оставшиеся устройства
	// получают "job cancelled", итог сохраняется.
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	logger.Info("fleet-worker stopped")
	return nil
}

// reloadOnSIGHUP перезагружает каталог workflow по SIGHUP.
func reloadOnSIGHUP(ctx context.Context, workflows *catalog.Catalog, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := workflows.Reload(); err != nil {
				logger.Error("catalog reload failed, keeping previous workflows", "error", err)
			}
		}
	}
}
