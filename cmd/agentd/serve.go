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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/console/handler"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/console/server"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/console/service"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/control"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/dispatch"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/history"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/infra"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/infra/auth"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/pipeline"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/repository/postgres"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := infra.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cfg, logger)
		},
	}
}

func serve(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Инфраструктура и ресурсы
	if cfg.Database.URL == "" {
		return errors.New("database.url (DATABASE_URL) is required")
	}
	initCtx, initCancel := context.WithTimeout(appCtx, 10*time.Second)
	defer initCancel()

	pool, err := postgres.NewPool(initCtx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	defer pool.Close()
	if err := postgres.Migrate(initCtx, pool); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	agents := postgres.NewAgentRepo(pool)
	runs := postgres.NewHistoryRepo(pool)

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)

	// 2. Control Plane: пауза и dry-run
	paused := control.NewPausedFlags(rdb, agents, logger)
	if err := paused.Init(initCtx); err != nil {
		return fmt.Errorf("init paused flags: %w", err)
	}
	go paused.StartListener(appCtx)

	dryRun := control.NewDryRunFlags(rdb, agents, logger)
	if err := dryRun.Init(initCtx); err != nil {
		return fmt.Errorf("init dry-run flags: %w", err)
	}
	go dryRun.StartListener(appCtx)

	// 3. История запусков пишется пачками в фоне
	recorder := history.NewRecorder(runs, logger, history.Options{
		BufferSize:    cfg.Engine.HistoryBufferSize,
		BatchSize:     cfg.Engine.HistoryBatchSize,
		FlushInterval: cfg.Engine.HistoryFlushInterval,
		Fill:          metrics.HistoryBufferFill,
	})
	recorder.Start()
	defer recorder.Stop()

	// 4. Core
	runner := pipeline.NewRunner(pipeline.Deps{
		Model:       buildModel(cfg, metrics),
		Dispatcher:  dispatch.New(postgres.NewRecordRepo(pool), dispatch.NewRedisPublisher(rdb), nil, logger),
		Notifier:    buildNotifier(cfg, logger),
		Agents:      agents,
		History:     recorder,
		Paused:      paused,
		DryRun:      dryRun,
		Metrics:     metrics,
		Logger:      logger,
		Concurrency: cfg.Engine.Concurrency,
	})

	var validator auth.TokenValidator
	if len(cfg.Auth.PublicKey) > 0 {
		v, err := auth.NewConsoleValidatorPEM(cfg.Auth.PublicKey, auth.ValidatorOptions{
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			Leeway:   cfg.Auth.Leeway,
		})
		if err != nil {
			return err
		}
		validator = v
	} else {
		logger.Warn("auth public key is not configured, API is open")
	}

	svc := service.NewAgentService(service.Deps{
		Repo:     agents,
		Runs:     runs,
		Stats:    runs,
		Runner:   runner,
		Registry: runner.Registry(),
		Paused:   paused,
		DryRun:   dryRun,
		Logger:   logger,
	})
	api := server.NewConsoleServer(logger, validator, reg,
		handler.NewAgentHandler(svc, logger),
		handler.NewEventHandler(svc),
	)

	// 5. HTTP Server
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agentd started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 6. Graceful Shutdown
	select {
	case <-appCtx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	logger.Info("agentd stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("agentd exited properly")
	return nil
}
