// Package main provides the breeder worker process entry point: it loads
// the process environment and the job's breeder configuration, wires every
// adapter, runs one Worker Loop against its assigned target, and exposes a
// liveness/readiness/metrics surface alongside it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/godon-project/breeder-worker/internal/adapter/effectuation/httpapply"
	"github.com/godon-project/breeder-worker/internal/adapter/events/kafka"
	reconprom "github.com/godon-project/breeder-worker/internal/adapter/reconnaissance/prometheus"
	"github.com/godon-project/breeder-worker/internal/adapter/rollbacklock/redislock"
	"github.com/godon-project/breeder-worker/internal/adapter/statusserver"
	"github.com/godon-project/breeder-worker/internal/adapter/study/postgres"
	"github.com/godon-project/breeder-worker/internal/config"
	"github.com/godon-project/breeder-worker/internal/cooperation"
	"github.com/godon-project/breeder-worker/internal/domain"
	"github.com/godon-project/breeder-worker/internal/observability"
	"github.com/godon-project/breeder-worker/internal/preflight"
	"github.com/godon-project/breeder-worker/internal/reconnaissance"
	"github.com/godon-project/breeder-worker/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	jobCfg, err := config.LoadBreederConfig(cfg.BreederConfigPath)
	if err != nil {
		slog.Error("breeder config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if result := preflight.Run(jobCfg, cfg.StrictValidation); !result.Success {
		slog.Error("breeder config failed preflight validation", slog.Any("errors", result.Errors))
		os.Exit(1)
	}

	target, ok := resolveTarget(jobCfg, jobCfg.TargetID)
	if !ok {
		slog.Error("configured target_id not found among effectuation targets", slog.Int("target_id", jobCfg.TargetID))
		os.Exit(1)
	}

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	registry := postgres.NewRegistry(pool)
	kind := worker.AssignSampler(workerID, jobCfg.Run.Parallel)
	samplerCfg := domain.SamplerConfig{Kind: kind}
	studyName := worker.StudyName(jobCfg.Breeder.UUID, kind, jobCfg.Run.Parallel)
	study, err := openOrCreateStudy(ctx, registry, studyName, jobCfg.Directions(), samplerCfg)
	if err != nil {
		slog.Error("failed to open or create study", slog.Any("error", err))
		os.Exit(1)
	}

	metricsClient := observability.NewPrometheusMetricsClient(jobCfg.Breeder.Name, cfg.PushgatewayURL, cfg.PushMetricsEnabled, logger)

	effectuationClient := httpapply.New(cfg.HTTPApplyBaseURL, cfg.HTTPApplyTimeout, logger)
	_, initial, _, _ := cfg.GetBackoffConfig()
	effectuationClient.InitialDelay = initial

	reconSampler := reconnaissance.New(logger, map[string]domain.ReconnaissanceService{
		"prometheus": reconprom.New(cfg.PrometheusURL, logger),
	})

	var lock domain.RollbackLock
	if cfg.RollbackLockEnabled() {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer func() { _ = redisClient.Close() }()
		lock = redislock.New(redisClient, logger)
	}

	var events domain.EventPublisher
	if cfg.EventsEnabled() {
		publisher, err := kafka.New(cfg.KafkaBrokers, logger)
		if err != nil {
			slog.Error("kafka publisher init failed, progress events disabled", slog.Any("error", err))
		} else {
			events = publisher
			defer publisher.Close()
		}
	}

	coopStrategy := cooperation.New(logger, nil)

	w := worker.New(jobCfg, target, workerID, worker.Deps{
		Study:          study,
		Registry:       registry,
		Effectuation:   effectuationClient,
		Reconnaissance: reconSampler,
		Cooperation:    coopStrategy,
		Metrics:        metricsClient,
		Lock:           lock,
		Events:         events,
		Logger:         logger,
	})

	statusAddr := fmt.Sprintf(":%d", cfg.StatusServerPort)
	statusSrv := &http.Server{
		Addr: statusAddr,
		Handler: statusserver.BuildRouter(cfg, pool, func() statusserver.Status {
			snap := w.Snapshot()
			return statusserver.Status{BreederID: jobCfg.Breeder.UUID, WorkerID: workerID, State: snap.State}
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("status server listening", slog.String("addr", statusAddr))
		if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server error", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
		defer cancel()
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("status server shutdown error", slog.Any("error", err))
		}
	}()

	slog.Info("starting worker loop",
		slog.String("breeder", jobCfg.Breeder.UUID), slog.String("worker_id", workerID),
		slog.Int("target", target.ID), slog.String("sampler", string(kind)), slog.String("study", studyName))

	if err := w.Run(ctx); err != nil {
		slog.Error("worker loop exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker loop finished")
}

func resolveTarget(cfg domain.BreederConfig, targetID int) (domain.Target, bool) {
	for _, t := range cfg.Effectuation.Targets {
		if t.ID == targetID {
			return t, true
		}
	}
	return domain.Target{}, false
}

func openOrCreateStudy(ctx context.Context, registry *postgres.Registry, name string, directions []domain.Direction, samplerCfg domain.SamplerConfig) (domain.Study, error) {
	study, err := registry.OpenStudy(ctx, name)
	if err == nil {
		return study, nil
	}
	return registry.CreateStudy(ctx, name, directions, samplerCfg)
}
