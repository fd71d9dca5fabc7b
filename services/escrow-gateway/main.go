package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"trustescrow/config"
	"trustescrow/core"
	"trustescrow/core/state"
	"trustescrow/native/common"
	"trustescrow/native/reputation"
	"trustescrow/observability/logging"
	telemetry "trustescrow/observability/otel"
	"trustescrow/services/activitylog"
	"trustescrow/storage"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Hour
)

func main() {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		slog.Error("load gateway config", slog.Any("error", err))
		os.Exit(1)
	}
	engineCfg, err := config.Load(cfg.EngineConfigPath)
	if err != nil {
		slog.Error("load engine config", slog.String("path", cfg.EngineConfigPath), slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.SetupWithOptions("escrow-gateway", cfg.Environment, logging.Options{
		Level:      engineCfg.Logging.Level,
		File:       engineCfg.Logging.File,
		MaxSizeMB:  engineCfg.Logging.MaxSizeMB,
		MaxBackups: engineCfg.Logging.MaxBackups,
	})
	if err := run(cfg, engineCfg, logger); err != nil {
		logger.Error("escrow gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg Config, engineCfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "escrow-gateway",
		Environment: cfg.Environment,
		Endpoint:    engineCfg.Telemetry.Endpoint,
		Insecure:    engineCfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(engineCfg.Telemetry.Headers),
		Metrics:     engineCfg.Telemetry.Metrics,
		Traces:      engineCfg.Telemetry.Traces,
		SampleRatio: engineCfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := storage.Open(engineCfg.Storage.Backend, engineCfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	gormDB, err := activitylog.Open(engineCfg.Activity.Driver, engineCfg.Activity.DSN)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	activity, err := activitylog.New(gormDB, logger)
	if err != nil {
		return err
	}

	policy, err := scorePolicy(engineCfg.Reputation)
	if err != nil {
		return err
	}
	settlement := core.NewSettlement(state.NewManager(db),
		core.WithActivitySink(activity),
		core.WithPauses(common.NewStaticPauses(engineCfg.Pauses.Modules())),
		core.WithScorePolicy(policy),
		core.WithMaxChainDepth(engineCfg.Chain.MaxDepth),
		core.WithLogger(logger),
	)

	store, err := NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	server, err := NewServer(ServerOptions{
		Settlement:  settlement,
		Store:       store,
		Activity:    activity,
		Auth:        cfg.Auth,
		RateLimit:   cfg.RateLimit,
		CORSOrigins: cfg.CORSOrigins,
		LogRequests: cfg.LogRequests,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	go pruneIdempotency(ctx, store, cfg.IdempotencyTTL, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(server, "escrow-gateway"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("escrow gateway listening", slog.String("addr", cfg.ListenAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down escrow gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func scorePolicy(cfg config.Reputation) (reputation.ScorePolicy, error) {
	unit, err := cfg.VolumeUnitAmount()
	if err != nil {
		return nil, err
	}
	return reputation.WeightedPolicy{
		ReleaseWeight:      cfg.ReleaseWeight,
		DisputeWonWeight:   cfg.DisputeWonWeight,
		DisputeLostPenalty: cfg.DisputeLostPenalty,
		RefundPenalty:      cfg.RefundPenalty,
		VolumeUnit:         unit,
		MaxVolumePoints:    cfg.MaxVolumePoints,
	}, nil
}

func pruneIdempotency(ctx context.Context, store *SQLiteStore, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.PruneIdempotency(ctx, now.Add(-ttl))
			if err != nil {
				logger.Warn("idempotency prune failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency keys pruned", slog.Int64("removed", removed))
			}
		}
	}
}
