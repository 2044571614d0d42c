// Package main is the entrypoint for the sitegen progress server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/sitegen/internal/api"
	"github.com/kiranshivaraju/sitegen/internal/api/handler"
	mw "github.com/kiranshivaraju/sitegen/internal/api/middleware"
	"github.com/kiranshivaraju/sitegen/internal/api/response"
	"github.com/kiranshivaraju/sitegen/internal/cache"
	"github.com/kiranshivaraju/sitegen/internal/config"
	"github.com/kiranshivaraju/sitegen/internal/metrics"
	"github.com/kiranshivaraju/sitegen/internal/pipeline"
	"github.com/kiranshivaraju/sitegen/internal/progress"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "demo", cfg.Demo.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Create Redis cache when rate limiting is configured
	var rateCache cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		rateCache = redisCache
		slog.Info("redis connected")
	} else {
		slog.Info("REDIS_URL not set, producer rate limiting disabled")
	}

	// 3. Build tracker, transports and router
	a := newApp(ctx, cfg, rateCache)

	// 4. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		a.close()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.close()
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.close()

	slog.Info("server stopped gracefully")
	return nil
}

// app bundles the long-lived components behind the router.
type app struct {
	tracker *progress.Tracker
	runner  *pipeline.Runner
	ws      *handler.WebSocketHandler
	router  http.Handler
}

// newApp wires the tracker to its producers and subscribers. rateCache may be nil.
func newApp(ctx context.Context, cfg *config.Config, rateCache cache.Cache) *app {
	collector := metrics.NewCollector()

	tracker := progress.New(progress.Options{
		ThrottleWindow:  cfg.Progress.ThrottleWindow,
		RetentionWindow: cfg.Progress.RetentionWindow,
		Observer:        collector,
	})
	ctrl := progress.NewControlRouter(tracker)
	ws := handler.NewWebSocketHandler(ctrl, handler.WebSocketConfig{
		SendBuffer:        cfg.WebSocket.SendBuffer,
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
	})
	runner := pipeline.NewRunner(ctx, tracker)

	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(rateCache, cfg.RateLimit.RequestsPerMinute),

		HealthHandler:   healthHandler(rateCache, tracker, runner),
		CreateJob:       handler.NewCreateJobHandler(tracker),
		UpdateProgress:  handler.NewUpdateProgressHandler(tracker),
		CompleteJob:     handler.NewCompleteJobHandler(tracker),
		RefineEstimate:  handler.NewRefineEstimateHandler(tracker),
		JobStatus:       handler.NewJobStatusHandler(tracker),
		JobHistory:      handler.NewJobHistoryHandler(tracker),
		JobMetrics:      handler.NewJobMetricsHandler(tracker),
		WebSocket:       ws,
		MetricsExporter: collector.Handler(),
	}
	if cfg.Demo.Enabled {
		deps.DemoHandler = handler.NewDemoHandler(runner, cfg.Demo.StepDelay)
		deps.DemoCancel = handler.NewCancelDemoHandler(runner)
	}

	return &app{
		tracker: tracker,
		runner:  runner,
		ws:      ws,
		router:  api.NewRouter(deps),
	}
}

// close stops pipeline runs first so their final completions are still
// broadcast, then drops subscribers and timers.
func (a *app) close() {
	a.runner.Close()
	a.ws.CloseAll()
	a.tracker.Close()
}

type activeJobs interface {
	ActiveJobs() int
}

type activePipelines interface {
	Active() int
}

// healthHandler reports cache connectivity, the number of tracked jobs and
// the number of pipeline runs in flight.
func healthHandler(c cache.Cache, jobs activeJobs, runs activePipelines) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"cache": "disabled",
		}

		if c != nil {
			checks["cache"] = "ok"
			if err := c.Ping(r.Context()); err != nil {
				checks["cache"] = "degraded"
			}
		}

		if checks["cache"] == "degraded" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":           "ok",
			"services":         checks,
			"activeJobs":       jobs.ActiveJobs(),
			"runningPipelines": runs.Active(),
		})
	}
}
