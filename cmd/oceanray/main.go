package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/oceanus/oceanray/internal/api"
	"github.com/oceanus/oceanray/internal/auth"
	"github.com/oceanus/oceanray/internal/engine"
	"github.com/oceanus/oceanray/internal/env"
	"github.com/oceanus/oceanray/internal/health"
	"github.com/oceanus/oceanray/internal/job"
	"github.com/oceanus/oceanray/internal/router"
	"github.com/oceanus/oceanray/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("OCEANRAY_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	presets := loadPresets(logger)

	engineCfg := loadEngineConfig(logger)
	eng := engine.New(engineCfg, logger)

	jobCfg := loadJobConfig(logger)
	orchestrator := job.NewOrchestrator(eng, jobCfg, logger)

	routerCfg := loadRouterConfig(logger)
	rt := router.New(routerCfg, eng, orchestrator, logger)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(orchestrator, streamCfg, logger)

	srv := api.NewServer(addr, rt, orchestrator, streamHandler, presets, logger, authCfg)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)
	health.SetReady(true)

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"presets", len(presets),
			"sync_threshold", routerCfg.SyncThreshold,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("OCEANRAY_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("OCEANRAY_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("OCEANRAY_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("OCEANRAY_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadPresets(logger *slog.Logger) []env.Preset {
	path := os.Getenv("OCEANRAY_PRESETS_FILE")
	if path == "" {
		logger.Info("no presets file configured, starting without presets")
		return nil
	}

	presets, err := env.LoadPresets(path)
	if err != nil {
		logger.Error("failed to load presets", "path", path, "error", err)
		os.Exit(1)
	}
	logger.Info("loaded environment presets", "path", path, "count", len(presets))
	return presets
}

func loadEngineConfig(logger *slog.Logger) engine.Config {
	cfg := engine.Config{
		Workers: runtime.NumCPU(),
	}

	if v := os.Getenv("OCEANRAY_TRACE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid OCEANRAY_TRACE_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	logger.Info("engine config", "workers", cfg.Workers)
	return cfg
}

func loadJobConfig(logger *slog.Logger) job.Config {
	cfg := job.Config{
		Workers:          2,
		Timeout:          10 * time.Minute,
		ProgressInterval: 500 * time.Millisecond,
		HistoryLimit:     100,
	}

	if v := os.Getenv("OCEANRAY_JOB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid OCEANRAY_JOB_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("OCEANRAY_JOB_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid OCEANRAY_JOB_TIMEOUT value, using default", "value", v, "default", 600)
		} else {
			cfg.Timeout = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("OCEANRAY_JOB_PROGRESS_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid OCEANRAY_JOB_PROGRESS_INTERVAL_MS value, using default", "value", v, "default", 500)
		} else {
			cfg.ProgressInterval = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("OCEANRAY_JOB_HISTORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid OCEANRAY_JOB_HISTORY_LIMIT value, using default", "value", v, "default", 100)
		} else {
			cfg.HistoryLimit = n
		}
	}

	logger.Info("job config",
		"workers", cfg.Workers,
		"timeout_seconds", cfg.Timeout.Seconds(),
		"progress_interval_ms", cfg.ProgressInterval.Milliseconds(),
		"history_limit", cfg.HistoryLimit,
	)
	return cfg
}

func loadRouterConfig(logger *slog.Logger) router.Config {
	cfg := router.Config{
		SyncThreshold: 500000,
		MaxWorkload:   500000000,
	}

	if v := os.Getenv("OCEANRAY_SYNC_THRESHOLD"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n < 1 {
			logger.Warn("invalid OCEANRAY_SYNC_THRESHOLD value, using default", "value", v, "default", cfg.SyncThreshold)
		} else {
			cfg.SyncThreshold = n
		}
	}

	if v := os.Getenv("OCEANRAY_MAX_WORKLOAD"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			logger.Warn("invalid OCEANRAY_MAX_WORKLOAD value, using default", "value", v, "default", cfg.MaxWorkload)
		} else {
			cfg.MaxWorkload = n
		}
	}

	logger.Info("router config",
		"sync_threshold", cfg.SyncThreshold,
		"max_workload", cfg.MaxWorkload,
	)
	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxTotal:           1000,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("OCEANRAY_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid OCEANRAY_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("OCEANRAY_STREAM_MAX_TOTAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid OCEANRAY_STREAM_MAX_TOTAL value, using default", "value", v, "default", 1000)
		} else {
			cfg.MaxTotal = n
		}
	}

	if v := os.Getenv("OCEANRAY_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid OCEANRAY_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("OCEANRAY_STREAM_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid OCEANRAY_STREAM_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_total", cfg.MaxTotal,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)
	return cfg
}
