// Command aurisync runs the dual-stream capture pipeline: microphone and
// playback-loopback audio are aligned by capture timestamp and the echo of
// the playback is removed from the microphone signal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/aurisync/internal/app"
	"github.com/MrWong99/aurisync/internal/config"
	"github.com/MrWong99/aurisync/internal/health"
	"github.com/MrWong99/aurisync/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aurisync: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aurisync: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Telemetry.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("aurisync starting",
		"config", *configPath,
		"metrics_addr", cfg.Telemetry.MetricsAddr,
		"log_level", cfg.Telemetry.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	backend, err := reg.CreateBackend(cfg.Audio)
	if err != nil {
		slog.Error("failed to create capture backend", "backend", cfg.Audio.Backend, "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{app.WithMetrics(observe.DefaultMetrics())}

	if cfg.AEC.Mode == config.AECModeEngine {
		engine, err := reg.CreateEngine(cfg.AEC)
		if err != nil {
			slog.Error("failed to create aec engine", "engine", cfg.AEC.Engine, "err", err)
			return 1
		}
		opts = append(opts, app.WithEngine(engine))
	}

	var framesDelivered atomic.Uint64
	opts = append(opts, app.WithFrameHandler(func(f app.SyncFrame) {
		framesDelivered.Add(1)
		slog.Debug("frame",
			"ticks", f.Ticks,
			"near", f.HasNear,
			"far", f.HasFar,
			"near_level", f.NearLevel,
			"far_level", f.FarLevel,
		)
	}))

	printStartupSummary(cfg)

	application, err := app.New(cfg, backend, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Metrics and health endpoint ───────────────────────────────────────────
	var metricsSrv *http.Server
	if cfg.Telemetry.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(
			health.BoolChecker("pipeline", application.Running, "consumer loop not running"),
		).Register(mux)

		metricsSrv = &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		slog.Info("telemetry endpoint listening", "addr", cfg.Telemetry.MetricsAddr)
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, diff config.ConfigDiff) {
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level updated", "level", diff.NewLogLevel)
		}
		application.ApplyDiff(diff)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Periodic summary ──────────────────────────────────────────────────────
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := application.Stats()
				slog.Info("pipeline summary",
					"frames_delivered", framesDelivered.Load(),
					"aec_frames", stats.FramesProcessed,
					"echo_likely", stats.EchoLikely,
					"pending", application.PendingFrames(),
				)
			}
		}
	}()

	slog.Info("pipeline ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", "err", err)
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        aurisync startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Backend", cfg.Audio.Backend)
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printRow("Frame", fmt.Sprintf("%d ms / %d smp", cfg.Audio.FrameSizeMS, cfg.Audio.FrameSizeSamples()))
	printRow("Tolerance", fmt.Sprintf("%d ms", cfg.Sync.ToleranceMS))
	printRow("Buffer bound", fmt.Sprintf("%d ms", cfg.Sync.MaxBufferMS))
	mode := string(cfg.AEC.Mode)
	if cfg.AEC.Mode == config.AECModeEngine {
		mode = mode + " / " + cfg.AEC.Engine
	}
	printRow("AEC", mode)
	printRow("HP bypass", fmt.Sprintf("%v", cfg.AEC.BypassOnHeadphones))
	printRow("Metrics", cfg.Telemetry.MetricsAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if value == "" {
		value = "(disabled)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
