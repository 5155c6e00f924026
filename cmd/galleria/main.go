package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"galleria/internal/api"
	"galleria/internal/config"
	"galleria/internal/db"
	"galleria/internal/gallery"
	"galleria/internal/media"
	"galleria/internal/metrics"
	"galleria/internal/scan"
	"galleria/internal/scheduler"
	"galleria/internal/store"
	"galleria/internal/thumb"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// ── Logging (initial — overridden below once config is loaded) ─────────
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// ── Config ─────────────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("galleria starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"db_path", cfg.DBPath,
		"media_roots", cfg.MediaRoots)

	metrics.Initialize()

	// ── Database ───────────────────────────────────────────────────────────
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Mark any scans that were 'running' when the last process exited as
	// failed; their committed records are kept.
	if err := scan.MarkStaleScansFailed(database); err != nil {
		slog.Warn("mark stale scans", "error", err)
	}

	st := store.New(database)

	// ── Thumbnail cache and gallery ────────────────────────────────────────
	cache := thumb.New(cfg.Thumbnail.Width, cfg.Thumbnail.Height, cfg.Thumbnail.JPEGQuality)
	provider := gallery.New(st, cache)
	if err := provider.Refresh(context.Background()); err != nil {
		slog.Error("initial gallery load", "error", err)
		os.Exit(1)
	}
	slog.Info("gallery loaded", "rows", provider.RowCount())

	// ── Scan coordinator ───────────────────────────────────────────────────
	notifier := scan.NewNotifier()
	coord := scan.NewCoordinator(database, st, notifier,
		func() *media.Classifier {
			images, videos := cfg.ExtensionSets()
			return media.NewClassifier(images, videos)
		},
		cfg.ExcludePaths)

	// Refresh the gallery snapshot whenever a scan session ends.
	go func() {
		events, cancelSub := notifier.Subscribe()
		defer cancelSub()
		for ev := range events {
			if !ev.Terminal() {
				continue
			}
			if err := provider.Refresh(context.Background()); err != nil {
				slog.Warn("gallery refresh after scan", "error", err)
			}
		}
	}()

	// ── Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New()
	if cfg.Schedule != "" && len(cfg.MediaRoots) > 0 {
		if err := sched.SetJob(cfg.Schedule, func() {
			slog.Info("scheduled rescan triggered")
			go rescanAll(coord, notifier, cfg.MediaRoots)
		}); err != nil {
			slog.Warn("invalid cron expression", "expr", cfg.Schedule, "error", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.New(cfg.HTTPAddr, database, st, cfg, coord, notifier, provider, cache, sched, version)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("galleria stopped")
}

// rescanAll scans each root in turn, waiting for the previous session's
// terminal event before starting the next (only one scan may run at a time).
func rescanAll(coord *scan.Coordinator, notifier *scan.Notifier, roots []string) {
	events, cancelSub := notifier.Subscribe()
	defer cancelSub()

	for _, root := range roots {
		sess, err := coord.Start(context.Background(), root, "schedule")
		if err != nil {
			slog.Warn("scheduled rescan start", "root", root, "error", err)
			continue
		}
		for ev := range events {
			if ev.Terminal() && ev.ScanID == sess.ID {
				break
			}
		}
	}
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
