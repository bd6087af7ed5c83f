package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/seafile_downloader/internal/cleanup"
	"github.com/italolelis/seafile_downloader/internal/config"
	"github.com/italolelis/seafile_downloader/internal/downloader"
	"github.com/italolelis/seafile_downloader/internal/events"
	"github.com/italolelis/seafile_downloader/internal/http/rest"
	"github.com/italolelis/seafile_downloader/internal/logctx"
	"github.com/italolelis/seafile_downloader/internal/notifier"
	"github.com/italolelis/seafile_downloader/internal/seafile"
	"github.com/italolelis/seafile_downloader/internal/sharelink"
	"github.com/italolelis/seafile_downloader/internal/storage"
	"github.com/italolelis/seafile_downloader/internal/storage/sqlite"
	"github.com/italolelis/seafile_downloader/internal/telemetry"
	"github.com/italolelis/seafile_downloader/internal/transfer"
	"github.com/italolelis/seafile_downloader/internal/tree"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(logctx.NewTraceHandler(handler))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("seafile downloader starting...", "mode", cfg.Mode, "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInterval:   cfg.Telemetry.OTLPInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	var history *sqlite.InstrumentedDownloadRepository

	if cfg.DBPath != "" {
		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			logger.Error("DB error", "err", err)

			return err
		}
		defer database.Close()

		history = sqlite.NewInstrumentedDownloadRepository(database, tel)
	}

	// =========================================================================
	// Start Share Sessions
	sessions := transfer.InstrumentSessions(seafile.NewSessionFactory(seafile.Config{
		BaseURL:   cfg.SeafileBaseURL,
		UserAgent: cfg.SeafileUserAgent,
		Timeout:   cfg.HTTPTimeout,
	}), tel, "seafile")

	// =========================================================================
	// Start Downloader
	broadcaster := events.NewBroadcaster()

	opts := []downloader.Option{downloader.WithTelemetry(tel)}
	if history != nil {
		opts = append(opts, downloader.WithHistory(history))
	}

	dl := downloader.NewDownloader(sessions, transfer.MultiEmitter{events.LogEmitter{}, broadcaster}, opts...)
	discoverer := tree.NewDiscoverer(sessions, tel)
	parser := sharelink.New(cfg.SeafileBaseURL)

	// =========================================================================
	// Start Notification
	batches := setupNotificationForDownloader(dl, cfg)

	switch cfg.Mode {
	case config.ModeServe:
		return serve(ctx, cfg, tel, history, rest.NewShareHandler(
			cfg.Web.Username, cfg.Web.Password, cfg.TargetDir,
			parser, discoverer, batches, broadcaster, historyReader(history),
		))
	default:
		return runOnce(ctx, cfg, parser, discoverer, batches)
	}
}

// runOnce downloads the configured share selection and exits.
func runOnce(ctx context.Context, cfg *config.Config, parser *sharelink.Parser, discoverer *tree.Discoverer, batches rest.BatchDownloader) error {
	logger := logctx.LoggerFromContext(ctx)

	shareKey := parser.Parse(cfg.ShareLink)
	if shareKey == "" {
		return fmt.Errorf("not a recognized share link: %s", cfg.ShareLink)
	}

	nodes, err := discoverer.Discover(ctx, shareKey, cfg.Password())
	if err != nil {
		return fmt.Errorf("failed to list share: %w", err)
	}

	items := tree.Items(nodes, cfg.TargetDir, cfg.Select...)
	if len(items) == 0 {
		logger.Warn("nothing selected for download", "select", cfg.Select)

		return nil
	}

	logger.Info("downloading share",
		"share_key", shareKey,
		"target_dir", cfg.TargetDir,
		"share", tree.Summarize(nodes).String(),
		"selected", len(items))

	return batches.DownloadBatch(ctx, shareKey, items, cfg.Password())
}

// serve runs the HTTP command surface until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, history *sqlite.InstrumentedDownloadRepository, h *rest.ShareHandler) error {
	logger := logctx.LoggerFromContext(ctx)

	server := setupServer(ctx, cfg, tel, h)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	if history != nil {
		g.Go(func() error {
			cleanup.Run(gctx, history, cfg.KeepHistoryFor, cfg.CleanupInterval)

			return nil
		})
	}

	return g.Wait()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, h *rest.ShareHandler) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", h.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

// notifyingDownloader reports every finished batch to the configured notifier.
type notifyingDownloader struct {
	next  rest.BatchDownloader
	notif notifier.Notifier
}

func (n *notifyingDownloader) DownloadBatch(ctx context.Context, shareKey string, items []transfer.DownloadItem, password *string) error {
	err := n.next.DownloadBatch(ctx, shareKey, items, password)

	if notifyErr := n.notif.Notify(ctx, notifier.BatchMessage(shareKey, len(items), localSize(items), err)); notifyErr != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send notification", "share_key", shareKey, "err", notifyErr)
	}

	return err
}

func setupNotificationForDownloader(dl *downloader.Downloader, cfg *config.Config) rest.BatchDownloader {
	if cfg.DiscordWebhookURL == "" {
		return dl
	}

	return &notifyingDownloader{
		next:  dl,
		notif: &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL},
	}
}

// localSize sums what is on disk for items, which after a successful batch is the bytes fetched.
func localSize(items []transfer.DownloadItem) int64 {
	var total int64

	for _, item := range items {
		if info, err := os.Stat(item.SavePath); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
	}

	return total
}

func historyReader(history *sqlite.InstrumentedDownloadRepository) storage.DownloadReadRepository {
	if history == nil {
		return nil
	}

	return history
}
