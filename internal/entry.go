// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/imagesorter/internal/api"
	"github.com/starford/imagesorter/internal/fetcher"
	"github.com/starford/imagesorter/internal/journal"
	"github.com/starford/imagesorter/internal/mcpserver"
	"github.com/starford/imagesorter/internal/models"
	"github.com/starford/imagesorter/internal/rules"
	"github.com/starford/imagesorter/internal/sorter"
	"github.com/starford/imagesorter/internal/sse"
	"github.com/starford/imagesorter/internal/storage"
	"github.com/starford/imagesorter/internal/watcher"
)

// components are the collaborators shared by every entry point.
type components struct {
	logger  *slog.Logger
	store   *storage.FS
	rules   *rules.Store
	journal *journal.DB // nil when disabled
	sorter  *sorter.Sorter
}

func (c *components) close() {
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.logger.Warn("journal: close failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup builds storage, rules, journal, fetcher and sorter. Extra sorter
// options (e.g. an SSE notifier) are appended after the journal recorder.
func (a *application) setup(extra ...sorter.Option) (*components, error) {
	cfg := a.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("rules_path", cfg.Rules.Path),
		slog.String("journal_path", cfg.Journal.Path),
		slog.String("settle_delay", cfg.Sorter.SettleDelay.String()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	ruleStore, err := rules.Open(cfg.Rules.Path)
	if err != nil {
		return nil, fmt.Errorf("init rules: %w", err)
	}
	logger.Info("rules: loaded", slog.Int("count", len(ruleStore.Get())))

	c := &components{logger: logger, store: store, rules: ruleStore}

	var sorterOpts []sorter.Option
	if cfg.Journal.Enabled() {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		c.journal = db
		sorterOpts = append(sorterOpts, sorter.WithRecorder(db))
	}
	sorterOpts = append(sorterOpts, extra...)

	client := a.httpClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Fetch.Timeout}
	}
	f := fetcher.New(
		fetcher.WithClient(client),
		fetcher.WithMaxBytes(cfg.Fetch.MaxBytes),
		fetcher.WithUserAgent(cfg.Fetch.UserAgent),
		fetcher.WithBlockInternal(cfg.Fetch.BlockInternal),
	)

	c.sorter = sorter.New(store, ruleStore, f, logger, cfg.Sorter.Sorter(), sorterOpts...)
	return c, nil
}

// Run starts the application with the given options: the vault watcher
// feeding the sorter, and the HTTP API.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	ignore, err := watcher.CompileIgnore(cfg.Watch.Ignore)
	if err != nil {
		return err
	}

	// SSE broker.
	broker := sse.NewBroker(cfg.App.HTTP.SSEKeepalive)
	defer broker.Close()

	c, err := app.setup(sorter.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer c.close()
	logger := c.logger

	deps := api.Deps{Rules: c.rules, Sorter: c.sorter, Vault: c.store}
	if c.journal != nil {
		deps.Runs = c.journal
	}
	apiRouter := api.NewRouter(deps, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Feed newly created notes to the sorter. Failures are logged and
	// journaled by the sorter itself.
	g.Go(func() error {
		err := watcher.Watch(gCtx, cfg.Vault.Path, ignore, logger, func(ctx context.Context, path string) {
			_ = c.sorter.OnDocumentCreated(ctx, path)
		})
		if err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Ends open /api/events streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the
// HTTP server.
var errShutdown = errors.New("shutdown")

// SortNote runs the pipeline once on a vault-relative note path, with no
// settle delay. A skipped note is reported through an apperr.KindNotApplicable
// error.
func SortNote(ctx context.Context, notePath string, opts ...Option) (*models.TargetAsset, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := app.setup()
	if err != nil {
		return nil, err
	}
	defer c.close()
	return c.sorter.Process(ctx, notePath)
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
// Logs go to stderr unless WithLogOutput says otherwise.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := app.setup()
	if err != nil {
		return err
	}
	defer c.close()

	var runs mcpserver.RunLister
	if c.journal != nil {
		runs = c.journal
	}
	srv := mcpserver.New(c.rules, c.sorter, runs, c.store, app.version)

	c.logger.Info("mcp: serving on stdio")
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
