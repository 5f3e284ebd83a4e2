// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/starford/monteerly/internal/api"
	"github.com/starford/monteerly/internal/docstore"
	"github.com/starford/monteerly/internal/mcpserver"
	"github.com/starford/monteerly/internal/session"
	"github.com/starford/monteerly/internal/storage"
	"github.com/starford/monteerly/internal/studio"
)

// services bundles everything both entry points build from the config.
type services struct {
	store    *docstore.Store
	sessions *session.Service
	files    storage.Provider
	studio   *studio.Service
}

func (s *services) Close() error {
	return s.store.Close()
}

func newLogger(cfg *Config, out io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func federatedFrom(cfg FederatedConfig) *session.Federated {
	if !cfg.Enabled {
		return nil
	}
	return &session.Federated{
		Provider: cfg.Provider,
		OAuth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		UserInfoURL: cfg.UserInfoURL,
	}
}

func openServices(cfg *Config, logger *slog.Logger) (*services, error) {
	store, err := docstore.Open(cfg.SQLite.Path, docstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init docstore: %w", err)
	}

	sessions, err := session.NewService(store.SQL(), store,
		session.WithTTL(cfg.Auth.SessionTTL),
		session.WithFederated(federatedFrom(cfg.Auth.Federated)),
		session.WithLogger(logger),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init sessions: %w", err)
	}

	var files storage.Provider
	if cfg.Attachments.Enabled() {
		if err := os.MkdirAll(cfg.Attachments.Path, 0o755); err != nil {
			store.Close()
			return nil, fmt.Errorf("create attachments dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Attachments.Path)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init attachments: %w", err)
		}
		files = fs
	}

	return &services{
		store:    store,
		sessions: sessions,
		files:    files,
		studio:   studio.NewService(store, files, logger),
	}, nil
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	cfg := app.config
	logger := newLogger(cfg, app.logOut)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("attachments_path", cfg.Attachments.Path),
		slog.Bool("federated", cfg.Auth.Federated.Enabled),
		slog.Bool("watch_external", cfg.Sync.WatchExternal),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	apiRouter := api.NewRouter(svc.sessions, svc.studio, svc.store, svc.files, logger)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.StripAccessToken)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.store.SQL().PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
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

	if cfg.Sync.WatchExternal {
		g.Go(func() error {
			if err := svc.store.Watch(gCtx, cfg.SQLite.Path); err != nil {
				logger.Warn("external change watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP signs in with the configured credentials and serves MCP tools on
// stdin/stdout. Logs must be redirected with WithLogOutput.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.logOut == os.Stdout {
		return fmt.Errorf("mcp: logs must not be written to stdout")
	}

	cfg := app.config
	if err := cfg.MCP.Validate(); err != nil {
		return fmt.Errorf("mcp config: %w", err)
	}
	logger := newLogger(cfg, app.logOut)

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Sync.WatchExternal {
		go func() {
			if err := svc.store.Watch(ctx, cfg.SQLite.Path); err != nil {
				logger.Warn("external change watcher disabled", slog.String("error", err.Error()))
			}
		}()
	}

	client := session.NewClient(svc.sessions)
	if err := client.SignIn(ctx, cfg.MCP.Email, cfg.MCP.Password); err != nil {
		return fmt.Errorf("mcp sign-in: %w", err)
	}
	defer func() { _ = client.SignOut(context.Background()) }()

	srv := mcpserver.New(ctx, svc.studio, client, svc.store, svc.files, logger)
	defer srv.Close()

	logger.Info("MCP server starting", slog.String("email", cfg.MCP.Email))
	return srv.ServeStdio()
}
