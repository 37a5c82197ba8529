package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"spendscope/internal/config"
	"spendscope/internal/handlers/backup"
	"spendscope/internal/handlers/dashboard"
	"spendscope/internal/handlers/explorer"
	apphttp "spendscope/internal/http"
	"spendscope/internal/logger"
	dashsvc "spendscope/internal/services/dashboard"
	"spendscope/internal/services/dataloader"
	"spendscope/internal/services/storage"
	"spendscope/internal/source"
	"spendscope/internal/source/remote"
	"spendscope/internal/source/sqlite"
	"spendscope/internal/version"
)

var (
	cfg     *config.Config
	log     zerolog.Logger
	closers []io.Closer
)

func main() {
	cfg = config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log = logger.New(cfg.Debug)

	info := version.Get()
	log.Info().
		Str("version", info.Short()).
		Str("backend", cfg.DataBackend).
		Str("addr", cfg.ListenAddr).
		Msg("Starting spendscope")
	if w := info.Warning(); w != "" {
		log.Warn().Msg(w)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Release:     info.Version,
		}); err != nil {
			log.Warn().Err(err).Msg("Sentry initialization failed")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if err := SetupDependencies(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up dependencies")
	}
	defer closeDependencies()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server failed")
		}
		return
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// SetupDependencies builds the transaction source selected by c and wires
// every handler package to it
func SetupDependencies(c *config.Config) error {
	cfg = c
	if err := c.EnsureDirectories(); err != nil {
		return err
	}

	var (
		src      source.Source
		ingester explorer.Ingester
		files    explorer.FileLister
		archiver backup.Archiver
		patterns dashsvc.PatternSource
		client   *remote.Client
	)

	switch c.DataBackend {
	case config.BackendFiles:
		store, err := storage.Open(c.UploadsDirectory)
		if err != nil {
			return err
		}
		if store.Sealed() {
			if c.Passphrase == "" {
				return errors.New("uploads directory is encrypted: set SPEND_PASSPHRASE or run `spendctl decrypt`")
			}
			if err := store.Unlock(c.Passphrase); err != nil {
				return fmt.Errorf("unlock uploads directory: %w", err)
			}
			log.Info().Msg("Unlocked encrypted uploads directory")
		}
		loader := dataloader.New(store, log)
		src, ingester, files, archiver = loader, loader, loader, loader

	case config.BackendSQLite:
		db, err := sqlite.Open(c.SQLiteDBPath, log)
		if err != nil {
			return err
		}
		closers = append(closers, db)
		src, ingester = db, db

	case config.BackendRemote:
		var err error
		if client, err = newRemoteClient(c); err != nil {
			return err
		}
		src = client

	default:
		return fmt.Errorf("unknown data backend %q", c.DataBackend)
	}

	if c.UseBackendAnalytics() {
		if client == nil {
			var err error
			if client, err = newRemoteClient(c); err != nil {
				return err
			}
		}
		patterns = client
	}

	svc := dashsvc.New(src, dashsvc.Options{
		Patterns: patterns,
		PageSize: c.PageSize,
		MaxPages: c.MaxPages,
		Logger:   log,
	})

	dashboard.Initialize(svc)
	explorer.Initialize(svc, ingester, files, c.MaxUploadBytes)
	backup.Initialize(c.DataBackend, archiver, ingester)
	return nil
}

func newRemoteClient(c *config.Config) (*remote.Client, error) {
	client, err := remote.New(remote.Options{
		BaseURL:    c.RemoteBaseURL,
		Timeout:    c.RemoteTimeout,
		MaxRetries: c.RemoteRetries,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("remote client: %w", err)
	}
	return client, nil
}

func closeDependencies() {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
	closers = nil
}

// SetupRouter creates the chi router with all routes configured
func SetupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apphttp.RequestLogger(log))
	r.Use(apphttp.Recovery(log))
	r.Use(middleware.Compress(5))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/dashboard", http.StatusTemporaryRedirect)
	})

	backup.RegisterRoutes(r)
	dashboard.RegisterRoutes(r)
	explorer.RegisterRoutes(r)

	return r
}
