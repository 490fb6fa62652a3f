// Package app initializes and runs the main application service.
// It configures logging, storage, sessions, authentication, and routing,
// and handles graceful shutdown.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vkarpenko/shrturl/internal/allocator"
	"github.com/vkarpenko/shrturl/internal/auth"
	"github.com/vkarpenko/shrturl/internal/config"
	"github.com/vkarpenko/shrturl/internal/db/memorystorage"
	"github.com/vkarpenko/shrturl/internal/db/postgresdb"
	"github.com/vkarpenko/shrturl/internal/db/storage"
	"github.com/vkarpenko/shrturl/internal/hasher"
	"github.com/vkarpenko/shrturl/internal/logger"
	"github.com/vkarpenko/shrturl/internal/models"
	"github.com/vkarpenko/shrturl/internal/router"
	"github.com/vkarpenko/shrturl/internal/service"
	"github.com/vkarpenko/shrturl/internal/session"

	"golang.org/x/crypto/bcrypt"
)

// App encapsulates the configuration, HTTP handler and storage backend
// needed to run the URL shortener service.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	httpHandler http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - setting up sessions, the session guard and the slug allocator
// - setting up the router and middleware
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	authCookieSigningSecretKey, err := base64.URLEncoding.DecodeString(app.cfg.AuthCookieSigningSecretKey)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(
		session.NewMemStore(),
		app.cfg.SessionCookieName,
		app.cfg.SessionTTL,
		app.cfg.CSRFTokenLength,
	)

	guard := auth.New(
		app.db,
		sessions,
		app.cfg.AuthCookieName,
		authCookieSigningSecretKey,
		app.cfg.SessionTTL,
	)

	svc := service.New(
		app.db,
		allocator.New(app.db),
		hasher.New(bcrypt.DefaultCost),
		app.cfg.ShortURLBase,
	)

	app.httpHandler = router.New(svc, guard, sessions)

	return app, nil
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing storage and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.db.Close()

	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)
	}

	return memorystorage.New()
}
