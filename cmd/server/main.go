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
	_ "time/tzdata"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sumire/calwidget/internal/config"
	"github.com/sumire/calwidget/internal/gcal"
	"github.com/sumire/calwidget/internal/handler"
	"github.com/sumire/calwidget/internal/repository"
	"github.com/sumire/calwidget/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	oauthCfg, err := service.NewGoogleOAuthConfig(service.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		SecretsFile:  cfg.GoogleClientSecretsFile,
		RedirectURL:  cfg.RedirectURL(),
	})
	if err != nil {
		return fmt.Errorf("oauth config: %w", err)
	}

	authSvc := service.NewAuthService(store, oauthCfg, cfg.ProviderTimeout)
	calendarSvc := service.NewCalendarService(
		authSvc,
		service.GoogleOpener(gcal.Opener{Timeout: cfg.ProviderTimeout}),
		service.CalendarConfig{Location: cfg.Location, Timeout: cfg.ProviderTimeout},
	)

	sessions := handler.NewSessionManager(cfg.SessionSecret, cfg.SecureCookies())
	e := handler.NewRouter(authSvc, calendarSvc, sessions, handler.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"port", cfg.Port,
			"base_url", cfg.BaseURL,
			"store", cfg.CredentialStore,
			"timezone", cfg.DisplayTimezone,
		)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func openStore(cfg config.Config) (service.CredentialStore, func(), error) {
	if cfg.CredentialStore == config.StoreFile {
		slog.Info("using file credential store", "path", cfg.CredentialPath)
		return repository.NewFileCredentialStore(cfg.CredentialPath), func() {}, nil
	}

	db, err := sqlx.Connect(cfg.CredentialStore, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	if cfg.CredentialStore == config.StoreSQLite {
		db.SetMaxOpenConns(1)
	}

	store := repository.NewSQLCredentialStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate credential store: %w", err)
	}

	slog.Info("database connected", "driver", cfg.CredentialStore)
	return store, func() { db.Close() }, nil
}
