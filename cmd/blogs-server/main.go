// Command blogs-server runs the blogs application the browser suite is
// written against.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/blogs"
	"github.com/kuitang/blogs-e2e/internal/config"
	"github.com/kuitang/blogs-e2e/internal/db"
	"github.com/kuitang/blogs-e2e/internal/obs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	obs.Init()
	if err := run(); err != nil {
		obs.Pkg("main").Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.MustLoadServer(config.ParseServerFlags())
	obs.SetLevel(cfg.LogLevel)
	cfg.PrintStartupSummary()
	logger := obs.Pkg("main")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := db.Open(cfg.DatabasePath, cfg.DatabaseKey)
	if err != nil {
		return err
	}
	defer store.Close()

	codec, err := auth.NewSessionCodec(cfg.SessionSecret, cfg.SessionDuration)
	if err != nil {
		return err
	}

	var oidcClient auth.OIDCClient
	if cfg.MockOIDC {
		provider, err := auth.StartMockProvider()
		if err != nil {
			return fmt.Errorf("start mock OIDC: %w", err)
		}
		defer provider.Shutdown()
		client, err := provider.Client(ctx, cfg.CallbackURL())
		if err != nil {
			return err
		}
		oidcClient = client
		logger.Info("mock_oidc_started", "issuer", provider.Issuer())
	} else {
		client, err := auth.NewOIDCClient(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.CallbackURL())
		if err != nil {
			return err
		}
		oidcClient = client
	}

	app, err := blogs.NewApp(blogs.AppConfig{
		Store:         store,
		Codec:         codec,
		OIDC:          oidcClient,
		SecureCookies: cfg.SecureCookies,
		RateLimit:     cfg.RateLimitConfig,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
