// Command pollboard starts the poll board HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/pollboard/internal/config"
	"github.com/and161185/pollboard/internal/limiter"
	"github.com/and161185/pollboard/internal/migrate"
	"github.com/and161185/pollboard/internal/repository"
	"github.com/and161185/pollboard/internal/repository/postgres"
	"github.com/and161185/pollboard/internal/revalidate"
	"github.com/and161185/pollboard/internal/server/httpserver"
	"github.com/and161185/pollboard/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main resolves configuration, prepares the store when configured and serves
// HTTP until SIGINT or SIGTERM.
func main() {
	env, err := config.OSEnv(".env")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	cfg, err := config.Load(os.Args[1:], env, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		users repository.UserRepository
		polls repository.PollRepository
		votes repository.VoteRepository
		lim   limiter.Limiter = limiter.Nop{}
	)
	if cfg.StoreConfigured() {
		if err := migrate.Up(ctx, cfg.StoreURL, cfg.StoreKey); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.Open(ctx, cfg.StoreURL, cfg.StoreKey)
		if err != nil {
			logger.Fatal("open store", zap.Error(err))
		}
		defer db.Close()

		users = postgres.NewUserRepo(db)
		polls = postgres.NewPollRepo(db)
		votes = postgres.NewVoteRepo(db)
		lim = limiter.NewPG(db.Pool, limiter.Policy{
			Window:   cfg.Login.Window,
			MaxFails: cfg.Login.MaxFails,
			BlockFor: cfg.Login.BlockFor,
		})
	} else {
		logger.Warn("store is not configured; commands will fail until STORE_URL and STORE_SERVICE_KEY are set")
	}

	views := revalidate.NewLedger()

	// Services
	authSvc := service.NewAuthService(users, []byte(cfg.JWTKey), cfg.AccessTTL, lim)
	pollSvc := service.NewPollService(polls, votes,
		service.WithInvalidator(views),
		service.WithLogger(logger.Named("polls")),
		service.WithUnownedEdits(cfg.AllowUnownedEdits),
	)

	app := httpserver.New(authSvc, pollSvc, views, logger, httpserver.Options{
		CookieDomain:      cfg.CookieDomain,
		SecureCookies:     cfg.SecureCookies,
		PublicURL:         cfg.PublicURL,
		AllowUnownedEdits: cfg.AllowUnownedEdits,
		TrustProxy:        cfg.TrustedProxy,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
