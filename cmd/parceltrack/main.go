// Package main запускает HTTP-сервер сервиса учёта доставок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/parceltrack/internal/account"
	"github.com/mmeshcher/parceltrack/internal/config"
	"github.com/mmeshcher/parceltrack/internal/dispatch"
	"github.com/mmeshcher/parceltrack/internal/handler"
	"github.com/mmeshcher/parceltrack/internal/lifecycle"
	"github.com/mmeshcher/parceltrack/internal/logger"
	"github.com/mmeshcher/parceltrack/internal/metrics"
	"github.com/mmeshcher/parceltrack/internal/middleware"
	"github.com/mmeshcher/parceltrack/internal/repository"
)

const shutdownTimeout = 5 * time.Second

// store объединяет возможности хранилища, нужные всем компонентам сервиса.
type store interface {
	lifecycle.Repository
	account.Repository
	Close() error
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("application terminated with error", zap.Error(err))
	}
}

// openStore подключается к PostgreSQL. Если адрес не задан или база недоступна,
// сервис работает с хранилищем в памяти до перезапуска.
func openStore(cfg *config.Config, log *zap.Logger) store {
	if cfg.DatabaseURI == "" {
		log.Warn("database URI is empty, using in-memory storage")
		return repository.NewMemoryRepository()
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		log.Warn("database is unavailable, using in-memory storage", zap.Error(err))
		return repository.NewMemoryRepository()
	}
	return repo
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := openStore(cfg, log)
	defer repo.Close()

	m := metrics.NewDelivery(prometheus.DefaultRegisterer)

	engine := lifecycle.NewEngine(repo, log.Named("lifecycle"), m, cfg.OperationTimeout)
	accounts := account.NewService(repo, log.Named("account"), m, cfg.OperationTimeout)
	coordinator := dispatch.NewCoordinator(engine, repo, log.Named("dispatch"), m, cfg.DispatchConcurrency)

	created, err := accounts.EnsureAdmin(ctx, cfg.AdminLogin, cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	if created {
		log.Info("admin account created", zap.String("login", cfg.AdminLogin))
	}

	renumbered, err := engine.ReconcileOrderNumbers(ctx)
	if err != nil {
		return fmt.Errorf("reconcile order numbers: %w", err)
	}
	if renumbered > 0 {
		log.Info("order numbers reconciled", zap.Int("renumbered", renumbered))
	}

	if cfg.TokenSecret == "" {
		log.Warn("token secret is empty, sessions will not survive a restart")
	}
	tokens := middleware.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)

	h := handler.NewHandler(engine, coordinator, accounts, tokens, log.Named("http"))

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting parceltrack server", zap.String("addr", cfg.RunAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		log.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
