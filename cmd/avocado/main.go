package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/luchan-pos/avocado-bonus/internal/api/handlers"
	"github.com/luchan-pos/avocado-bonus/internal/config"
	"github.com/luchan-pos/avocado-bonus/internal/dbmanager"
	"github.com/luchan-pos/avocado-bonus/internal/flagcache"
	"github.com/luchan-pos/avocado-bonus/internal/model"
	"github.com/luchan-pos/avocado-bonus/internal/repo"
	"github.com/luchan-pos/avocado-bonus/internal/router"
	"github.com/luchan-pos/avocado-bonus/internal/service/expirer"
	"github.com/luchan-pos/avocado-bonus/internal/service/ledger"
	"github.com/luchan-pos/avocado-bonus/internal/utils/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Default().Error("service stopped", slog.Any(model.KeyLoggerError, err))
		os.Exit(1)
	}
}

type service struct {
	*handlers.AuthHandler
	*handlers.BonusHandler
	*handlers.HealthHandler
}

func run() error {
	_ = godotenv.Load()

	bootstrapLog := logger.New(slog.LevelInfo)
	cfg := config.NewBuilder(bootstrapLog).FromEnv().FromFlags().GetConfig()
	log := logger.New(logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	rootCtx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := dbmanager.New(cfg.DatabaseURI, log)
	defer db.Close()
	db.Connect(rootCtx).Ping(rootCtx).ApplyMigrations(rootCtx)
	if err := db.Error(); err != nil {
		return err
	}
	pool, err := db.GetPool(rootCtx)
	if err != nil {
		return err
	}

	flags, err := flagcache.New(rootCtx, cfg.RedisURI, log)
	if err != nil {
		return err
	}
	defer flags.Close()

	accountRepo := repo.NewAccountRepository(pool, log)
	operatorRepo := repo.NewOperatorRepository(pool, log)
	ledgerSvc := ledger.New(accountRepo, log)

	sweeper := expirer.New(ledgerSvc, cfg.BonusTTL, cfg.ExpiryInterval, log)
	go sweeper.Run(rootCtx)

	r := router.New(cfg, log)
	r.SetRouter(service{
		AuthHandler: handlers.NewAuthHandler(
			operatorRepo, cfg.SecretKey, log),
		BonusHandler: handlers.NewBonusHandler(
			ledgerSvc, flags, cfg.UsePagination, log),
		HealthHandler: handlers.NewHealthHandler(pool, log),
	})

	srv := &http.Server{
		Addr:              cfg.RunAddr,
		Handler:           r.GetRouter(),
		ReadHeaderTimeout: model.DefaultTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.LogAttrs(rootCtx,
			slog.LevelInfo,
			"bonus service is listening",
			slog.String("address", cfg.RunAddr),
		)
		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
