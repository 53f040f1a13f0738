package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rentbuy/api"
	"rentbuy/internal/catalogclient"
	"rentbuy/internal/config"
	"rentbuy/internal/postgres"
	"rentbuy/internal/transaction"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("error loading configuration: %v", err))
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		panic(fmt.Errorf("error building logger: %v", err))
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var seed []transaction.Product
	if cfg.CatalogSeed != "" {
		products, err := transaction.LoadProductsFile(cfg.CatalogSeed)
		if err != nil {
			return err
		}
		seed = products
	}

	var (
		storage transaction.Storage
		catalog transaction.Catalog
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		storage = postgres.NewStore(pool, logger)
		pgCatalog := postgres.NewCatalog(pool)
		if len(seed) > 0 {
			if err := pgCatalog.Upsert(ctx, seed); err != nil {
				return err
			}
			logger.Info("catalog seeded", zap.String("path", cfg.CatalogSeed), zap.Int("products", len(seed)))
		}
		catalog = pgCatalog
	} else {
		if cfg.CatalogURL == "" && cfg.CatalogSeed == "" {
			return errors.New("no product catalog configured: set CATALOG_SEED, CATALOG_URL or DATABASE_URL")
		}
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		storage = transaction.NewLocalStorage()
		local := transaction.NewLocalCatalog()
		for _, p := range seed {
			local.Put(p)
		}
		catalog = local
	}
	if cfg.CatalogURL != "" {
		if cfg.DatabaseURL == "" && cfg.CatalogSeed != "" {
			logger.Warn("CATALOG_URL set, ignoring CATALOG_SEED")
		}
		catalog = catalogclient.New(cfg.CatalogURL, cfg.CatalogTimeout, logger)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	api.InitRoutes(r, transaction.NewService(storage, catalog, logger), logger, cfg.JWTSecret)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error trying to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server exited")
	return nil
}
