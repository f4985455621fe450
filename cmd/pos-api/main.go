package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jcmexdev/restaurant-pos/internal/api-gateway/infra/adapters/service"
	"github.com/jcmexdev/restaurant-pos/internal/api-gateway/infra/httpx"
	"github.com/jcmexdev/restaurant-pos/internal/catalog"
	"github.com/jcmexdev/restaurant-pos/internal/checkout"
	sagasqlite "github.com/jcmexdev/restaurant-pos/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/restaurant-pos/internal/drawer"
	"github.com/jcmexdev/restaurant-pos/internal/drawer/sqlstore"
	"github.com/jcmexdev/restaurant-pos/internal/kitchen"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/cache"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/config"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/telemetry"
	"github.com/jcmexdev/restaurant-pos/internal/pos"
	"github.com/jcmexdev/restaurant-pos/internal/terminal"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTelEndpoint,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		logger.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	if cfg.IsProduction() && cfg.RedisAddr == "" {
		logger.Error("REDIS_ADDR is required in production")
		os.Exit(1)
	}
	kv := cache.NewMemoryCache("pos")
	if cfg.RedisAddr != "" {
		kv = cache.NewRedisCache(cfg.RedisAddr, "pos")
		if err := cache.Ping(ctx, kv); err != nil {
			// Carts are fail-soft; the console still works, it just cannot
			// persist until redis is back.
			logger.Warn("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		}
	}

	menu, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	menuSource := catalog.NewMemorySource()
	menuSource.Put(menu.StoreID, menu)
	menus := catalog.NewCachedSource(menuSource, kv, 0, logger)

	if cfg.DrawerDriver == "sqlite" {
		mustMkdir(logger, cfg.DrawerDSN)
	}
	drawerStore, err := sqlstore.Open(ctx, cfg.DrawerDriver, cfg.DrawerDSN)
	if err != nil {
		logger.Error("failed to open drawer store", "driver", cfg.DrawerDriver, "error", err)
		os.Exit(1)
	}
	defer drawerStore.Close()

	mustMkdir(logger, cfg.SagaLogPath)
	sagaLog, err := sagasqlite.Open(cfg.SagaLogPath)
	if err != nil {
		logger.Error("failed to open saga log", "path", cfg.SagaLogPath, "error", err)
		os.Exit(1)
	}
	defer sagaLog.Close()

	feed := kitchen.NewMemoryFeed()
	orders := service.NewOrderService(feed, logger)
	carts := pos.NewCacheStore(kv, logger)
	drawers := drawer.NewService(drawerStore, logger)

	term := terminal.New(ctx, terminal.Deps{
		Catalog: menus,
		Carts:   carts,
		Drawers: drawers,
		Settler: checkout.NewSettler(orders, drawers, carts, sagaLog, logger),
		Kitchen: kitchen.NewService(feed, logger),
	}, terminal.Options{
		MergePolicy:  pos.MergeIdentical,
		PollInterval: cfg.PollInterval,
		Log:          logger,
	})
	defer term.Close()

	if err := term.SelectStore(ctx, cfg.DefaultStoreID); err != nil {
		logger.Error("failed to select store", "store_id", cfg.DefaultStoreID, "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(httpx.NewHandler(term, orders, feed, sagaLog)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}()

	logger.Info("pos api running", "addr", cfg.HTTPAddr, "store_id", cfg.DefaultStoreID, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func mustMkdir(logger *slog.Logger, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Error("failed to create data directory", "path", path, "error", err)
		os.Exit(1)
	}
}
