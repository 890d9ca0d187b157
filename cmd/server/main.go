package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quicktext/internal/server/api"
	"quicktext/internal/server/config"
	"quicktext/internal/server/database"
	"quicktext/internal/server/notify"
	"quicktext/internal/server/service"
	"quicktext/internal/server/storage"
)

func main() {
	configFile := flag.String("config", "", "path to config file (any format viper reads)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreType),
		zap.String("notify", cfg.NotifyBackend),
		zap.Int("max_content_size", cfg.MaxContentSize),
		zap.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := notify.NewHub()
	defer hub.Close()

	g, gctx := errgroup.WithContext(ctx)

	var publisher notify.Publisher = hub
	if cfg.NotifyBackend == config.NotifyRedis {
		// Share the store's connection when it already talks to Redis.
		var client *redis.Client
		if rs, ok := store.(*storage.RedisStore); ok {
			client = rs.Client()
		} else {
			client = redis.NewClient(redisOptions(cfg))
			defer client.Close()
		}
		relay := notify.NewRedisRelay(client, hub, logger)
		publisher = relay
		g.Go(func() error { return relay.Run(gctx) })
	}

	svc := service.NewShareService(store, publisher, service.Config{
		MaxContentSize: cfg.MaxContentSize,
		CodeAttempts:   cfg.CodeAttempts,
		BcryptCost:     cfg.BcryptCost,
	}, logger)

	cleanup := storage.NewCleanupService(store, cfg.CleanupInterval, logger)
	cleanup.Start(gctx)

	handler := api.NewHandler(svc, hub, cfg.BaseURL, logger)
	e := api.SetupRouter(handler, cfg, logger)

	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", cfg.Addr()), zap.String("base_url", cfg.BaseURL))
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Live update streams never finish on their own.
		hub.Close()

		// Stop accepting new requests, finish in-flight with 30s timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	cleanup.Wait()
	return err
}

func redisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.StoreType {
	case config.StoreRedis:
		st, err := storage.NewRedisStore(redisOptions(cfg))
		if err != nil {
			return nil, err
		}
		logger.Info("using redis store", zap.String("addr", cfg.RedisAddr))
		return st, nil

	case config.StorePostgres:
		db, err := database.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database migrations complete")
		return database.NewPostgresStore(db), nil

	case config.StoreSQLite:
		st, err := database.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return st, nil

	default:
		logger.Info("using in-memory store")
		return storage.NewMemoryStore(), nil
	}
}
