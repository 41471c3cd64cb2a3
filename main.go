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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-moderation-engine/internal/api"
	"chat-moderation-engine/internal/bot"
	"chat-moderation-engine/internal/cache"
	"chat-moderation-engine/internal/config"
	"chat-moderation-engine/internal/database"
	"chat-moderation-engine/internal/engine"
	"chat-moderation-engine/internal/redis"
	"chat-moderation-engine/internal/store"
)

const (
	cleanupEvery      = 5 * time.Minute
	windowMaxIdle     = time.Hour
	refreshStmtsEvery = 30 * time.Second
	deltaKeyRetention = 24 * time.Hour
)

func main() {
	cfgPath := flag.String("config", "", "path to config.yaml or config.json")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		// the logger depends on the config
		zap.NewExample().Fatal("Error loading config", zap.Error(err))
	}

	logger, err := newLogger(cfg.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.HealthCheck{}

	var st store.Store = store.NewMemory()
	if cfg.Postgres.Enabled() {
		db, err := database.NewDatabase(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("Error initializing database", zap.Error(err))
		}
		defer db.Close()
		db.StartPreparedStatementRefresher(ctx, refreshStmtsEvery)
		db.StartDeltaPruner(ctx, cleanupEvery, deltaKeyRetention)
		checks["postgres"] = db.Ping
		st = db
	} else {
		logger.Warn("No postgres configured, using the in-memory store")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.New(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("Error initializing redis", zap.Error(err))
		}
		defer rdb.Close()
		checks["redis"] = rdb.Ping
	}

	var cacheMetrics api.CacheMetrics
	if cfg.Cache.Enabled {
		var l2 cache.ProfileCache
		if rdb != nil {
			l2 = rdb
		}
		cached, err := cache.New(st, l2, cache.Config{
			L1MaxCost:     cfg.Cache.L1MaxCost,
			L1NumCounters: cfg.Cache.L1NumCounters,
			TTL:           cfg.Cache.TTL,
		}, logger)
		if err != nil {
			logger.Fatal("Error initializing cache", zap.Error(err))
		}
		defer cached.Close()
		st = cached
		cacheMetrics = cached
	}

	opts := engine.Options{
		Thresholds:  cfg.Thresholds,
		Enforcement: cfg.Enforcement,
		Store:       st,
		Logger:      logger,
	}
	if rdb != nil {
		opts.Leaderboard = rdb
	}
	eng, err := engine.New(opts)
	if err != nil {
		logger.Fatal("Error initializing engine", zap.Error(err))
	}
	go cleanupLoop(ctx, eng, logger)

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Options{
			Engine:     eng,
			Logger:     logger,
			AdminToken: cfg.AdminToken,
			Checks:     checks,
			Cache:      cacheMetrics,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP API listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if cfg.Token != "" {
		b, err := bot.New(cfg.Token, eng, logger)
		if err != nil {
			logger.Fatal("Error initializing bot", zap.Error(err))
		}
		if err := b.Start(); err != nil {
			logger.Fatal("Error starting bot", zap.Error(err))
		}
		defer b.Close()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
}

// loadConfig uses path, or the first of config.yaml and config.json that
// exists, or the defaults
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	for _, p := range []string{"config.yaml", "config.yml", "config.json"} {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	cfg := config.Default()
	return cfg, cfg.Validate()
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func cleanupLoop(ctx context.Context, eng *engine.Engine, logger *zap.Logger) {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := eng.Cleanup(windowMaxIdle); n > 0 {
				logger.Debug("Dropped idle behavior windows", zap.Int("count", n))
			}
		}
	}
}
