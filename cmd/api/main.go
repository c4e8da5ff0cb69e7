package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"nomikai/apps/backend/internal/config"
	"nomikai/apps/backend/internal/db"
	"nomikai/apps/backend/internal/kv"
	"nomikai/apps/backend/internal/server"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatalf("database migration failed: %v", err)
		}
	}
	if err := db.ValidateRuntimeSchema(ctx, pool); err != nil {
		log.Fatalf("database schema mismatch: %v", err)
	}

	shared, closeShared := sharedStore(cfg)
	defer closeShared()

	app := server.New(cfg, server.Wire(cfg, pool, shared))
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("nomikai api listening on http://localhost:%s line_enabled=%t google_enabled=%t", cfg.AppPort, cfg.LineEnabled(), cfg.GoogleEnabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// sharedStore connects to REDIS_URL. Only in local development may state fall
// back to process memory, where it is lost on restart.
func sharedStore(cfg config.Config) (kv.Store, func()) {
	noop := func() {}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		if cfg.AppEnv != "local" {
			log.Fatalf("REDIS_URL is required when APP_ENV=%s", cfg.AppEnv)
		}
		log.Printf("REDIS_URL not set; using in-memory oauth state and webhook dedupe")
		return kv.NewMemory(), noop
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	store, err := kv.NewRedis(&kv.Config{RedisClient: client})
	if err != nil {
		_ = client.Close()
		if cfg.AppEnv != "local" {
			log.Fatalf("redis connect failed: %v", err)
		}
		log.Printf("redis unavailable in local env, falling back to memory err=%v", err)
		return kv.NewMemory(), noop
	}
	return store, func() {
		if err := client.Close(); err != nil {
			log.Printf("redis close failed: %v", err)
		}
	}
}
