package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yslanlopes12/biblioteca-sistema/internal/auth"
	"github.com/yslanlopes12/biblioteca-sistema/internal/catalog"
	"github.com/yslanlopes12/biblioteca-sistema/internal/circulation"
	"github.com/yslanlopes12/biblioteca-sistema/internal/config"
	"github.com/yslanlopes12/biblioteca-sistema/internal/db"
	"github.com/yslanlopes12/biblioteca-sistema/internal/directory"
	internalhttp "github.com/yslanlopes12/biblioteca-sistema/internal/http"
	"github.com/yslanlopes12/biblioteca-sistema/internal/jobs"
	"github.com/yslanlopes12/biblioteca-sistema/internal/metrics"
	"github.com/yslanlopes12/biblioteca-sistema/internal/policy"
	"github.com/yslanlopes12/biblioteca-sistema/internal/repository"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}

	var revoker auth.Revoker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer client.Close()
		revoker = auth.NewRedisRevoker(client)
	}

	store := repository.New(pool)
	m := metrics.New()

	dir := directory.NewService(store)
	cat := catalog.NewService(store)
	engine := circulation.NewEngine(store, policy.NewResolver(store), m)
	circ := circulation.NewManager(store, engine, m)

	server := internalhttp.NewServer(cfg, store, dir, cat, circ, revoker)

	jobs.StartOverdueJob(ctx, cfg, store, m)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("biblioteca-sistema listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
