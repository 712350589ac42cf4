package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"libris/api/internal/admin"
	"libris/api/internal/app"
	"libris/api/internal/cache"
	"libris/api/internal/config"
	"libris/api/internal/export"
	"libris/api/internal/objstore"
	"libris/api/internal/push"
	"libris/api/internal/search"
	"libris/api/internal/session"
	"libris/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	dataStore := store.NewPostgresStore(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	worker, err := cache.NewWorker(
		cfg.CacheVersion,
		cfg.ShellUpstream,
		nil,
		cfg.CacheBypassHosts,
		cache.NewRedisStorageWithClient(redisClient),
		&cache.HTTPFetcher{},
	)
	if err != nil {
		log.Fatalf("shell cache setup failed: %v", err)
	}

	covers, err := objstore.New(ctx, objstore.Config{
		Endpoint:  cfg.ObjstoreEndpoint,
		AccessKey: cfg.ObjstoreAccessKey,
		SecretKey: cfg.ObjstoreSecretKey,
		Bucket:    cfg.ObjstoreBucket,
		UseSSL:    cfg.ObjstoreUseSSL,
		PublicURL: cfg.ObjstorePublicURL,
	})
	if err != nil {
		log.Fatalf("object storage setup failed: %v", err)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}

	passwordHash, err := admin.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("admin password setup failed: %v", err)
	}
	gate := admin.NewService(passwordHash, session.NewRedisStoreWithClient(redisClient), cfg.AdminTTL)

	broker := push.NewBrokerWithClient(redisClient)
	exporter := export.NewService(dataStore)

	var service *app.Service
	searchService := search.NewService(meiliClient, search.NewLocal(func() []store.Book {
		return service.Books()
	}))
	service = app.New(cfg, dataStore, searchService, gate, broker, covers, exporter, worker)

	service.Bootstrap(ctx, store.NewBookFeed(cfg.DatabaseURL, dataStore), store.NewNoticeFeed(cfg.DatabaseURL, dataStore))

	signals, err := broker.Subscribe(ctx)
	if err != nil {
		log.Fatalf("push subscription failed: %v", err)
	}
	go service.ListenPush(ctx, signals)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WriteTimeout stays off: view sessions hold long-lived event streams
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Libris API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
