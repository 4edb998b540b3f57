package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/api"
	"github.com/jafarshop/orderengine/internal/cache"
	"github.com/jafarshop/orderengine/internal/config"
	"github.com/jafarshop/orderengine/internal/events"
	"github.com/jafarshop/orderengine/internal/events/rabbitmq"
	"github.com/jafarshop/orderengine/internal/gateway"
	"github.com/jafarshop/orderengine/internal/logger"
	"github.com/jafarshop/orderengine/internal/repository"
	"github.com/jafarshop/orderengine/internal/repository/memory"
	"github.com/jafarshop/orderengine/internal/repository/postgres"
	"github.com/jafarshop/orderengine/internal/service"
)

const (
	serviceName     = "orderengine"
	shutdownTimeout = 15 * time.Second
	brokerAttempts  = 5
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var c cache.Cache
	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, idempotency keys and webhook dedupe cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			c = cache.NewRedisCache(client, serviceName)
		}
	}

	publisher := events.NewLogPublisher(log)
	if cfg.RabbitMQ.URL != "" {
		conn, ch, err := rabbitmq.SetupConn(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, brokerAttempts, log)
		if err != nil {
			log.Warn("RabbitMQ unavailable, order events will only be logged", zap.Error(err))
		} else {
			defer conn.Close()
			defer ch.Close()
			publisher = rabbitmq.NewPublisher(ch, cfg.RabbitMQ.Exchange)
		}
	}

	svc := service.New(cfg, service.Dependencies{
		Repos:     repos,
		Gateway:   gateway.NewClient(cfg.Gateway, log),
		Verifier:  gateway.NewWebhookVerifier(cfg.Gateway.WebhookSecret, cfg.Gateway.WebhookTolerance),
		Cache:     c,
		Publisher: publisher,
		Logger:    log,
	})

	router := api.NewRouter(cfg, api.Dependencies{
		Services: svc,
		Staff:    repos.Staff,
		Cache:    c,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("storage", cfg.StorageDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore returns the configured repositories and a function releasing them
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*repository.Repositories, func(), error) {
	switch cfg.StorageDriver {
	case "memory":
		store := memory.New()
		if cfg.SeedFile != "" {
			if err := store.LoadFixture(cfg.SeedFile); err != nil {
				return nil, nil, fmt.Errorf("failed to load seed file: %w", err)
			}
			log.Info("Loaded seed data", zap.String("file", cfg.SeedFile))
		}
		log.Warn("Using in-memory storage, data is lost on restart")
		return store.Repositories(), func() {}, nil
	default:
		db, err := postgres.NewConnection(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("Connected to database", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.DBName))
		return postgres.NewRepositories(db, log), func() { db.Close() }, nil
	}
}

func migrate(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return postgres.Migrate(ctx, db)
}
