package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/studcloud/sso/internal/config"
	"github.com/studcloud/sso/internal/identity"
	"github.com/studcloud/sso/internal/infra"
	"github.com/studcloud/sso/internal/logging"
	"github.com/studcloud/sso/internal/notification"
	"github.com/studcloud/sso/internal/routes"
	"github.com/studcloud/sso/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	ctx := context.Background()

	deps := routes.Deps{Cfg: cfg, Logger: logger}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		deps.DB = db
		deps.Store = identity.NewPostgresStore(db)
	case config.BackendMongo:
		client, store, err := openMongo(ctx, cfg)
		if err != nil {
			logger.Error("connect mongo", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("close mongo", "error", err)
			}
		}()
		deps.Mongo = client
		deps.Store = store
	default:
		logger.Warn("using in-memory user store; data is lost on restart")
		deps.Store = identity.NewMemoryStore()
	}

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}
	deps.Cache = cache
	deps.Notifier = newNotifier(cfg, logger)

	srv, err := server.New(deps)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

func openMongo(ctx context.Context, cfg config.Config) (*mongo.Client, identity.Store, error) {
	client, err := infra.NewMongoClient(ctx, cfg.MongoURL)
	if err != nil {
		return nil, nil, err
	}
	store, err := identity.NewMongoStore(ctx, client.Database(cfg.MongoDatabase))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return client, store, nil
}

func newNotifier(cfg config.Config, logger *slog.Logger) notification.Notifier {
	fallback := notification.NewLoggerNotifier(logger)
	smtp := notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}
	if !smtp.Enabled() {
		return fallback
	}
	return notification.NewMailNotifier(smtp, fallback)
}

