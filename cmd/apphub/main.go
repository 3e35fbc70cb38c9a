package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quartzlabs/apphub/pkg/api"
	"github.com/quartzlabs/apphub/pkg/apps"
	"github.com/quartzlabs/apphub/pkg/config"
	"github.com/quartzlabs/apphub/pkg/middleware"
	"github.com/quartzlabs/apphub/pkg/observability"
	"github.com/quartzlabs/apphub/pkg/orgs"
	"github.com/quartzlabs/apphub/pkg/storage/postgres"
	"github.com/quartzlabs/apphub/pkg/users"

	goredis "github.com/go-redis/redis/v8"
)

func main() {
	startup := logrus.New()
	startup.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		startup.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := postgres.Connect(postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		startup.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		startup.Fatalf("Failed to run migrations: %v", err)
	}
	startup.Info("Database migrations applied")

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var redisClient *goredis.Client
	var appDir apps.Directory = apps.NewStore(db)
	if cfg.Redis.CacheEnabled {
		redisClient, err = postgres.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			startup.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		appDir = apps.NewCachedDirectory(appDir, redisClient, cfg.Redis.CacheTTL, metrics)
		startup.Info("App cache enabled")
	}

	orgStore := orgs.NewStore(db)
	userStore := users.NewStore(db)
	service := apps.NewService(appDir, userStore, orgStore, orgStore, logger, metrics)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(logger))
	if metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	router.Use(middleware.Principal)

	api.NewAppHandlers(service, logger).RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		startup.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		startup.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if metrics != nil {
		group.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					metrics.UpdateDBConnections(db.Stats())
				}
			}
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		startup.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			startup.Warnf("API server shutdown: %v", err)
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			startup.Warnf("Health server shutdown: %v", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		startup.Fatalf("Server error: %v", err)
	}
	startup.Info("Shutdown complete")
}
