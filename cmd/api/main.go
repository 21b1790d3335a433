package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"partshub/internal/adapter/api"
	"partshub/internal/adapter/api/handler"
	apimiddleware "partshub/internal/adapter/api/middleware"
	"partshub/internal/adapter/api/router"
	"partshub/internal/adapter/repository"
	domainrepo "partshub/internal/domain/repository"
	"partshub/internal/infrastructure/firebase"
	"partshub/internal/infrastructure/ratelimit"
	"partshub/internal/infrastructure/realtime"
	"partshub/internal/infrastructure/websocket"
	"partshub/internal/metrics"
	"partshub/internal/usecase"
	"partshub/pkg/config"
	"partshub/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()
	logger.SetDefault(appLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	healthChecks := map[string]handler.Pinger{}

	conversationRepo, closeRepo, err := openConversationRepository(ctx, cfg, healthChecks)
	if err != nil {
		appLog.Error("failed to open conversation storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	bus, err := openBus(cfg, appLog)
	if err != nil {
		appLog.Error("failed to open realtime bus", "bus", cfg.RealtimeBus, "error", err)
		os.Exit(1)
	}
	defer bus.Close()
	healthChecks["realtime"] = bus

	verifier, err := tokenVerifier(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("failed to initialize authentication", "error", err)
		os.Exit(1)
	}

	wsManager := websocket.NewManager(appLog, appMetrics)
	wsManager.Start(ctx)
	if err := bus.StartForwarder(ctx, wsManager.DeliverUnread); err != nil {
		appLog.Error("failed to start realtime forwarder", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		router.ActionMarkRead:    {PerMinute: cfg.MarkReadPerMinute, Burst: 10},
		router.ActionSendMessage: {PerMinute: cfg.MessagesPerMinute, Burst: 5},
	})

	conversationUseCase := usecase.NewConversationUseCase(conversationRepo, bus, appLog, appMetrics)
	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)

	handler.Setup(conversationUseCase, wsManager, authMiddleware, cfg.AllowedOrigins, healthChecks)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(apimiddleware.Metrics(appMetrics))

	e.Validator = api.NewValidator()

	router.Setup(e, authMiddleware, limiter, registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLog.Info("server starting", "port", cfg.ServerPort, "storage", cfg.StorageDriver, "bus", cfg.RealtimeBus)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				limiter.Cleanup(30 * time.Minute)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	appLog.Info("server stopped")
}

func openConversationRepository(ctx context.Context, cfg *config.Config, checks map[string]handler.Pinger) (domainrepo.ConversationRepository, func(), error) {
	switch cfg.StorageDriver {
	case "", "memory":
		return repository.NewMemoryConversationRepository(), func() {}, nil

	case "firestore":
		opts, err := firebase.ClientOption(cfg)
		if err != nil {
			return nil, nil, err
		}
		client, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create firestore client: %w", err)
		}
		return repository.NewFirestoreConversationRepository(client), func() { client.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres pool: %w", err)
		}
		if err := repository.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		checks["postgres"] = pool
		return repository.NewPostgresConversationRepository(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

func openBus(cfg *config.Config, log *logger.Logger) (realtime.Bus, error) {
	switch cfg.RealtimeBus {
	case "", "memory":
		return realtime.NewMemoryBus(), nil
	case "redis":
		return realtime.NewRedisBus(realtime.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.RedisChannel,
		}, log)
	case "nats":
		return realtime.NewNatsBus(realtime.NatsConfig{
			Servers: cfg.NatsServers,
			Subject: cfg.NatsSubject,
			Name:    "partshub-api",
		}, log)
	}
	return nil, fmt.Errorf("unknown realtime bus %q", cfg.RealtimeBus)
}

// tokenVerifier uses Firebase when a project is configured. Static dev tokens
// are accepted only outside production.
func tokenVerifier(ctx context.Context, cfg *config.Config, log *logger.Logger) (apimiddleware.TokenVerifier, error) {
	var chain firebase.ChainVerifier

	if cfg.FirebaseProject != "" {
		opts, err := firebase.ClientOption(cfg)
		if err != nil {
			return nil, err
		}
		authClient, err := firebase.NewFirebaseAuthClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			return nil, err
		}
		chain = append(chain, authClient)
	}

	if !cfg.IsProduction() && len(cfg.DevTokens) > 0 {
		log.Warn("static development tokens enabled", "count", len(cfg.DevTokens))
		chain = append(chain, firebase.NewStaticTokenVerifier(cfg.DevTokens))
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("no authentication configured: set FIREBASE_PROJECT_ID or DEV_TOKENS")
	}
	return chain, nil
}
