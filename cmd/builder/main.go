package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stellare-shop/builder/internal/gesture"
	"github.com/stellare-shop/builder/internal/handlers"
	"github.com/stellare-shop/builder/internal/platform/config"
	"github.com/stellare-shop/builder/internal/platform/idempotency"
	"github.com/stellare-shop/builder/internal/platform/observability"
	"github.com/stellare-shop/builder/internal/repositories/memory"
	"github.com/stellare-shop/builder/internal/services"
	"github.com/stellare-shop/builder/internal/shopify"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("builder")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	catalogClient, err := shopify.NewCatalogClient(shopify.CatalogClientConfig{
		BaseURL:  cfg.Shop.BaseURL,
		PageSize: cfg.Shop.CatalogPageSize,
		Timeout:  cfg.Shop.RequestTimeout,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog client", zap.Error(err))
	}

	cartClient, err := shopify.NewCartClient(shopify.CartClientConfig{
		BaseURL: cfg.Shop.BaseURL,
		Timeout: cfg.Shop.RequestTimeout,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart client", zap.Error(err))
	}

	sessionRepo := memory.NewSessionRepository(cfg.Builder.SessionTTL)
	idempotencyStore := idempotency.NewMemoryStore()

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Loader:          catalogClient,
		BraceletsHandle: cfg.Shop.BraceletsCollection,
		CharmsHandle:    cfg.Shop.CharmsCollection,
		Currency:        cfg.Builder.Currency,
		Clock:           time.Now,
		Logger:          serviceLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	builderService, err := services.NewBuilderService(services.BuilderServiceDeps{
		Sessions:        sessionRepo,
		Catalog:         catalogService,
		Clock:           time.Now,
		Logger:          serviceLogger(logger.Named("builder")),
		DefaultCapacity: cfg.Builder.DefaultCapacity,
		MaxCapacity:     cfg.Builder.MaxCapacity,
		Currency:        cfg.Builder.Currency,
	})
	if err != nil {
		logger.Fatal("failed to initialise builder service", zap.Error(err))
	}

	submissionService, err := services.NewSubmissionService(services.SubmissionServiceDeps{
		Builder:       builderService,
		Cart:          cartClient,
		Logger:        serviceLogger(logger.Named("submission")),
		RedirectPath:  cfg.Builder.RedirectPath,
		RedirectDelay: cfg.Builder.RedirectDelay,
	})
	if err != nil {
		logger.Fatal("failed to initialise submission service", zap.Error(err))
	}

	gestureResolver, err := gesture.NewResolver(gesture.ResolverDeps{
		Engine: builderService,
		Clock:  time.Now,
		Logger: serviceLogger(logger.Named("gesture")),
	})
	if err != nil {
		logger.Fatal("failed to initialise gesture resolver", zap.Error(err))
	}

	loadCtx, loadCancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := catalogService.Load(loadCtx); err != nil {
		logger.Error("initial catalog load failed", zap.Error(err))
	}
	loadCancel()

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup

	idempotencyTicker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-idempotencyTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	sessionTicker := time.NewTicker(cfg.Builder.SessionSweepInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		sweepLogger := logger.Named("sessions")
		for {
			select {
			case <-sessionTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := sessionRepo.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					sweepLogger.Error("session sweep error", zap.Error(err))
					continue
				}
				if removed > 0 {
					sweepLogger.Info("session sweep removed sessions", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	projectID := cfg.Observability.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithHealthCatalog(catalogService),
	)

	catalogHandlers := handlers.NewCatalogHandlers(catalogService)
	sessionHandlers := handlers.NewSessionHandlers(builderService, submissionService, gestureResolver,
		handlers.WithSubmitMiddlewares(idempotencyMiddleware),
	)
	cartHandlers := handlers.NewCartHandlers(submissionService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("bracelet builder listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	idempotencyTicker.Stop()
	sessionTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func serviceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, msg string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(msg, zapFields...)
	}
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("BUILDER_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("BUILDER_BUILD_COMMIT_SHA"))
	environment := strings.TrimSpace(os.Getenv("BUILDER_ENVIRONMENT"))
	if environment == "" {
		environment = "dev"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
