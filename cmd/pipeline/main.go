package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/config"
	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/handler"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/cache"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/memory"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/observability"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/postgres"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/resilience"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/supabase"
	"github.com/boddenberg/sales-pipeline-go/internal/port"
	"github.com/boddenberg/sales-pipeline-go/internal/service"

	"go.uber.org/zap"
)

const serviceName = "sales-pipeline"

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, serviceName)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Float64("vat_percent", cfg.VATPercent),
		zap.Int("quote_validity_days", cfg.QuoteValidityDays),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Tracing ---
	endpoint := ""
	if cfg.OTelEnabled {
		endpoint = cfg.OTLPEndpoint
	}
	shutdown, err := observability.InitTracer(endpoint, serviceName)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	leadCache := cache.New[*domain.Lead](ctx, cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Store ---
	var store port.SalesStore
	switch cfg.StoreBackend {
	case config.BackendSupabase:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		store = supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)
	case config.BackendPostgres:
		logger.Info("using Postgres as data backend")
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			logger.Fatal("failed to apply schema", zap.Error(err))
		}
		store = postgres.NewStore(pool, resilience.NewCircuitBreaker("postgres"), logger)
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		store = memory.NewStore()
	}

	// --- Services ---
	salesSvc := service.NewSalesService(store, leadCache, cfg.QuoteDefaults(), metrics, logger)

	// --- Router ---
	router := handler.NewRouter(salesSvc, metrics, []byte(cfg.JWTSecret), logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
