// Package main provides the entry point for the reconlens server.
// This is a passive recon enrichment and risk-scoring service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/reconlens/internal/api"
	"github.com/lvonguyen/reconlens/internal/api/gateway"
	"github.com/lvonguyen/reconlens/internal/config"
	"github.com/lvonguyen/reconlens/internal/enrichment"
	"github.com/lvonguyen/reconlens/internal/graph"
	"github.com/lvonguyen/reconlens/internal/observability"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reconlens %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	tel, err := observability.New(observability.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		LogLevel:       cfg.Logging.Level,
		LogFormat:      cfg.Logging.Format,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: %v\n", err)
		os.Exit(1)
	}
	logger := tel.Logger()

	creds := cfg.Credentials()
	logger.Info("Starting reconlens",
		zap.String("version", Version),
		zap.String("config", *configPath),
		zap.Strings("sources", cfg.EnabledSources(creds)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tel.StartSystemMetricsCollector(ctx)

	// Source adapters
	trails := enrichment.NewSecurityTrailsClient(enrichment.SecurityTrailsConfig{
		BaseURL: cfg.Sources.SecurityTrails.BaseURL,
		APIKey:  creds.SecurityTrailsAPIKey,
		Timeout: cfg.Sources.SecurityTrails.Timeout,
	}, logger)
	sources := enrichment.Sources{
		IdentityGeo: enrichment.NewIPQueryProvider(enrichment.IPQueryConfig{
			BaseURL: cfg.Sources.IPQuery.BaseURL,
			Timeout: cfg.Sources.IPQuery.Timeout,
		}, logger),
		HostExposure: enrichment.NewCensysProvider(enrichment.CensysConfig{
			BaseURL: cfg.Sources.Censys.BaseURL,
			Token:   creds.CensysToken,
			OrgID:   creds.CensysOrgID,
			Timeout: cfg.Sources.Censys.Timeout,
		}, logger),
		DNSCore:       trails.Core(),
		DNSSubdomains: trails.Subdomains(),
	}

	metrics := tel.Metrics()
	srv := api.NewServer(api.Options{
		Enrich:         enrichment.NewOrchestrator("basic", sources.Basic(), logger, metrics),
		DeepDive:       enrichment.NewOrchestrator("deep_dive", sources.DeepDive(), logger, metrics),
		DNS:            trails,
		Graph:          graph.NewSeededStore(),
		Logger:         logger,
		Metrics:        metrics,
		Version:        Version,
		MetricsHandler: tel.MetricsHandler(),
		APIMiddleware:  rateLimitMiddleware(ctx, cfg, creds, logger, metrics),
	})

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(tel.HTTPMiddleware)

	srv.Routes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	sig := <-sigChan
	logger.Info("Shutting down", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		tel.RecordError(shutdownCtx, err, zap.String("phase", "http_shutdown"))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
	}
}

// loadConfig reads path, falling back to defaults when the default file
// is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return nil, err
}

// rateLimitMiddleware builds the inbound limiter. Redis is used when an
// address is configured and reachable; otherwise limits are kept in-process.
func rateLimitMiddleware(ctx context.Context, cfg *config.Config, creds config.Credentials, logger *zap.Logger, metrics *observability.Metrics) []func(http.Handler) http.Handler {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	var client *redis.Client
	if cfg.Redis.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: creds.RedisPassword,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unavailable, using local rate limiter",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = client.Close()
			client = nil
		}
	}

	limiter := gateway.NewRateLimiter(client, gateway.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.RateLimit.BurstSize,
		IncludeHeaders:    cfg.RateLimit.IncludeHeaders,
		EndpointCosts:     cfg.RateLimit.EndpointCosts,
	}, logger, metrics)
	limiter.StartJanitor(ctx, time.Minute)

	return []func(http.Handler) http.Handler{limiter.Middleware}
}
