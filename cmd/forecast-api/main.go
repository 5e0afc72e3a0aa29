// Package main 类比预报服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"analog-forecast-api/internal/application/forecast"
	"analog-forecast-api/internal/config"
	"analog-forecast-api/internal/domain/repository"
	"analog-forecast-api/internal/infrastructure/persistence/milvus"
	"analog-forecast-api/internal/infrastructure/persistence/postgres"
	"analog-forecast-api/internal/infrastructure/persistence/redis"
	"analog-forecast-api/internal/infrastructure/persistence/sqlite"
	"analog-forecast-api/internal/infrastructure/vectorindex"
	"analog-forecast-api/internal/interfaces/http/handler"
	"analog-forecast-api/internal/interfaces/http/middleware"
	"analog-forecast-api/internal/interfaces/http/router"
	"analog-forecast-api/pkg/logger"
	"analog-forecast-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.FromContext(ctx)
	log.Info("starting forecast-api",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 执行路径在启动期固定，能力不足且无法回退时直接退出
	device, err := forecast.SelectDevice(ctx, &cfg.Guardrail.Device)
	if err != nil {
		logger.Fatal(ctx, "failed to select execution device", err)
	}

	budget := forecast.NewBudgetTracker(cfg.Guardrail.MemoryBudgetBytes, cfg.Guardrail.FailFast)

	if cfg.Guardrail.Profiler.Enabled {
		profiler := forecast.NewMemoryProfiler(&cfg.Guardrail.Profiler)
		go profiler.Run(ctx)
		go func() {
			for alert := range profiler.Alerts() {
				log.Error("resident memory above critical threshold",
					"resident_bytes", alert.ResidentBytes,
					"critical_bytes", alert.CriticalBytes,
				)
			}
		}()
	}

	provider, milvusClient, closeProvider, err := buildIndexProvider(ctx, cfg, device, budget)
	if err != nil {
		logger.Fatal(ctx, "failed to build index provider", err)
	}
	defer closeProvider()

	outcomes, err := buildOutcomeRepository(cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to build outcome repository", err)
	}
	defer outcomes.Close()

	var redisClient *redis.Client
	var resultCache forecast.ResultCache
	if cfg.Cache.Result.Enabled {
		redisClient, err = redis.NewClient(&cfg.Cache.Redis)
		if err != nil {
			logger.Fatal(ctx, "failed to connect redis", err)
		}
		defer redisClient.Close()
		resultCache = redis.NewResultCache(redisClient, cfg.Cache.Result.TTL)
	}

	pool := forecast.NewHandlePool(cfg.Guardrail.Pool.HandlesPerHorizon, cfg.Guardrail.Pool.AcquireTimeout)
	engine := forecast.NewEngine(provider, pool, device, cfg.Index.Dim, cfg.Forecast.MaxK)
	validator := forecast.NewValidator(&cfg.Quality)
	aggregator := forecast.NewAggregator(&cfg.Forecast)
	svc := forecast.NewService(cfg, engine, validator, aggregator, outcomes, resultCache)

	r := router.New(cfg, router.Deps{
		Forecast: handler.NewForecastHandler(svc),
		Health:   handler.NewHealthHandler(outcomes, redisClient, milvusClient, Version),
		RateLimit: middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			Enabled:           cfg.Security.RateLimit.Enabled,
			RequestsPerSecond: cfg.Security.RateLimit.RequestsPerSecond,
		}, redisRaw(redisClient)),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr, "device", device.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}

// buildIndexProvider 按配置的后端装配索引提供者
func buildIndexProvider(
	ctx context.Context,
	cfg *config.Config,
	device *forecast.Device,
	budget *forecast.BudgetTracker,
) (repository.IndexProvider, *milvus.Client, func(), error) {
	switch cfg.Index.Backend {
	case "milvus":
		client, err := milvus.NewClient(ctx, &cfg.Index.Milvus)
		if err != nil {
			return nil, nil, nil, err
		}
		loader := func(ctx context.Context, horizon int) (repository.VectorIndex, error) {
			return milvus.NewIndex(ctx, client, horizon, cfg.Index.Dim)
		}
		// 远端索引不占进程内存，预算登记为零
		sizer := func(int) (int64, error) { return 0, nil }
		registry, err := forecast.NewPreloadedRegistry(ctx, cfg.Index.Horizons, budget, loader, sizer)
		if err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		cleanup := func() {
			registry.Close()
			client.Close()
		}
		return registry, client, cleanup, nil

	default: // file
		loader := func(ctx context.Context, horizon int) (repository.VectorIndex, error) {
			return vectorindex.LoadFile(ctx, cfg.Index.Dir, horizon, vectorindex.LoadOptions{
				Dim:                cfg.Index.Dim,
				QuantizedThreshold: cfg.Index.QuantizedThreshold,
				Distance:           device.Distance,
				Device:             device.Path,
			})
		}
		sizer := func(horizon int) (int64, error) {
			return vectorindex.FileSize(cfg.Index.Dir, horizon)
		}
		if cfg.Index.LazyLoad {
			cache := forecast.NewLazyIndexCache(cfg.Index.CacheCapacity, cfg.Index.LoadTimeout, budget, loader, sizer)
			return cache, nil, func() { cache.Close() }, nil
		}
		registry, err := forecast.NewPreloadedRegistry(ctx, cfg.Index.Horizons, budget, loader, sizer)
		if err != nil {
			return nil, nil, nil, err
		}
		return registry, nil, func() { registry.Close() }, nil
	}
}

// buildOutcomeRepository 按配置的后端装配实况存储
func buildOutcomeRepository(cfg *config.Config) (repository.OutcomeRepository, error) {
	switch cfg.Outcome.Backend {
	case "postgres":
		client, err := postgres.NewClient(&cfg.Outcome.Postgres)
		if err != nil {
			return nil, err
		}
		return postgres.NewOutcomeRepository(client), nil
	default: // sqlite，直接读取索引文件内置的实况表
		return sqlite.NewOutcomeRepository(cfg.Index.Dir), nil
	}
}

// redisRaw 取出底层客户端，未启用缓存时限流自动退化为直通
func redisRaw(c *redis.Client) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.Redis()
}
