package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansor-ai/ansor/internal/config"
	"github.com/ansor-ai/ansor/internal/orchestration/orchestrator"
	"github.com/ansor-ai/ansor/internal/orchestration/planner"
	"github.com/ansor-ai/ansor/internal/orchestration/registry"
	"github.com/ansor-ai/ansor/internal/orchestration/runner"
	"github.com/ansor-ai/ansor/internal/orchestration/workers"
	eventsmemory "github.com/ansor-ai/ansor/pkg/adapters/events/memory"
	eventsredis "github.com/ansor-ai/ansor/pkg/adapters/events/redis"
	"github.com/ansor-ai/ansor/pkg/adapters/llm"
	"github.com/ansor-ai/ansor/pkg/adapters/metrics/prometheus"
	storagememory "github.com/ansor-ai/ansor/pkg/adapters/storage/memory"
	storageredis "github.com/ansor-ai/ansor/pkg/adapters/storage/redis"
	"github.com/ansor-ai/ansor/pkg/api/grpc"
	"github.com/ansor-ai/ansor/pkg/api/http"
	"github.com/ansor-ai/ansor/pkg/api/websocket"
	"github.com/ansor-ai/ansor/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting answer engine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	var (
		eventBus    ports.EventBus
		runStore    ports.RunStore
		redisClient *goredis.Client
	)

	switch cfg.Backend {
	case "redis":
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		bus, err := eventsredis.NewStreamsEventBus(
			redisClient,
			"ansor-consumers",
			fmt.Sprintf("ansor-%d", os.Getpid()),
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create event bus", zap.Error(err))
		}
		eventBus = bus
		runStore = storageredis.NewRunStore(redisClient, cfg.Redis.RunTTL, logger)

	default:
		eventBus = eventsmemory.NewInMemoryEventBus()
		runStore = storagememory.NewInMemoryRunStore()
		logger.Info("using in-memory backend")
	}

	// The completion client is optional. Without an API key the synthesizer
	// composes answers deterministically from its dependency outputs.
	var completionClient ports.CompletionClient
	if cfg.LLM.APIKey != "" {
		completionClient, err = llm.NewClient(&llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			Logger:   logger,
		})
		if err != nil {
			logger.Fatal("failed to create completion client", zap.Error(err))
		}
	}

	metricsCollector := prometheus.NewCollector()

	// Register the worker fleet
	reg := registry.New()
	reg.Register(workers.NewResearcher())
	reg.Register(workers.NewSynthesizer(completionClient, logger))
	reg.Register(workers.NewAggregator())
	reg.Register(workers.NewToolExecutor())
	reg.Register(workers.NewVerifier())

	engine := orchestrator.NewEngine(orchestrator.Config{
		Planner:     planner.New(),
		Runner:      runner.New(registry.NewRouter(reg), logger),
		Registry:    reg,
		Store:       runStore,
		Bus:         eventBus,
		Metrics:     metricsCollector,
		Logger:      logger,
		EventBuffer: cfg.Orchestration.EventBuffer,
	})

	healthMonitor := orchestrator.NewHealthMonitor(engine, cfg.Orchestration.HealthCheckInterval, logger)
	healthMonitor.Start()

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:   cfg.HTTPPort,
		Engine: engine,
		Health: healthMonitor,
		Store:  runStore,
		Logger: logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Engine: engine,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("answer engine started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("backend", cfg.Backend),
		zap.Int("workers", len(reg.Snapshot().Workers)))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	healthMonitor.Stop()

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("answer engine shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
