package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/analysis"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/api/handlers"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/cache/redis"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/embedding"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/export"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/ingestion"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/middleware/ratelimit"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/middleware/security"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/middleware/validation"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/preprocess"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/reduce"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/stopwords"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/storage/sqlite"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/topicmodel"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/visualization"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/config"
	appLogger "github.com/EvianLUO/bertopic-analysis-tool/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Failed to load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	log := appLogger.GetLogger()

	appLogger.Info("Starting BERTopic analysis API server", zap.String("version", handlers.Version))

	metrics.Init()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		appLogger.Fatal("Failed to create database directory", zap.Error(err))
	}
	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	readiness := map[string]handlers.Pinger{"sqlite": sqliteClient}

	var embeddingCache embedding.Cache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			embeddingCache = redisClient
			readiness["redis"] = redisClient
		}
	}

	reducer, err := reduce.New(cfg.Analysis.ReductionMethod, reduce.Options{
		Iterations:   cfg.Analysis.TSNEIterations,
		LearningRate: cfg.Analysis.TSNELearningRate,
	})
	if err != nil {
		appLogger.Fatal("Invalid reduction method", zap.Error(err))
	}

	resolver := embedding.NewResolver(cfg.Embedding, embeddingCache, log)
	pool := topicmodel.NewPool(cfg.Analysis.Workers, cfg.Analysis.Timeout(), func(onStage func(topicmodel.Stage)) *topicmodel.Engine {
		return topicmodel.NewEngine(topicmodel.Options{Reducer: reducer, Logger: log, OnStage: onStage})
	}, log)

	processor, err := ingestion.NewProcessor(cfg.Upload.Dir, int64(cfg.Upload.MaxSize))
	if err != nil {
		appLogger.Fatal("Failed to create upload directory", zap.Error(err))
	}

	packager, err := export.NewPackager(cfg.Export.Dir, log)
	if err != nil {
		appLogger.Fatal("Failed to create export directory", zap.Error(err))
	}

	stopwordStore := stopwords.NewStore(sqliteClient, log)
	service := analysis.NewService(
		preprocess.New(log),
		resolver,
		pool,
		visualization.NewGenerator(log),
		stopwordStore,
		sqliteClient,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go export.NewSweeper(packager.Dir(), cfg.Export.MaxAge(), cfg.Export.SweepInterval(), log).Run(ctx)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: joinOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	analysisHandler := handlers.NewAnalysisHandler(processor, service)
	documentHandler := handlers.NewDocumentHandler(processor)
	stopwordsHandler := handlers.NewStopwordsHandler(stopwordStore)
	exportHandler := handlers.NewExportHandler(packager)
	healthHandler := handlers.NewHealthHandler(readiness)
	historyHandler := handlers.NewHistoryHandler(sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(analysisHandler)

	api := app.Group("/api")
	api.Use(validation.Middleware(validation.Config{
		UploadDir: processor.UploadDir(),
		Logger:    log,
	}))

	limited := []fiber.Handler{}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Logger:               log,
		})
		defer limiter.Stop()
		limited = append(limited, limiter.Middleware())
	}

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	api.Post("/upload", documentHandler.UploadDocument)
	api.Get("/stopwords", stopwordsHandler.GetStopwords)
	api.Post("/stopwords", stopwordsHandler.UpdateStopwords)
	api.Post("/analyze", append(limited, analysisHandler.AnalyzeFile)...)
	api.Post("/analyze/texts", append(limited, analysisHandler.AnalyzeTexts)...)
	api.Post("/export/:type", exportHandler.Export)
	api.Get("/runs", historyHandler.GetRunHistory)

	app.Use("/ws", handlers.Upgrade)
	app.Get("/ws/analyze", append(limited, websocket.New(wsHandler.HandleConnection))...)

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.Int("workers", pool.Workers()),
		zap.String("reduction", reducer.Name()),
		zap.String("default_embedding_model", resolver.DefaultModel()),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	cancel()
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Warn("Shutdown did not complete cleanly", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	out := origins[0]
	for _, o := range origins[1:] {
		out += ", " + o
	}
	return out
}
