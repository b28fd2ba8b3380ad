package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/clipiq/clipiq-backend/internal/clients/redis"
	"github.com/clipiq/clipiq-backend/internal/config"
	"github.com/clipiq/clipiq-backend/internal/db"
	"github.com/clipiq/clipiq-backend/internal/handlers"
	"github.com/clipiq/clipiq-backend/internal/jobs"
	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/observability"
	"github.com/clipiq/clipiq-backend/internal/platform/elastic"
	"github.com/clipiq/clipiq-backend/internal/platform/qdrant"
	"github.com/clipiq/clipiq-backend/internal/repos"
	"github.com/clipiq/clipiq-backend/internal/server"
	"github.com/clipiq/clipiq-backend/internal/services"
	"github.com/clipiq/clipiq-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Ranking configuration: a bad config is a deploy problem, fail fast.
	rankingCfg, err := config.Load()
	if err != nil {
		log.Error("Invalid ranking config", "error", err)
		os.Exit(1)
	}

	// Tracing (no-op unless OTEL_ENABLED)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "clipiq",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "", log),
	})
	if otelShutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	videoRepo := repos.NewVideoRepo(thePG, log)
	impressionRepo := repos.NewImpressionRepo(thePG, log)
	watchEventRepo := repos.NewWatchEventRepo(thePG, log)
	engagementStatRepo := repos.NewEngagementStatRepo(thePG, log)

	// Optional backends: each one missing degrades its feature, never boot.
	log.Info("Setting up search backends from main...")
	var vectorStore qdrant.VectorStore
	if qdrantCfg, err := qdrant.ResolveConfigFromEnv(); err != nil {
		log.Warn("Qdrant disabled", "error", err)
	} else if vectorStore, err = qdrant.NewVectorStore(log, qdrantCfg); err != nil {
		log.Warn("Qdrant init failed, semantic search disabled", "error", err)
		vectorStore = nil
	}

	var ocrSearcher elastic.OCRSearcher
	if elasticCfg, err := elastic.ResolveConfigFromEnv(); err != nil {
		log.Warn("Elastic disabled", "error", err)
	} else if ocrSearcher, err = elastic.NewOCRSearcher(log, elasticCfg); err != nil {
		log.Warn("Elastic init failed, OCR search disabled", "error", err)
		ocrSearcher = nil
	}

	var rankingCache redis.RankingCache
	if rankingCache, err = redis.NewRankingCache(log); err != nil {
		log.Warn("Redis init failed, trending cache disabled", "error", err)
		rankingCache = nil
	}

	var aiClient services.AIClient
	if aiClient, err = services.NewAIClient(log); err != nil {
		log.Warn("AI client init failed, classification and embeddings disabled", "error", err)
		aiClient = nil
	}

	// Services
	log.Info("Setting up Services from main...")
	classifier := services.NewQueryClassifier(log, aiClient)
	adapters := []services.RetrievalAdapter{
		services.NewTitleAdapter(log, videoRepo),
		services.NewSemanticAdapter(log, aiClient, vectorStore),
		services.NewOCRAdapter(log, ocrSearcher, videoRepo),
	}
	searchService := services.NewSearchService(log, classifier, adapters, videoRepo, rankingCfg.Fusion)
	impressionService := services.NewImpressionService(log, impressionRepo, watchEventRepo, videoRepo, rankingCfg.Ledger, rankingCfg.Feed)
	engagementService := services.NewEngagementService(log, impressionRepo, watchEventRepo, engagementStatRepo, videoRepo, rankingCache, rankingCfg.Ledger)
	feedService := services.NewFeedService(log, videoRepo, watchEventRepo, impressionRepo, engagementService, vectorStore, rankingCfg.Feed, rankingCfg.Ledger)
	videoService := services.NewVideoService(log, videoRepo, vectorStore)

	// Maintenance loop
	worker := jobs.NewWorker(log, engagementService, impressionService)
	worker.Start(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	searchHandler := handlers.NewSearchHandler(log, searchService)
	feedHandler := handlers.NewFeedHandler(log, feedService)
	impressionHandler := handlers.NewImpressionHandler(log, impressionService)
	statsHandler := handlers.NewStatsHandler(log, engagementService)
	videoHandler := handlers.NewVideoHandler(log, videoService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		SearchHandler:     searchHandler,
		FeedHandler:       feedHandler,
		ImpressionHandler: impressionHandler,
		StatsHandler:      statsHandler,
		VideoHandler:      videoHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
