package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/clipiq/clipiq-backend/internal/handlers"
)

type RouterConfig struct {
	SearchHandler     *handlers.SearchHandler
	FeedHandler       *handlers.FeedHandler
	ImpressionHandler *handlers.ImpressionHandler
	StatsHandler      *handlers.StatsHandler
	VideoHandler      *handlers.VideoHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Search
		api.GET("/search", cfg.SearchHandler.Search)

		// Feed
		api.GET("/feed/personal", cfg.FeedHandler.GetPersonalFeed)
		api.GET("/feed/trending", cfg.FeedHandler.GetTrendingFeed)

		// Ledger
		api.POST("/impressions", cfg.ImpressionHandler.RecordImpression)
		api.GET("/impressions", cfg.ImpressionHandler.GetUserImpressions)
		api.POST("/watch", cfg.ImpressionHandler.RecordWatch)

		// Stats
		api.GET("/videos/trending", cfg.StatsHandler.GetTrendingVideos)
		api.GET("/videos/:id/stats", cfg.StatsHandler.GetVideoStats)

		// Catalog
		api.DELETE("/videos/:id", cfg.VideoHandler.RemoveVideo)
	}

	return router
}
