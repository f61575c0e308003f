package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/booklens/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *slog.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		books := v1.Group("/books")
		{
			books.POST("/identify", handler.IdentifyBook)
			books.POST("/identify/image", handler.IdentifyBookImage)
			books.POST("/recommend", handler.RecommendBooks)
		}
	}

	return router
}
