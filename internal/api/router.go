package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sathizz7/streetview-capturing-sys/internal/config"
	"github.com/sathizz7/streetview-capturing-sys/internal/handler"
	"github.com/sathizz7/streetview-capturing-sys/internal/middleware"
)

// SetupRouter wires the HTTP surface for the capture service
func SetupRouter(cfg *config.Config, captureHandler *handler.CaptureHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Street-view capture API is running",
		})
	})

	api := r.Group("/api/v1")
	{
		captures := api.Group("/captures")
		captures.Use(middleware.Auth(cfg.JWTSecret))
		{
			// Each capture run fans out dozens of collaborator calls, so
			// submissions are rate limited per client.
			captures.POST("", middleware.RateLimit(10, time.Minute), captureHandler.CreateCapture)
			captures.GET("", captureHandler.ListCaptures)
			captures.GET("/:id", captureHandler.GetCapture)
		}
	}

	return r
}
