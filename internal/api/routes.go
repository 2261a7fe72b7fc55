package api

import (
	"keyhub/internal/auth"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers every route on router. sessionSecret configures the
// owner middleware for the dashboard routes.
func SetupRoutes(router *gin.Engine, handler *Handler, sessionSecret string) {
	router.GET("/healthz", handler.HealthHandler)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/validate", handler.ValidateKeyHandler)
		apiGroup.POST("/github-summarizer", handler.SummarizeHandler)

		dashboard := apiGroup.Group("")
		dashboard.Use(auth.OwnerMiddleware(sessionSecret))
		{
			keysGroup := dashboard.Group("/api-keys")
			{
				keysGroup.GET("", handler.ListKeysHandler)
				keysGroup.POST("", handler.CreateKeyHandler)
				keysGroup.GET("/:id", handler.GetKeyHandler)
				keysGroup.GET("/:id/reveal", handler.RevealKeyHandler)
				keysGroup.PUT("/:id", handler.RenameKeyHandler)
				keysGroup.DELETE("/:id", handler.DeleteKeyHandler)
			}
			dashboard.GET("/metrics", handler.MetricsHandler)
		}
	}
}
