package routes

import (
	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/core/http/endpoints/aether"
	"github.com/aether-sd/aether/core/services"
	"github.com/labstack/echo/v4"
)

func RegisterAetherRoutes(router *echo.Echo,
	appConfig *config.ApplicationConfig,
	generationService *services.GenerationService,
	metricsService *services.MetricsService) {

	router.POST("/api/generate", aether.GenerateEndpoint(generationService, appConfig))

	router.GET("/api/resolutions", aether.ListResolutionsEndpoint())
	router.GET("/api/resolutions/:category", aether.ResolutionsEndpoint())
	router.GET("/api/examples/:index", aether.ExampleEndpoint())

	if metricsService != nil {
		router.GET("/metrics", aether.MetricsEndpoint(metricsService))
	}
}
