package application

import (
	"context"

	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/core/services"
)

type Application struct {
	applicationConfig *config.ApplicationConfig
	generationService *services.GenerationService
	metricsService    *services.MetricsService
}

func newApplication(appConfig *config.ApplicationConfig) *Application {
	return &Application{
		applicationConfig: appConfig,
	}
}

func (a *Application) ApplicationConfig() *config.ApplicationConfig {
	return a.applicationConfig
}

func (a *Application) GenerationService() *services.GenerationService {
	return a.generationService
}

// MetricsService is nil when metrics are disabled.
func (a *Application) MetricsService() *services.MetricsService {
	return a.metricsService
}

func (a *Application) Shutdown(ctx context.Context) error {
	if a.metricsService == nil {
		return nil
	}
	return a.metricsService.Shutdown(ctx)
}
