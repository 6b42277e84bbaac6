package aether

import (
	"net/http"

	"github.com/aether-sd/aether/core/backend"
	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/core/schema"
	"github.com/aether-sd/aether/core/services"
	"github.com/aether-sd/aether/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/mudler/xlog"
)

// GeneratedImagesPrefix is the URL prefix the output directory is served
// under.
const GeneratedImagesPrefix = "/generated-images"

// GenerateEndpoint runs one generation and returns its result. The body is a
// GenerationResult for every outcome; the status code carries the error kind.
// @Summary Generate an image from a prompt
// @Param request body schema.GenerationRequest true "query params"
// @Success 200 {object} schema.GenerationResult "Response"
// @Router /api/generate [post]
func GenerateEndpoint(svc *services.GenerationService, appConfig *config.ApplicationConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		input := NewGenerationRequest()
		if err := c.Bind(&input); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		ApplyRequestDefaults(&input)

		result := Generate(c, svc, appConfig, input)
		return c.JSON(StatusForResult(result), result)
	}
}

// Generate runs the service with the request context and fills in the
// public URL of the image.
func Generate(c echo.Context, svc *services.GenerationService, appConfig *config.ApplicationConfig, input schema.GenerationRequest) schema.GenerationResult {
	result := svc.Generate(c.Request().Context(), input)
	if !result.Succeeded() {
		return result
	}

	url, err := utils.RelativeURL(result.ImagePath, appConfig.OutputDir, GeneratedImagesPrefix)
	if err != nil {
		xlog.Warn("Generated image is outside the served directory", "image", result.ImagePath, "error", err)
		return result
	}
	result.ImageURL = url
	return result
}

// NewGenerationRequest is what a request is bound onto, so only the fields a
// client leaves out keep these values. An omitted seed asks for a random one;
// an explicit zero is kept and checked like any other value.
func NewGenerationRequest() schema.GenerationRequest {
	return schema.GenerationRequest{
		ResolutionCategory: config.DefaultResolutionCategory,
		Seed:               backend.RandomSeed,
		Steps:              config.DefaultSteps,
	}
}

// ApplyRequestDefaults picks the default resolution of the category when none
// was chosen.
func ApplyRequestDefaults(r *schema.GenerationRequest) {
	if r.ResolutionCategory == "" {
		r.ResolutionCategory = config.DefaultResolutionCategory
	}
	if r.Resolution == "" {
		if def, ok := config.DefaultResolution(r.ResolutionCategory); ok {
			r.Resolution = def.Label
		}
	}
}

func StatusForResult(r schema.GenerationResult) int {
	switch r.Error {
	case "":
		return http.StatusOK
	case schema.ErrorKindInvalidInput:
		return http.StatusBadRequest
	case schema.ErrorKindMissingAsset:
		return http.StatusServiceUnavailable
	case schema.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
