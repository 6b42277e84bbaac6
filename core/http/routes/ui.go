package routes

import (
	"net/http"
	"strconv"

	"github.com/aether-sd/aether/core/config"
	"github.com/aether-sd/aether/core/http/endpoints/aether"
	"github.com/aether-sd/aether/core/http/middleware"
	"github.com/aether-sd/aether/core/schema"
	"github.com/aether-sd/aether/core/services"
	"github.com/aether-sd/aether/internal"
	"github.com/labstack/echo/v4"
)

const introMarkdown = `## AETHER (Ether / The Fifth Element)

*Peak Performance. Infinite Creativity.*

AETHER is a high-performance image generation engine optimized for Metal (macOS) and CUDA (Linux).

**Features:**

*   **Flash Attention**: Accelerated inference speed.
*   **Metal Optimization**: Native support for Apple Silicon.
*   **8-Step Turbo**: High-quality generation in just 8 steps.
`

const readyStatus = "Ready. Enter a prompt and press Generate."

type indexPage struct {
	Title            string
	BasePath         string
	Version          string
	Intro            string
	Categories       []config.ResolutionCategory
	Choices          []config.Resolution
	Request          schema.GenerationRequest
	Result           *schema.GenerationResult
	SeedUsed         string
	Status           string
	Examples         []string
	FeaturedExamples int
	MinSteps         int
	MaxSteps         int
}

func RegisterUIRoutes(app *echo.Echo,
	appConfig *config.ApplicationConfig,
	generationService *services.GenerationService) {

	app.GET("/", func(c echo.Context) error {
		req := aether.NewGenerationRequest()
		req.Seed = config.DefaultSeed
		req.RandomSeed = true
		aether.ApplyRequestDefaults(&req)
		return c.Render(http.StatusOK, "views/index", newIndexPage(c, generationService, req, nil))
	})

	app.POST("/generate", func(c echo.Context) error {
		req := aether.NewGenerationRequest()
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		alignResolution(&req)
		aether.ApplyRequestDefaults(&req)

		result := aether.Generate(c, generationService, appConfig, req)
		return c.Render(http.StatusOK, "views/index", newIndexPage(c, generationService, req, &result))
	})
}

// alignResolution resets the choice to the category default when the
// category was changed without the page updating its choices.
func alignResolution(r *schema.GenerationRequest) {
	if _, err := config.LookupResolution(r.ResolutionCategory, r.Resolution); err == nil {
		return
	}
	if def, ok := config.DefaultResolution(r.ResolutionCategory); ok {
		r.Resolution = def.Label
	}
}

func newIndexPage(c echo.Context, svc *services.GenerationService, req schema.GenerationRequest, result *schema.GenerationResult) indexPage {
	choices, _ := config.ResolutionChoices(req.ResolutionCategory)

	page := indexPage{
		Title:            "AETHER: Create from Thin Air",
		BasePath:         middleware.BasePath(c),
		Version:          internal.PrintableVersion(),
		Intro:            introMarkdown,
		Categories:       config.ResolutionPresets,
		Choices:          choices,
		Request:          req,
		Result:           result,
		Status:           readyStatus,
		Examples:         config.ExamplePrompts,
		FeaturedExamples: config.FeaturedExamples,
		MinSteps:         config.MinSteps,
		MaxSteps:         config.MaxSteps,
	}

	if result != nil {
		page.Status = result.Message
		if result.Seed != nil {
			page.SeedUsed = strconv.FormatInt(*result.Seed, 10)
		}
		return page
	}

	if missing := svc.MissingAssets(); len(missing) > 0 {
		page.Status = "Warning: the following files are missing:\n" + services.FormatAssets(missing) +
			"\n\nMake sure all required files are in place."
	}
	return page
}
