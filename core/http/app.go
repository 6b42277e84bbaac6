package http

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mudler/xlog"

	"github.com/aether-sd/aether/core/application"
	"github.com/aether-sd/aether/core/http/endpoints/aether"
	httpMiddleware "github.com/aether-sd/aether/core/http/middleware"
	"github.com/aether-sd/aether/core/http/routes"
	"github.com/aether-sd/aether/core/schema"
)

//go:embed static/*
var embedDirStatic embed.FS

func API(application *application.Application) (*echo.Echo, error) {
	appConfig := application.ApplicationConfig()
	e := echo.New()

	if appConfig.UploadLimitMB > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", appConfig.UploadLimitMB)))
	}

	if !appConfig.OpaqueErrors {
		e.HTTPErrorHandler = func(err error, c echo.Context) {
			if c.Response().Committed {
				return
			}
			code := http.StatusInternalServerError
			message := err.Error()
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
				message = fmt.Sprint(he.Message)
			}

			if code == http.StatusNotFound {
				notFoundHandler(c)
				return
			}

			c.JSON(code, schema.ErrorResponse{
				Error: &schema.APIError{Message: message, Code: code},
			})
		}
	} else {
		e.HTTPErrorHandler = func(err error, c echo.Context) {
			code := http.StatusInternalServerError
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			}
			c.NoContent(code)
		}
	}

	// Strip the path prefix of a reverse proxy before routing.
	e.Pre(httpMiddleware.StripPathPrefix())

	e.Debug = appConfig.Debug
	e.Renderer = renderEngine()
	e.HideBanner = true
	e.HidePort = true

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			err := next(c)
			xlog.Info("HTTP request", "method", req.Method, "path", req.URL.Path, "status", res.Status)
			return err
		}
	})

	// A panicking handler must never take the interface down.
	e.Use(middleware.Recover())

	if metricsService := application.MetricsService(); metricsService != nil {
		e.Use(aether.MetricsAPIMiddleware(metricsService))
	}

	routes.HealthRoutes(e)

	e.GET("/favicon.svg", func(c echo.Context) error {
		data, err := embedDirStatic.ReadFile("static/favicon.svg")
		if err != nil {
			return c.NoContent(http.StatusNotFound)
		}
		return c.Blob(http.StatusOK, "image/svg+xml", data)
	})

	staticFS, err := fs.Sub(embedDirStatic, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create static filesystem: %w", err)
	}
	e.StaticFS("/static", staticFS)

	if err := os.MkdirAll(appConfig.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	e.Static(aether.GeneratedImagesPrefix, appConfig.OutputDir)

	routes.RegisterAetherRoutes(e, appConfig, application.GenerationService(), application.MetricsService())
	if !appConfig.DisableWebUI {
		routes.RegisterUIRoutes(e, appConfig, application.GenerationService())
	}

	e.Server.RegisterOnShutdown(func() {
		xlog.Info("AETHER server shutting down")
	})

	return e, nil
}
