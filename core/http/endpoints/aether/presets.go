package aether

import (
	"net/http"
	"strconv"

	"github.com/aether-sd/aether/core/config"
	"github.com/labstack/echo/v4"
)

type ExampleResponse struct {
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
}

// ResolutionsEndpoint lists the choices of one resolution category, in
// display order. The first entry is the category default.
// @Summary List the resolution choices of a category
// @Router /api/resolutions/{category} [get]
func ResolutionsEndpoint() echo.HandlerFunc {
	return func(c echo.Context) error {
		category := c.Param("category")
		choices, ok := config.ResolutionChoices(category)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "unknown resolution category "+strconv.Quote(category))
		}
		return c.JSON(http.StatusOK, config.ResolutionCategory{Name: category, Choices: choices})
	}
}

// ListResolutionsEndpoint returns every category.
// @Router /api/resolutions [get]
func ListResolutionsEndpoint() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, config.ResolutionPresets)
	}
}

// ExampleEndpoint returns one built-in example prompt. Out-of-range indexes
// return an empty prompt rather than an error, so a stale page never breaks.
// @Router /api/examples/{index} [get]
func ExampleEndpoint() echo.HandlerFunc {
	return func(c echo.Context) error {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
		}
		return c.JSON(http.StatusOK, ExampleResponse{Index: index, Prompt: config.ExamplePrompt(index)})
	}
}
