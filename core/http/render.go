package http

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/aether-sd/aether/core/http/middleware"
	"github.com/aether-sd/aether/core/schema"
	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday"
)

//go:embed views/*
var viewsfs embed.FS

type templateRenderer struct {
	templates *template.Template
}

// Render resolves "views/index" to the embedded views/index.html.
func (t *templateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, path.Base(name)+".html", data)
}

func renderEngine() *templateRenderer {
	t := template.New("").Funcs(sprig.FuncMap()).Funcs(template.FuncMap{
		"MDToHTML": markDowner,
	})
	return &templateRenderer{templates: template.Must(t.ParseFS(viewsfs, "views/*.html"))}
}

func markDowner(args ...interface{}) template.HTML {
	s := blackfriday.MarkdownCommon([]byte(fmt.Sprint(args...)))
	return template.HTML(bluemonday.UGCPolicy().Sanitize(string(s)))
}

func notFoundHandler(c echo.Context) error {
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML) {
		return c.Render(http.StatusNotFound, "views/404", map[string]string{"BasePath": middleware.BasePath(c)})
	}
	return c.JSON(http.StatusNotFound, schema.ErrorResponse{
		Error: &schema.APIError{Message: "Resource not found", Code: http.StatusNotFound},
	})
}
