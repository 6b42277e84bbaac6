package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ForwardedPrefixHeader is set by a reverse proxy that serves the app below
// a sub-path, e.g. "X-Forwarded-Prefix: /aether".
const ForwardedPrefixHeader = "X-Forwarded-Prefix"

const basePathKey = "_base_path"

// StripPathPrefix removes the forwarded prefix from the request path so the
// router only ever sees app-relative paths. A request for the bare prefix is
// redirected to the prefix with a trailing slash. Register it with e.Pre.
func StripPathPrefix() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			for _, prefix := range req.Header.Values(ForwardedPrefixHeader) {
				if prefix == "" || prefix == "/" {
					continue
				}
				normalized := strings.TrimSuffix(prefix, "/") + "/"

				if path == strings.TrimSuffix(normalized, "/") {
					return c.Redirect(http.StatusFound, normalized)
				}
				if !strings.HasPrefix(path, normalized) {
					continue
				}

				stripped := "/" + strings.TrimPrefix(path, normalized)
				req.URL.Path = stripped
				req.URL.RawPath = ""
				req.RequestURI = stripped
				if req.URL.RawQuery != "" {
					req.RequestURI += "?" + req.URL.RawQuery
				}
				c.Set(basePathKey, normalized)
				break
			}

			return next(c)
		}
	}
}

// BasePath is the path the app is reachable at from the client's point of
// view. It always ends with "/".
func BasePath(c echo.Context) string {
	if p, ok := c.Get(basePathKey).(string); ok && p != "" {
		return p
	}
	return "/"
}
