package middleware

import (
	"context"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// LayoutInjector copies layout data (signed-in user, CSRF token, session
// mode) from the Echo context into the Go context read by templ views. It is
// registered once at startup in app/routes.go, which keeps this package free
// of plugin imports.
var LayoutInjector func(echo.Context, context.Context) context.Context

// IsHTMX returns true if the request was initiated by HTMX and is NOT a
// boosted navigation. Boosted requests expect full pages.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true" &&
		c.Request().Header.Get("HX-Boosted") != "true"
}

// HXRedirect sends the browser to path: via the HX-Redirect header for HTMX
// requests, via a 303 otherwise.
func HXRedirect(c echo.Context, path string) error {
	if c.Request().Header.Get("HX-Request") == "true" {
		c.Response().Header().Set("HX-Redirect", path)
		return c.NoContent(204)
	}
	return c.Redirect(303, path)
}

// Render writes a templ component with the given status code after running
// the LayoutInjector.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := c.Request().Context()
	if LayoutInjector != nil {
		ctx = LayoutInjector(c, ctx)
	}

	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}
