package app

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/crescendo/internal/plugins/activity"
)

// registerMetrics serves the session metrics plus the Go runtime and process
// collectors on GET /metrics.
func (a *App) registerMetrics(sessions *activity.Metrics) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}
	if err := sessions.Register(reg); err != nil {
		return err
	}

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	a.Echo.GET("/metrics", echo.WrapHandler(handler), metricsAuth(a.Config.Metrics.Token, a.Config.IsDevelopment()))
	return nil
}

// metricsAuth requires the bearer token when one is configured. Without a
// token, scraping is only open in development.
func metricsAuth(token string, openWithoutToken bool) echo.MiddlewareFunc {
	token = strings.TrimSpace(token)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				if openWithoutToken {
					return next(c)
				}
				return c.String(http.StatusUnauthorized, "unauthorized")
			}
			got, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.String(http.StatusUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}
