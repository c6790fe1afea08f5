package activity

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/inactivity"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// RegisterRoutes sets up the session endpoints on the given Echo instance.
// Every route requires authentication; polling them is not activity.
func RegisterRoutes(e *echo.Echo, h *Handler, t *Tracker, reg *inactivity.Registry, authService auth.AuthService) {
	g := e.Group("/session",
		RedirectEnded(reg, authService),
		auth.RequireAuth(authService),
		TrackActivity(t),
	)
	g.GET("/status", h.Status)
	g.GET("/warning", h.Warning)
	g.GET("/countdown", h.Countdown)
	g.POST("/activity", h.Activity)
	g.POST("/extend", h.Extend)
}
