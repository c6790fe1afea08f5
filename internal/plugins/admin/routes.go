package admin

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// RegisterRoutes creates the /admin group (signed-in administrators only)
// and returns it so other plugins can add their admin pages. mw runs after
// authentication, before the admin check.
func RegisterRoutes(e *echo.Echo, h *Handler, authService auth.AuthService, mw ...echo.MiddlewareFunc) *echo.Group {
	chain := append([]echo.MiddlewareFunc{auth.RequireAuth(authService)}, mw...)
	chain = append(chain, auth.RequireSiteAdmin())
	admin := e.Group("/admin", chain...)

	admin.GET("", h.Dashboard)

	admin.GET("/users", h.Users)
	admin.PUT("/users/:id/admin", h.ToggleAdmin)
	admin.PUT("/users/:id/disable", h.DisableUser)
	admin.PUT("/users/:id/enable", h.EnableUser)
	admin.POST("/users/:id/logout", h.ForceLogout)

	admin.GET("/sessions", h.Sessions)
	admin.GET("/security", h.Security)

	return admin
}
