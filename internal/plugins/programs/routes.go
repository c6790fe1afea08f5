package programs

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// RegisterRoutes sets up the public catalog routes. Pages load the session
// when present so the navigation reflects a signed-in user.
func RegisterRoutes(e *echo.Echo, h *Handler, authService auth.AuthService) {
	pub := e.Group("", auth.OptionalAuth(authService))
	pub.GET("/programs", h.Catalog)
	pub.GET("/programs/:slug", h.Show)

	api := e.Group("/api/v1/programs")
	api.GET("", h.APIList)
	api.GET("/:slug", h.APIShow)
}

// RegisterAdminRoutes adds the program editor to the admin group, which
// already requires a site administrator.
func RegisterAdminRoutes(admin *echo.Group, h *Handler) {
	admin.GET("/programs", h.AdminIndex)
	admin.POST("/programs", h.Create)
	admin.GET("/programs/:id/edit", h.EditForm)
	admin.PUT("/programs/:id", h.Update)
	admin.DELETE("/programs/:id", h.Delete)
}
