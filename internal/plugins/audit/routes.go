package audit

import "github.com/labstack/echo/v4"

// RegisterRoutes adds the activity feed to the admin group, which already
// requires a site administrator.
func RegisterRoutes(admin *echo.Group, h *Handler) {
	admin.GET("/activity", h.Activity)
	admin.GET("/activity/:id", h.History)
}
