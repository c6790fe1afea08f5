package profiles

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes adds the profile routes to the signed-in group.
func RegisterRoutes(member *echo.Group, h *Handler) {
	member.GET("/profile", h.Show)
	member.PUT("/profile", h.Update)
	member.POST("/profile", h.Update)
}
