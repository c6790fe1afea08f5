package enrollments

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes adds the student enrollment routes to the signed-in group,
// which already requires a session and tracks activity.
func RegisterRoutes(member *echo.Group, h *Handler) {
	member.GET("/enrollments", h.Index)
	member.POST("/enrollments", h.Create)
	member.DELETE("/enrollments/:id", h.Withdraw)
	member.GET("/courses", h.Courses)
}

// RegisterAdminRoutes adds the review queue to the admin group.
func RegisterAdminRoutes(admin *echo.Group, h *Handler) {
	admin.GET("/enrollments", h.AdminIndex)
	admin.POST("/enrollments/:id/approve", h.Approve)
	admin.POST("/enrollments/:id/reject", h.Reject)
}
