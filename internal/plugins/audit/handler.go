package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/middleware"
)

// Handler handles HTTP requests for the audit log. Handlers are thin:
// bind request, call service, render response.
type Handler struct {
	service AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService) *Handler {
	return &Handler{service: service}
}

// Activity renders the feed with its summary (GET /admin/activity).
func (h *Handler) Activity(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	subject := c.QueryParam("subject")

	ctx := c.Request().Context()
	entries, total, err := h.service.Activity(ctx, subject, page)
	if err != nil {
		return err
	}

	if c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON {
		return c.JSON(http.StatusOK, map[string]any{"entries": entries, "total": total})
	}

	stats, err := h.service.Stats(ctx)
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, ActivityPage(stats, entries, total, page, subject))
}

// History returns the change history of one program or enrollment as JSON
// (GET /admin/activity/:id).
func (h *Handler) History(c echo.Context) error {
	entries, err := h.service.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}
