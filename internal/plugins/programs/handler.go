package programs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/middleware"
	"github.com/keyxmakerx/crescendo/internal/plugins/audit"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// Handler handles HTTP requests for the program catalog. Handlers are thin:
// bind request, call service, render response.
type Handler struct {
	service  ProgramService
	recorder audit.Recorder
}

// NewHandler creates a new program handler.
func NewHandler(service ProgramService) *Handler {
	return &Handler{service: service}
}

// SetRecorder wires the activity log for catalog edits.
func (h *Handler) SetRecorder(r audit.Recorder) { h.recorder = r }

func (h *Handler) record(c echo.Context, action, id, name string, details map[string]any) {
	if h.recorder != nil {
		h.recorder.Record(c.Request().Context(), auth.GetUserID(c), action, id, name, details)
	}
}

// listOptions reads catalog filters from the query string.
func listOptions(c echo.Context) ListOptions {
	opts := DefaultListOptions()
	if page, _ := strconv.Atoi(c.QueryParam("page")); page > 0 {
		opts.Page = page
	}
	opts.Instrument = c.QueryParam("instrument")
	opts.Level = Level(c.QueryParam("level"))
	return opts.normalized()
}

// --- Public catalog ---

// Catalog renders the public program list (GET /programs).
func (h *Handler) Catalog(c echo.Context) error {
	opts := listOptions(c)
	programs, total, err := h.service.ListPublished(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	if middleware.IsHTMX(c) {
		return middleware.Render(c, http.StatusOK, CatalogList(programs, total, opts))
	}
	return middleware.Render(c, http.StatusOK, CatalogPage(programs, total, opts))
}

// Show renders one published program (GET /programs/:slug).
func (h *Handler) Show(c echo.Context) error {
	p, err := h.service.GetPublished(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, ProgramPage(p))
}

// listResponse is the JSON body of GET /api/v1/programs.
type listResponse struct {
	Programs []Program `json:"programs"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
}

// APIList returns published programs as JSON (GET /api/v1/programs).
func (h *Handler) APIList(c echo.Context) error {
	opts := listOptions(c)
	programs, total, err := h.service.ListPublished(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	if programs == nil {
		programs = []Program{}
	}
	return c.JSON(http.StatusOK, listResponse{Programs: programs, Total: total, Page: opts.Page, PerPage: opts.PerPage})
}

// APIShow returns one published program as JSON (GET /api/v1/programs/:slug).
func (h *Handler) APIShow(c echo.Context) error {
	p, err := h.service.GetPublished(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// --- Administration ---

// AdminIndex renders the program editor list (GET /admin/programs).
func (h *Handler) AdminIndex(c echo.Context) error {
	opts := listOptions(c)
	programs, total, err := h.service.ListAll(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, AdminProgramsPage(programs, total, opts, &ProgramRequest{DurationWeeks: 12}, ""))
}

// EditForm renders the editor for one program (GET /admin/programs/:id/edit).
func (h *Handler) EditForm(c echo.Context) error {
	p, err := h.service.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, EditProgramPage(p, requestFor(p), ""))
}

// Create processes the new program form (POST /admin/programs).
func (h *Handler) Create(c echo.Context) error {
	var req ProgramRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	p, err := h.service.Create(c.Request().Context(), req.input())
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			return middleware.Render(c, http.StatusUnprocessableEntity, ProgramForm(nil, &req, msg))
		}
		return err
	}
	h.record(c, audit.ActionProgramCreated, p.ID, p.Name, map[string]any{"published": p.IsPublished})

	if wantsJSON(c) {
		return c.JSON(http.StatusCreated, p)
	}
	return middleware.HXRedirect(c, "/admin/programs")
}

// Update processes the program editor (PUT /admin/programs/:id).
func (h *Handler) Update(c echo.Context) error {
	var req ProgramRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	id := c.Param("id")
	p, err := h.service.Update(c.Request().Context(), id, req.input())
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			return middleware.Render(c, http.StatusUnprocessableEntity, ProgramForm(&Program{ID: id}, &req, msg))
		}
		return err
	}
	h.record(c, audit.ActionProgramUpdated, p.ID, p.Name, map[string]any{"published": p.IsPublished})

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, p)
	}
	return middleware.HXRedirect(c, "/admin/programs")
}

// Delete removes a program (DELETE /admin/programs/:id).
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// The name is only for the activity log.
	var name string
	if p, err := h.service.GetByID(ctx, id); err == nil {
		name = p.Name
	}
	if err := h.service.Delete(ctx, id); err != nil {
		return err
	}
	h.record(c, audit.ActionProgramDeleted, id, name, nil)
	if wantsJSON(c) {
		return c.NoContent(http.StatusNoContent)
	}
	return middleware.HXRedirect(c, "/admin/programs")
}

func requestFor(p *Program) *ProgramRequest {
	req := &ProgramRequest{
		Name:          p.Name,
		Instrument:    p.Instrument,
		Level:         string(p.Level),
		Summary:       p.Summary,
		DurationWeeks: p.DurationWeeks,
		PriceCents:    p.PriceCents,
		Capacity:      p.Capacity,
		IsPublished:   p.IsPublished,
	}
	if p.Description != nil {
		req.Description = *p.Description
	}
	return req
}

// validationMessage extracts the message of a validation error.
func validationMessage(err error) (string, bool) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Type == "validation_error" {
		return appErr.Message, true
	}
	return "", false
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(c echo.Context) bool {
	return c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON
}
