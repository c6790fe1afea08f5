// Package admin is the school's administration console: overview counters,
// the student roster with account actions, live sessions and the security
// log. Program and enrollment management register their own routes on the
// admin group.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/middleware"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// rosterPerPage is the number of accounts shown per roster page.
const rosterPerPage = 25

// ProgramCounter counts published programs. Implemented by the programs
// service.
type ProgramCounter interface {
	CountPublished(ctx context.Context) (int, error)
}

// EnrollmentCounter counts requests awaiting review. Implemented by the
// enrollments service.
type EnrollmentCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Overview holds the counters of the admin start page.
type Overview struct {
	Students           int            `json:"students"`
	Admins             int            `json:"admins"`
	PublishedPrograms  int            `json:"published_programs"`
	PendingEnrollments int            `json:"pending_enrollments"`
	ActiveSessions     int            `json:"active_sessions"`
	Security           *SecurityStats `json:"security,omitempty"`
}

// Handler handles admin console requests. It depends on other plugins only
// through interfaces.
type Handler struct {
	users       auth.UserRepository
	security    SecurityService
	programs    ProgramCounter
	enrollments EnrollmentCounter
}

// NewHandler creates a new admin handler.
func NewHandler(users auth.UserRepository, security SecurityService, programs ProgramCounter, enrollments EnrollmentCounter) *Handler {
	return &Handler{users: users, security: security, programs: programs, enrollments: enrollments}
}

// --- Dashboard ---

// Dashboard renders the admin overview (GET /admin). Counters that fail to
// load are logged and shown as zero.
func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	var o Overview

	count := func(name string, dest *int, fn func(context.Context) (int, error)) {
		n, err := fn(ctx)
		if err != nil {
			slog.Warn("admin counter unavailable", slog.String("counter", name), slog.Any("error", err))
			return
		}
		*dest = n
	}
	var users int
	count("users", &users, h.users.CountUsers)
	count("admins", &o.Admins, h.users.CountAdmins)
	o.Students = max(users-o.Admins, 0)
	count("programs", &o.PublishedPrograms, h.programs.CountPublished)
	count("pending_enrollments", &o.PendingEnrollments, h.enrollments.CountPending)
	count("sessions", &o.ActiveSessions, func(ctx context.Context) (int, error) {
		sessions, err := h.security.ActiveSessions(ctx)
		return len(sessions), err
	})
	if stats, err := h.security.GetStats(ctx); err == nil {
		o.Security = stats
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, o)
	}
	return middleware.Render(c, http.StatusOK, DashboardPage(&o))
}

// --- Roster ---

// Users renders the roster (GET /admin/users).
func (h *Handler) Users(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	users, total, err := h.users.ListUsers(c.Request().Context(), (page-1)*rosterPerPage, rosterPerPage)
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, UsersPage(users, total, page, auth.GetUserID(c)))
}

// ToggleAdmin grants or revokes administrator rights (PUT /admin/users/:id/admin).
func (h *Handler) ToggleAdmin(c echo.Context) error {
	if _, err := h.security.ToggleAdmin(c.Request().Context(), actorOf(c), c.Param("id")); err != nil {
		return err
	}
	return h.userRow(c)
}

// DisableUser blocks an account (PUT /admin/users/:id/disable).
func (h *Handler) DisableUser(c echo.Context) error {
	if err := h.security.DisableUser(c.Request().Context(), actorOf(c), c.Param("id")); err != nil {
		return err
	}
	return h.userRow(c)
}

// EnableUser unblocks an account (PUT /admin/users/:id/enable).
func (h *Handler) EnableUser(c echo.Context) error {
	if err := h.security.EnableUser(c.Request().Context(), actorOf(c), c.Param("id")); err != nil {
		return err
	}
	return h.userRow(c)
}

// ForceLogout ends every session of a user (POST /admin/users/:id/logout).
func (h *Handler) ForceLogout(c echo.Context) error {
	n, err := h.security.ForceLogoutUser(c.Request().Context(), actorOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]int{"sessions_ended": n})
	}
	return middleware.HXRedirect(c, "/admin/sessions")
}

// userRow answers an account action with the refreshed roster row.
func (h *Handler) userRow(c echo.Context) error {
	user, err := h.users.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, user)
	}
	if !middleware.IsHTMX(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/users")
	}
	return middleware.Render(c, http.StatusOK, UserRow(user, auth.GetUserID(c)))
}

// --- Sessions and security log ---

// Sessions renders the live sessions (GET /admin/sessions).
func (h *Handler) Sessions(c echo.Context) error {
	sessions, err := h.security.ActiveSessions(c.Request().Context())
	if err != nil {
		return err
	}
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, sessions)
	}
	return middleware.Render(c, http.StatusOK, SessionsPage(sessions))
}

// Security renders the security log (GET /admin/security?type=&page=).
func (h *Handler) Security(c echo.Context) error {
	eventType := c.QueryParam("type")
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	events, total, err := h.security.ListEvents(c.Request().Context(), eventType, page)
	if err != nil {
		return err
	}
	if wantsJSON(c) {
		if events == nil {
			events = []SecurityEvent{}
		}
		return c.JSON(http.StatusOK, map[string]any{"events": events, "total": total, "page": page})
	}
	return middleware.Render(c, http.StatusOK, SecurityPage(events, total, page, eventType))
}

func actorOf(c echo.Context) Actor {
	return Actor{ID: auth.GetUserID(c), IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

func wantsJSON(c echo.Context) bool {
	return c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON
}
