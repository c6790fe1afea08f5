package enrollments

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/middleware"
	"github.com/keyxmakerx/crescendo/internal/plugins/audit"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
	"github.com/keyxmakerx/crescendo/internal/templates/layouts"
)

// doneMessages maps the ?done= value of a post-redirect-get to the notice
// shown on the enrollments page.
var doneMessages = map[string]string{
	"requested": "Your enrollment request was sent. The faculty will review it shortly.",
	"withdrawn": "Your enrollment was withdrawn.",
}

// Handler handles HTTP requests for enrollments.
type Handler struct {
	service  EnrollmentService
	recorder audit.Recorder
}

// NewHandler creates a new enrollment handler.
func NewHandler(service EnrollmentService) *Handler {
	return &Handler{service: service}
}

// SetRecorder wires the activity log.
func (h *Handler) SetRecorder(r audit.Recorder) { h.recorder = r }

// record reports a successful change to the activity log.
func (h *Handler) record(c echo.Context, action string, e *Enrollment) {
	if h.recorder == nil {
		return
	}
	details := map[string]any{"student_id": e.UserID}
	if e.Note != "" {
		details["note"] = e.Note
	}
	h.recorder.Record(c.Request().Context(), auth.GetUserID(c), action, e.ID, e.ProgramName, details)
}

// --- Student ---

// Index renders the student's enrollments (GET /enrollments).
func (h *Handler) Index(c echo.Context) error {
	list, err := h.service.ListForUser(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return err
	}
	if wantsJSON(c) {
		if list == nil {
			list = []Enrollment{}
		}
		return c.JSON(http.StatusOK, list)
	}
	if msg, ok := doneMessages[c.QueryParam("done")]; ok {
		withFlash(c, msg, "")
	}
	return middleware.Render(c, http.StatusOK, EnrollmentsPage(list))
}

// Create submits an enrollment request (POST /enrollments).
func (h *Handler) Create(c echo.Context) error {
	var req EnrollRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	ctx := c.Request().Context()
	userID := auth.GetUserID(c)
	e, err := h.service.Request(ctx, userID, req)
	if err != nil {
		status, msg, ok := userFacing(err)
		if !ok || wantsJSON(c) {
			return err
		}
		// Show the refusal next to the student's current enrollments.
		list, listErr := h.service.ListForUser(ctx, userID)
		if listErr != nil {
			return listErr
		}
		withFlash(c, "", msg)
		return middleware.Render(c, status, EnrollmentsPage(list))
	}
	h.record(c, audit.ActionEnrollmentRequested, e)

	if wantsJSON(c) {
		return c.JSON(http.StatusCreated, e)
	}
	return middleware.HXRedirect(c, "/enrollments?done=requested")
}

// Withdraw leaves an enrollment (DELETE /enrollments/:id).
func (h *Handler) Withdraw(c echo.Context) error {
	e, err := h.service.Withdraw(c.Request().Context(), auth.GetUserID(c), c.Param("id"))
	if err != nil {
		return err
	}
	h.record(c, audit.ActionEnrollmentWithdrawn, e)
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, e)
	}
	if middleware.IsHTMX(c) {
		return middleware.Render(c, http.StatusOK, StudentRow(e))
	}
	return c.Redirect(http.StatusSeeOther, "/enrollments?done=withdrawn")
}

// Courses renders the student's approved enrollments (GET /courses).
func (h *Handler) Courses(c echo.Context) error {
	courses, err := h.service.Courses(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, CoursesPage(courses))
}

// --- Administration ---

// AdminIndex renders the review queue (GET /admin/enrollments).
func (h *Handler) AdminIndex(c echo.Context) error {
	opts := ListOptions{Status: Status(c.QueryParam("status"))}
	if _, set := c.QueryParams()["status"]; !set {
		opts.Status = StatusPending
	}
	opts.Page, _ = strconv.Atoi(c.QueryParam("page"))
	opts = opts.normalized()

	list, total, err := h.service.ListForAdmin(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	if wantsJSON(c) {
		if list == nil {
			list = []Enrollment{}
		}
		return c.JSON(http.StatusOK, map[string]any{"enrollments": list, "total": total})
	}
	return middleware.Render(c, http.StatusOK, AdminEnrollmentsPage(list, total, opts))
}

// Approve accepts a request (POST /admin/enrollments/:id/approve).
func (h *Handler) Approve(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	e, err := h.service.Approve(c.Request().Context(), auth.GetUserID(c), c.Param("id"), req.Note)
	return h.decided(c, audit.ActionEnrollmentApproved, e, err)
}

// Reject declines a request (POST /admin/enrollments/:id/reject).
func (h *Handler) Reject(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	e, err := h.service.Reject(c.Request().Context(), auth.GetUserID(c), c.Param("id"), req.Note)
	return h.decided(c, audit.ActionEnrollmentRejected, e, err)
}

func (h *Handler) decided(c echo.Context, action string, e *Enrollment, err error) error {
	if err != nil {
		// HTMX swaps the message into the row instead of leaving the page.
		if _, msg, ok := userFacing(err); ok && middleware.IsHTMX(c) {
			return middleware.Render(c, http.StatusOK, AdminRowError(c.Param("id"), msg))
		}
		return err
	}
	h.record(c, action, e)
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, e)
	}
	if middleware.IsHTMX(c) {
		return middleware.Render(c, http.StatusOK, AdminRow(e))
	}
	return c.Redirect(http.StatusSeeOther, "/admin/enrollments")
}

// --- Helpers ---

// userFacing returns the status and message of errors the student or
// administrator can act on.
func userFacing(err error) (int, string, bool) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return 0, "", false
	}
	switch appErr.Type {
	case "validation_error":
		return http.StatusUnprocessableEntity, appErr.Message, true
	case "conflict":
		return http.StatusConflict, appErr.Message, true
	}
	return 0, "", false
}

func withFlash(c echo.Context, success, failure string) {
	ctx := c.Request().Context()
	if success != "" {
		ctx = layouts.SetFlashSuccess(ctx, success)
	}
	if failure != "" {
		ctx = layouts.SetFlashError(ctx, failure)
	}
	c.SetRequest(c.Request().WithContext(ctx))
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(c echo.Context) bool {
	return c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON
}
