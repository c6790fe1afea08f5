package profiles

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/middleware"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// Handler handles HTTP requests for the student's profile.
type Handler struct {
	service ProfileService
}

// NewHandler creates a new profile handler.
func NewHandler(service ProfileService) *Handler {
	return &Handler{service: service}
}

// Show renders the profile form (GET /profile).
func (h *Handler) Show(c echo.Context) error {
	p, err := h.service.GetProfile(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return err
	}
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, p)
	}
	return middleware.Render(c, http.StatusOK, ProfilePage(p, RequestFor(p), "", ""))
}

// Update saves the profile form (PUT /profile, or POST without scripts).
func (h *Handler) Update(c echo.Context) error {
	var req ProfileRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	p, err := h.service.PutProfile(c.Request().Context(), auth.GetUserID(c), req)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Type == "validation_error" && !wantsJSON(c) {
			return middleware.Render(c, http.StatusUnprocessableEntity, ProfileForm(&req, appErr.Message, ""))
		}
		return err
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, p)
	}
	if !middleware.IsHTMX(c) {
		return c.Redirect(http.StatusSeeOther, "/profile")
	}
	return middleware.Render(c, http.StatusOK, ProfileForm(RequestFor(p), "", "Profile saved."))
}

func wantsJSON(c echo.Context) bool {
	return c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON
}
