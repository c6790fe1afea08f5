package activity

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/inactivity"
	"github.com/keyxmakerx/crescendo/internal/middleware"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// countdownBuffer is how many countdown ticks may queue while the stream
// writer is busy. Ticks beyond that are dropped; the next one corrects the
// display.
const countdownBuffer = 4

// Handler serves the session endpoints the warning UI talks to.
type Handler struct {
	registry *inactivity.Registry
}

// NewHandler creates a new session activity handler.
func NewHandler(reg *inactivity.Registry) *Handler {
	return &Handler{registry: reg}
}

// Status returns the monitor's view of the current session as JSON
// (GET /session/status).
func (h *Handler) Status(c echo.Context) error {
	st, ok := h.registry.Status(auth.GetToken(c))
	if !ok {
		return c.JSON(http.StatusOK, StatusResponse{State: inactivity.StateNoSession.String()})
	}
	return c.JSON(http.StatusOK, newStatusResponse(st))
}

// Activity records qualifying activity reported by the browser, such as
// typing or scrolling on a page that makes no requests
// (POST /session/activity).
func (h *Handler) Activity(c echo.Context) error {
	h.registry.RecordActivity(auth.GetToken(c))
	return c.NoContent(http.StatusNoContent)
}

// Extend handles the "Stay Logged In" button (POST /session/extend). HTMX
// requests get an empty body, which clears the warning slot.
func (h *Handler) Extend(c echo.Context) error {
	token := auth.GetToken(c)
	if err := h.registry.Extend(token); err != nil {
		if errors.Is(err, inactivity.ErrNoSession) {
			return middleware.HXRedirect(c, endedRedirect(inactivity.EndTimeout))
		}
		return err
	}

	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Trigger", "session-extended")
		return c.HTML(http.StatusOK, "")
	}
	st, _ := h.registry.Status(token)
	return c.JSON(http.StatusOK, newStatusResponse(st))
}

// Warning renders the warning fragment while the warning is visible and an
// empty body otherwise (GET /session/warning).
func (h *Handler) Warning(c echo.Context) error {
	st, ok := h.registry.Status(auth.GetToken(c))
	if !ok || !st.WarningVisible {
		return c.HTML(http.StatusOK, "")
	}
	return middleware.Render(c, http.StatusOK, WarningFragment(st))
}

// Countdown streams the warning countdown as server-sent events
// (GET /session/countdown). Each event carries the remaining time as M:SS.
// The stream ends at 0:00, when the warning is dismissed, or when the
// client goes away. Responds 204 if no warning is showing.
func (h *Handler) Countdown(c echo.Context) error {
	token := auth.GetToken(c)
	st, ok := h.registry.Status(token)
	if !ok || !st.WarningVisible {
		return c.NoContent(http.StatusNoContent)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	ticks := make(chan time.Duration, countdownBuffer)
	countdown := inactivity.NewCountdown(h.registry.Scheduler(), func(d time.Duration) {
		select {
		case ticks <- d:
		default:
		}
	})
	countdown.Start(st.Remaining)
	defer countdown.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-ticks:
			if d > 0 {
				if st, ok := h.registry.Status(token); !ok || !st.WarningVisible {
					fmt.Fprint(res, "event: dismissed\ndata: \n\n")
					res.Flush()
					return nil
				}
			}
			if _, err := fmt.Fprintf(res, "event: tick\ndata: %s\n\n", inactivity.FormatRemaining(d)); err != nil {
				return nil
			}
			res.Flush()
			if d == 0 {
				return nil
			}
		}
	}
}
