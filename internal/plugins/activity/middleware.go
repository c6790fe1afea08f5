package activity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/inactivity"
	"github.com/keyxmakerx/crescendo/internal/middleware"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// sessionPathPrefix is where the warning UI polls. Those requests are not
// user activity.
const sessionPathPrefix = "/session/"

// TrackActivity feeds every authenticated request to the session's monitor
// as qualifying activity, restoring the monitor first if the server lost it.
// Must run after auth.RequireAuth.
func TrackActivity(t *Tracker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.GetToken(c)
			session := auth.GetSession(c)
			if token == "" || session == nil {
				return next(c)
			}

			created := t.Restore(token, session, auth.RememberRequested(c))
			if !created && isQualifying(c) {
				t.registry.RecordActivity(token)
			}
			return next(c)
		}
	}
}

// RedirectEnded sends browsers whose session was ended by the monitor to
// the login page with an explanation. It runs before auth.RequireAuth so
// the reason is shown even though the session is gone. A timed out session
// is destroyed again here in case the store was unreachable at timeout.
func RedirectEnded(reg *inactivity.Registry, store SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.GetSessionToken(c)
			if token == "" {
				return next(c)
			}
			reason, ok := reg.EndReason(token)
			target := endedRedirect(reason)
			if !ok || target == "" {
				return next(c)
			}

			if reason == inactivity.EndTimeout {
				if err := store.DestroySession(c.Request().Context(), token); err != nil {
					// Keep the tombstone so the next request retries.
					slog.Warn("failed to destroy timed out session", slog.Any("error", err))
					return err
				}
			}
			reg.ForgetEnded(token)
			auth.ClearSessionCookie(c)

			if strings.HasPrefix(c.Request().URL.Path, sessionPathPrefix) && !middleware.IsHTMX(c) {
				return c.JSON(http.StatusUnauthorized, StatusResponse{
					State:    inactivity.StateNoSession.String(),
					Redirect: target,
				})
			}
			return middleware.HXRedirect(c, target)
		}
	}
}

func isQualifying(c echo.Context) bool {
	return !strings.HasPrefix(c.Request().URL.Path, sessionPathPrefix)
}
