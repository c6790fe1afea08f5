package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

// Context keys for storing session data in Echo context. Other plugins
// use these keys (via the exported getter functions below) to access
// the authenticated user's information.
const (
	contextKeySession = "auth_session"
	contextKeyUserID  = "auth_user_id"
	contextKeyToken   = "auth_token"
)

// RequireAuth returns middleware that validates the session cookie and
// injects session data into the request context. If the session is
// invalid or missing, it redirects browsers to /login or returns 401
// for API requests. A session store outage is reported as 503 and the
// cookie is kept.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := GetSessionToken(c)
			if token == "" {
				return handleUnauthenticated(c)
			}

			session, err := service.ValidateSession(c.Request().Context(), token)
			if err != nil {
				if apperror.IsTransient(err) {
					return err
				}
				ClearSessionCookie(c)
				return handleUnauthenticated(c)
			}

			setSessionContext(c, token, session)
			return next(c)
		}
	}
}

// OptionalAuth loads the session if a valid cookie is present but never
// rejects the request. Used on public pages that adapt to signed-in users.
func OptionalAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token := GetSessionToken(c); token != "" {
				if session, err := service.ValidateSession(c.Request().Context(), token); err == nil {
					setSessionContext(c, token, session)
				}
			}
			return next(c)
		}
	}
}

// RequireSiteAdmin rejects requests whose session is not an administrator.
// Must run after RequireAuth.
func RequireSiteAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := GetSession(c)
			if session == nil {
				return apperror.NewUnauthorized("authentication required")
			}
			if !session.IsAdmin {
				return apperror.NewForbidden("administrator access required")
			}
			return next(c)
		}
	}
}

func setSessionContext(c echo.Context, token string, session *Session) {
	c.Set(contextKeySession, session)
	c.Set(contextKeyUserID, session.UserID)
	c.Set(contextKeyToken, token)
}

// handleUnauthenticated returns the appropriate response for unauthenticated
// requests: redirect for browsers, 401 JSON for API clients.
func handleUnauthenticated(c echo.Context) error {
	if isAPIRequest(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}

	// HTMX requests get a redirect header so the full page navigates.
	if isHTMXRequest(c) {
		c.Response().Header().Set("HX-Redirect", "/login")
		return c.NoContent(http.StatusNoContent)
	}

	return c.Redirect(http.StatusSeeOther, "/login")
}

// --- Exported getters for other plugins ---

// GetSession retrieves the authenticated session from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func GetSession(c echo.Context) *Session {
	session, ok := c.Get(contextKeySession).(*Session)
	if !ok {
		return nil
	}
	return session
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}

// GetToken returns the validated session token from the Echo context, or
// empty string if the request is not authenticated.
func GetToken(c echo.Context) string {
	token, ok := c.Get(contextKeyToken).(string)
	if !ok {
		return ""
	}
	return token
}

// --- Helpers ---

// isAPIRequest returns true if the request targets the /api/ path.
func isAPIRequest(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api")
}

// isHTMXRequest returns true if the request was made by HTMX.
func isHTMXRequest(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}
