package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/middleware"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// Login and registration are public; POST endpoints are rate-limited against
// credential stuffing: 10 attempts per IP per minute for login, 5 for
// register. extra is applied to the signed-in routes (activity tracking).
func RegisterRoutes(e *echo.Echo, h *Handler, service AuthService, extra ...echo.MiddlewareFunc) {
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, middleware.RateLimit(10, time.Minute))
	e.GET("/register", h.RegisterForm)
	e.POST("/register", h.Register, middleware.RateLimit(5, time.Minute))

	// Logout works with or without a live session; the handler decides.
	e.POST("/logout", h.Logout)

	mw := append([]echo.MiddlewareFunc{RequireAuth(service)}, extra...)
	settings := e.Group("/settings", mw...)
	settings.GET("", h.SettingsPage)
	settings.POST("/password", h.ChangePassword, middleware.RateLimit(5, time.Minute))
}
