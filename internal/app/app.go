// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance, session monitors) and wires together all plugins.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/config"
	"github.com/keyxmakerx/crescendo/internal/inactivity"
	"github.com/keyxmakerx/crescendo/internal/middleware"
	"github.com/keyxmakerx/crescendo/internal/plugins/activity"
	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool shared by all plugins.
	DB *sql.DB

	// Redis holds sessions and carries auth change notifications.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Background parts of the session monitor, set by RegisterRoutes and
	// stopped by Close.
	registry   *inactivity.Registry
	tracker    *activity.Tracker
	reconciler *activity.Reconciler
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() feeds rate limiting and the security event log, so only
	// believe forwarding headers from our own proxies.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	// Serve static files (CSS, session script, vendor libs).
	e.Static("/static", "static")

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (CSRF) runs last.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.SecurityHeaders())

	// The catalog API may be read by the school's other sites.
	origins := append([]string{a.Config.BaseURL}, a.Config.CORSOrigins...)
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: origins}))

	// Double-submit cookie on all state-changing requests.
	a.Echo.Use(middleware.CSRF())
}

// errorHandler maps domain errors (AppError) to HTTP responses: JSON for API
// clients, a redirect to the login page for 401s, and a full error page
// otherwise. HTMX requests get the error page retargeted to the body so it
// does not land inside a fragment.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := "internal_error"
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message

		if appErr.Internal != nil {
			level := slog.LevelError
			if appErr.Type == apperror.TypeTransient {
				level = slog.LevelWarn
			}
			slog.Log(c.Request().Context(), level, "request failed",
				slog.String("type", appErr.Type),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		errType = strings.ToLower(strings.ReplaceAll(http.StatusText(code), " ", "_"))
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = defaultErrorMessage(code)
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if wantsJSON(c) {
		_ = c.JSON(code, map[string]string{
			"error":   errType,
			"message": message,
		})
		return
	}

	if code == http.StatusUnauthorized {
		_ = middleware.HXRedirect(c, "/login")
		return
	}

	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Retarget", "body")
		c.Response().Header().Set("HX-Reswap", "innerHTML")
	}

	if err := middleware.Render(c, code, pages.ErrorPage(code, message)); err != nil {
		slog.Error("rendering error page", slog.Any("error", err))
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status
// codes when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "Please sign in to continue."
	case http.StatusForbidden:
		return "You don't have permission to do that."
	case http.StatusNotFound:
		return "That page doesn't exist or has been moved."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

// wantsJSON reports whether the client expects a JSON error: API routes and
// requests that ask for JSON explicitly.
func wantsJSON(c echo.Context) bool {
	req := c.Request()
	return strings.HasPrefix(req.URL.Path, "/api/") ||
		strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Crescendo server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}

// Close stops the session monitor's background work after the HTTP server
// has drained. Sessions already in Redis are left alone; monitors are
// restored on the next request to any instance.
func (a *App) Close(ctx context.Context) {
	if a.reconciler != nil {
		a.reconciler.Stop(ctx)
	}
	if a.tracker != nil {
		a.tracker.Stop()
	}
	if a.registry != nil {
		a.registry.Close()
	}
}
