package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/database"
	"github.com/keyxmakerx/crescendo/internal/inactivity"
	"github.com/keyxmakerx/crescendo/internal/middleware"
	"github.com/keyxmakerx/crescendo/internal/plugins/activity"
	"github.com/keyxmakerx/crescendo/internal/plugins/admin"
	"github.com/keyxmakerx/crescendo/internal/plugins/audit"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
	"github.com/keyxmakerx/crescendo/internal/plugins/dashboard"
	"github.com/keyxmakerx/crescendo/internal/plugins/enrollments"
	"github.com/keyxmakerx/crescendo/internal/plugins/profiles"
	"github.com/keyxmakerx/crescendo/internal/plugins/programs"
	"github.com/keyxmakerx/crescendo/internal/templates/layouts"
	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

// healthTimeout bounds the store pings behind /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes builds every plugin and registers its routes. This is the
// single place where plugins are wired to each other; the session monitor's
// background work is started here and stopped by Close.
func (a *App) RegisterRoutes() error {
	e := a.Echo
	cfg := a.Config

	middleware.LayoutInjector = injectLayout

	e.GET("/healthz", a.health)

	// --- Auth ---

	ttls := auth.SessionTTLs{
		Standard: cfg.Session.StandardTimeout,
		Extended: cfg.Session.ExtendedTimeout,
	}
	userRepo := auth.NewUserRepository(a.DB)
	authService := auth.NewAuthService(userRepo, a.Redis, ttls)
	authHandler := auth.NewHandler(authService, ttls)

	securityService := admin.NewSecurityService(admin.NewSecurityEventRepository(a.DB), userRepo, authService)
	authHandler.SetSecurityLogger(securityService)

	e.GET("/", func(c echo.Context) error {
		return middleware.Render(c, http.StatusOK, pages.Landing())
	}, auth.OptionalAuth(authService))

	// --- Session inactivity monitor ---

	a.registry = inactivity.NewRegistry(inactivity.Config{
		StandardTimeout: cfg.Session.StandardTimeout,
		ExtendedTimeout: cfg.Session.ExtendedTimeout,
		WarningLead:     cfg.Session.WarningLead,
		Debounce:        cfg.Session.ActivityDebounce,
	}, inactivity.RealScheduler{}, inactivity.TerminatorFunc(authService.DestroySession), cfg.Session.EndedReasonTTL)

	a.tracker = activity.NewTracker(a.registry, authService)
	a.tracker.SetSecurityLogger(securityService)
	if err := a.tracker.Start(); err != nil {
		return err
	}
	authHandler.SetLifecycle(a.tracker)

	rec, err := activity.NewReconciler(a.registry, authService, cfg.Session.ReconcileSchedule)
	if err != nil {
		return err
	}
	a.reconciler = rec
	a.reconciler.Start()

	if cfg.Metrics.Enabled {
		if err := a.registerMetrics(activity.NewMetrics(a.registry, rec)); err != nil {
			return err
		}
	}

	// Explain a monitor-ended session on whatever page the stale cookie hits.
	e.Use(activity.RedirectEnded(a.registry, authService))
	track := activity.TrackActivity(a.tracker)

	activity.RegisterRoutes(e, activity.NewHandler(a.registry), a.tracker, a.registry, authService)
	auth.RegisterRoutes(e, authHandler, authService, track)

	// Catalog and enrollment changes land in the activity log.
	auditService := audit.NewAuditService(audit.NewAuditRepository(a.DB))

	// --- Catalog ---

	programRepo := programs.NewProgramRepository(a.DB)
	programService := programs.NewProgramService(programRepo, cfg.Catalog.CacheSize, cfg.Catalog.CacheTTL)
	programHandler := programs.NewHandler(programService)
	programHandler.SetRecorder(auditService)
	programs.RegisterRoutes(e, programHandler, authService)

	// --- Student area ---

	enrollmentService := enrollments.NewEnrollmentService(
		enrollments.NewEnrollmentRepository(a.DB),
		enrollments.NewProgramFinderAdapter(programService),
	)
	enrollmentHandler := enrollments.NewHandler(enrollmentService)
	enrollmentHandler.SetRecorder(auditService)

	profileService := profiles.NewProfileService(profiles.NewProfileRepository(a.DB))

	member := e.Group("", auth.RequireAuth(authService), track)
	dashboard.RegisterRoutes(member, dashboard.NewHandler(enrollmentService, profileService))
	enrollments.RegisterRoutes(member, enrollmentHandler)
	profiles.RegisterRoutes(member, profiles.NewHandler(profileService))

	// --- Admin console ---

	adminHandler := admin.NewHandler(userRepo, securityService, programService, enrollmentService)
	adminGroup := admin.RegisterRoutes(e, adminHandler, authService, track)
	programs.RegisterAdminRoutes(adminGroup, programHandler)
	enrollments.RegisterAdminRoutes(adminGroup, enrollmentHandler)
	audit.RegisterRoutes(adminGroup, audit.NewHandler(auditService))

	slog.Info("routes registered",
		slog.Duration("standard_timeout", cfg.Session.StandardTimeout),
		slog.Duration("extended_timeout", cfg.Session.ExtendedTimeout),
		slog.Bool("metrics", cfg.Metrics.Enabled),
	)
	return nil
}

// health reports whether both stores answer.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := database.Health(ctx, a.DB, a.Redis); err != nil {
		slog.Warn("health check failed", slog.Any("error", err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"monitors": a.registry.Len(),
	})
}

// injectLayout copies the signed-in user, the CSRF token and the session
// mode into the context read by views. Flash messages set by handlers on
// the request context are left as they are.
func injectLayout(c echo.Context, ctx context.Context) context.Context {
	ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
	ctx = layouts.SetActivePath(ctx, c.Request().URL.Path)

	session := auth.GetSession(c)
	if session == nil {
		return ctx
	}
	ctx = layouts.SetIsAuthenticated(ctx, true)
	ctx = layouts.SetUserID(ctx, session.UserID)
	ctx = layouts.SetUserName(ctx, session.Name)
	ctx = layouts.SetUserEmail(ctx, session.Email)
	ctx = layouts.SetIsAdmin(ctx, session.IsAdmin)
	return layouts.SetSessionMode(ctx, inactivity.ModeFor(session.Remember).String())
}
