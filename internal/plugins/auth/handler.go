package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/middleware"
)

const (
	// sessionCookieName is the HTTP cookie used to store the session token.
	sessionCookieName = "crescendo_session"

	// RememberCookieName is the durable "remember me" flag. It outlives
	// server restarts so a restored session keeps its login mode.
	RememberCookieName = "crescendo_remember"
)

// Security event types recorded by the auth handlers.
const (
	EventLoginSuccess    = "login.success"
	EventLoginFailed     = "login.failed"
	EventLogout          = "logout"
	EventRegister        = "register"
	EventPasswordChanged = "password.changed"
)

// SessionLifecycle is notified when sessions begin and asked to end them.
// The activity plugin implements it to drive the inactivity monitor.
type SessionLifecycle interface {
	// SessionStarted is called after a successful login or signup.
	SessionStarted(c echo.Context, token string, user *User, remember bool)

	// EndSession ends a session explicitly. A TransientFailure means the
	// session is still alive and the user may retry.
	EndSession(ctx context.Context, token string) error
}

// SecurityLogger records security-relevant events. Implemented by the admin
// plugin; nil means events are only written to the application log.
type SecurityLogger interface {
	LogEvent(ctx context.Context, eventType, userID, actorID, ip, userAgent string, details map[string]any) error
}

// Handler handles HTTP requests for authentication (login, register,
// logout, password change). Handlers are thin: they bind the request, call
// the service, and render the response.
type Handler struct {
	service   AuthService
	ttls      SessionTTLs
	lifecycle SessionLifecycle
	security  SecurityLogger
}

// NewHandler creates a new auth handler. ttls sets the cookie lifetime of
// remembered logins.
func NewHandler(service AuthService, ttls SessionTTLs) *Handler {
	return &Handler{service: service, ttls: ttls}
}

// SetLifecycle wires the session lifecycle hooks.
func (h *Handler) SetLifecycle(l SessionLifecycle) { h.lifecycle = l }

// SetSecurityLogger wires the security event log.
func (h *Handler) SetSecurityLogger(l SecurityLogger) { h.security = l }

// LoginForm renders the login page (GET /login). ?reason=inactivity and
// ?reason=signed_out explain why the visitor landed here.
func (h *Handler) LoginForm(c echo.Context) error {
	if h.hasValidSession(c) {
		return c.Redirect(http.StatusSeeOther, "/dashboard")
	}
	return middleware.Render(c, http.StatusOK, LoginPage(LoginFormData{
		Notice: loginNotice(c.QueryParam("reason")),
	}))
}

// Login processes the login form submission (POST /login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	ctx := c.Request().Context()
	token, user, err := h.service.Login(ctx, LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		IP:         c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		if !apperror.IsTransient(err) {
			h.logSecurity(c, EventLoginFailed, "", map[string]any{"email": normalizeEmail(req.Email)})
		}
		data := LoginFormData{Email: req.Email, RememberMe: req.RememberMe, Error: apperror.SafeMessage(err)}
		if middleware.IsHTMX(c) {
			return middleware.Render(c, http.StatusOK, LoginFormFragment(data))
		}
		return middleware.Render(c, http.StatusOK, LoginPage(data))
	}

	h.beginSession(c, token, user, req.RememberMe)
	h.logSecurity(c, EventLoginSuccess, user.ID, map[string]any{"remember_me": req.RememberMe})
	return middleware.HXRedirect(c, "/dashboard")
}

// RegisterForm renders the registration page (GET /register).
func (h *Handler) RegisterForm(c echo.Context) error {
	if h.hasValidSession(c) {
		return c.Redirect(http.StatusSeeOther, "/dashboard")
	}
	return middleware.Render(c, http.StatusOK, RegisterPage(&RegisterRequest{}, ""))
}

// Register processes the registration form submission (POST /register) and
// signs the new account in.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	renderErr := func(msg string) error {
		if middleware.IsHTMX(c) {
			return middleware.Render(c, http.StatusOK, RegisterFormFragment(&req, msg))
		}
		return middleware.Render(c, http.StatusOK, RegisterPage(&req, msg))
	}

	if msg := validateRegisterRequest(&req); msg != "" {
		return renderErr(msg)
	}

	ctx := c.Request().Context()
	user, err := h.service.Register(ctx, RegisterInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		return renderErr(apperror.SafeMessage(err))
	}
	h.logSecurity(c, EventRegister, user.ID, nil)

	token, user, err := h.service.Login(ctx, LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		IP:         c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		// Registration succeeded but auto-login failed -- send to login.
		slog.Warn("auto-login after registration failed", slog.Any("error", err))
		return middleware.HXRedirect(c, "/login")
	}

	h.beginSession(c, token, user, req.RememberMe)
	return middleware.HXRedirect(c, "/dashboard")
}

// Logout ends the session through the inactivity monitor (POST /logout).
// If the session store is unreachable the cookie is kept and the user gets
// a retryable notice; their session is untouched.
func (h *Handler) Logout(c echo.Context) error {
	token := GetSessionToken(c)
	if token == "" {
		ClearSessionCookie(c)
		return middleware.HXRedirect(c, "/login")
	}

	ctx := c.Request().Context()
	session, _ := h.service.ValidateSession(ctx, token)

	var err error
	if h.lifecycle != nil {
		err = h.lifecycle.EndSession(ctx, token)
	} else {
		err = h.service.DestroySession(ctx, token)
	}
	if err != nil {
		slog.Warn("logout failed", slog.Any("error", err))
		return err
	}

	ClearSessionCookie(c)
	clearRememberCookie(c)
	if session != nil {
		h.logSecurity(c, EventLogout, session.UserID, nil)
	}
	return middleware.HXRedirect(c, "/login?reason=signed_out")
}

// SettingsPage renders the account settings page (GET /settings).
func (h *Handler) SettingsPage(c echo.Context) error {
	return middleware.Render(c, http.StatusOK, SettingsPage("", ""))
}

// ChangePassword processes the password form (POST /settings/password).
// Every other session of the user is ended; the current one survives.
func (h *Handler) ChangePassword(c echo.Context) error {
	userID := GetUserID(c)
	if userID == "" {
		return apperror.NewMissingContext()
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	render := func(errMsg, okMsg string) error {
		if middleware.IsHTMX(c) {
			return middleware.Render(c, http.StatusOK, PasswordFormFragment(errMsg, okMsg))
		}
		return middleware.Render(c, http.StatusOK, SettingsPage(errMsg, okMsg))
	}

	if req.New != req.Confirm {
		return render("passwords do not match", "")
	}

	err := h.service.ChangePassword(c.Request().Context(), userID, req.Current, req.New, GetToken(c))
	if apperror.IsType(err, apperror.TypeInvalidCredentials) {
		return render("current password is incorrect", "")
	}
	if err != nil {
		return render(apperror.SafeMessage(err), "")
	}

	h.logSecurity(c, EventPasswordChanged, userID, nil)
	return render("", "Your password has been changed. Other devices have been signed out.")
}

// beginSession sets the cookies and starts inactivity monitoring.
func (h *Handler) beginSession(c echo.Context, token string, user *User, remember bool) {
	maxAge := 0
	if remember {
		maxAge = int(h.ttls.Extended / time.Second)
	}
	setSessionCookie(c, token, maxAge)
	if remember {
		setRememberCookie(c, maxAge)
	} else {
		clearRememberCookie(c)
	}
	if h.lifecycle != nil {
		h.lifecycle.SessionStarted(c, token, user, remember)
	}
}

func (h *Handler) hasValidSession(c echo.Context) bool {
	token := GetSessionToken(c)
	if token == "" {
		return false
	}
	_, err := h.service.ValidateSession(c.Request().Context(), token)
	return err == nil
}

func (h *Handler) logSecurity(c echo.Context, eventType, userID string, details map[string]any) {
	if h.security == nil {
		return
	}
	req := c.Request()
	if err := h.security.LogEvent(req.Context(), eventType, userID, userID, c.RealIP(), req.UserAgent(), details); err != nil {
		slog.Warn("failed to record security event",
			slog.String("type", eventType),
			slog.Any("error", err),
		)
	}
}

// loginNotice maps the ?reason= query parameter to a banner.
func loginNotice(reason string) string {
	switch reason {
	case "inactivity":
		return "You were logged out due to inactivity."
	case "signed_out":
		return "You have been signed out."
	case "revoked":
		return "Your session was ended. Please sign in again."
	default:
		return ""
	}
}

// --- Cookie helpers ---

// GetSessionToken reads the session token from the cookie.
func GetSessionToken(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// RememberRequested reports whether the browser carries the durable
// "remember me" flag.
func RememberRequested(c echo.Context) bool {
	cookie, err := c.Cookie(RememberCookieName)
	return err == nil && cookie.Value == "1"
}

// setSessionCookie sets the session cookie. maxAge 0 makes it a browser
// session cookie; remembered logins get the extended lifetime.
func setSessionCookie(c echo.Context, token string, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   middleware.IsSecureRequest(c.Request()),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// ClearSessionCookie removes the session cookie by setting MaxAge to -1.
// The activity plugin also uses it when a session ended by inactivity.
func ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func setRememberCookie(c echo.Context, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     RememberCookieName,
		Value:    "1",
		Path:     "/",
		HttpOnly: true,
		Secure:   middleware.IsSecureRequest(c.Request()),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func clearRememberCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:   RememberCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// --- Validation helpers ---

// validateRegisterRequest performs basic server-side validation on the
// registration form. Returns an error message or empty string.
func validateRegisterRequest(req *RegisterRequest) string {
	if req.Email == "" {
		return "email is required"
	}
	if len(req.DisplayName) < 2 {
		return "display name must be at least 2 characters"
	}
	if len(req.DisplayName) > 100 {
		return "display name must be at most 100 characters"
	}
	if msg := validatePassword(req.Password); msg != "" {
		return msg
	}
	if req.Confirm != req.Password {
		return "passwords do not match"
	}
	return ""
}
