// data.go provides typed context helpers for passing layout data from
// handlers/middleware to templ views. Only simple types are stored, so the
// layouts package never imports plugin types.
//
// Data flow: Handler/Middleware → Echo Context → LayoutInjector → Go Context → templ
package layouts

import "context"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey string

const (
	keyIsAuthenticated ctxKey = "layout_is_authenticated"
	keyUserID          ctxKey = "layout_user_id"
	keyUserName        ctxKey = "layout_user_name"
	keyUserEmail       ctxKey = "layout_user_email"
	keyIsAdmin         ctxKey = "layout_is_admin"
	keySessionMode     ctxKey = "layout_session_mode"
	keyCSRFToken       ctxKey = "layout_csrf_token"
	keyFlashSuccess    ctxKey = "layout_flash_success"
	keyFlashError      ctxKey = "layout_flash_error"
	keyActivePath      ctxKey = "layout_active_path"
)

// NavLink is one entry of the top navigation bar.
type NavLink struct {
	Label string
	URL   string
}

// NavLinks returns the navigation for the current viewer: public links for
// visitors, the student area once signed in, and the console for admins.
func NavLinks(ctx context.Context) []NavLink {
	links := []NavLink{{Label: "Programs", URL: "/programs"}}
	if !IsAuthenticated(ctx) {
		return append(links,
			NavLink{Label: "Sign in", URL: "/login"},
			NavLink{Label: "Register", URL: "/register"},
		)
	}
	links = append(links,
		NavLink{Label: "Dashboard", URL: "/dashboard"},
		NavLink{Label: "My courses", URL: "/courses"},
		NavLink{Label: "Enrollments", URL: "/enrollments"},
		NavLink{Label: "Profile", URL: "/profile"},
	)
	if GetIsAdmin(ctx) {
		links = append(links, NavLink{Label: "Admin", URL: "/admin"})
	}
	return links
}

// --- Setters (called by the layout injector in app/routes.go) ---

// SetIsAuthenticated marks whether the current request has a valid session.
func SetIsAuthenticated(ctx context.Context, authed bool) context.Context {
	return context.WithValue(ctx, keyIsAuthenticated, authed)
}

// SetUserID stores the authenticated user's ID in context.
func SetUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

// SetUserName stores the authenticated user's display name in context.
func SetUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyUserName, name)
}

// SetUserEmail stores the authenticated user's email in context.
func SetUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, keyUserEmail, email)
}

// SetIsAdmin stores whether the user is a school administrator.
func SetIsAdmin(ctx context.Context, isAdmin bool) context.Context {
	return context.WithValue(ctx, keyIsAdmin, isAdmin)
}

// SetSessionMode stores the login mode ("standard" or "extended").
func SetSessionMode(ctx context.Context, mode string) context.Context {
	return context.WithValue(ctx, keySessionMode, mode)
}

// SetCSRFToken stores the CSRF token for forms.
func SetCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyCSRFToken, token)
}

// SetFlashSuccess stores a success flash message for the current render.
func SetFlashSuccess(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, keyFlashSuccess, msg)
}

// SetFlashError stores an error flash message for the current render.
func SetFlashError(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, keyFlashError, msg)
}

// SetActivePath stores the current request path for nav highlighting.
func SetActivePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, keyActivePath, path)
}

// --- Getters (called by views) ---

// IsAuthenticated returns true if the current request has a valid session.
func IsAuthenticated(ctx context.Context) bool {
	authed, _ := ctx.Value(keyIsAuthenticated).(bool)
	return authed
}

// GetUserID returns the authenticated user's ID, or "".
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(keyUserID).(string)
	return id
}

// GetUserName returns the authenticated user's display name, or "".
func GetUserName(ctx context.Context) string {
	name, _ := ctx.Value(keyUserName).(string)
	return name
}

// GetUserEmail returns the authenticated user's email, or "".
func GetUserEmail(ctx context.Context) string {
	email, _ := ctx.Value(keyUserEmail).(string)
	return email
}

// GetIsAdmin returns true if the user is a school administrator.
func GetIsAdmin(ctx context.Context) bool {
	isAdmin, _ := ctx.Value(keyIsAdmin).(bool)
	return isAdmin
}

// GetSessionMode returns the login mode, or "".
func GetSessionMode(ctx context.Context) string {
	mode, _ := ctx.Value(keySessionMode).(string)
	return mode
}

// GetCSRFToken returns the CSRF token, or "".
func GetCSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(keyCSRFToken).(string)
	return token
}

// GetFlashSuccess returns a success flash message, or "".
func GetFlashSuccess(ctx context.Context) string {
	msg, _ := ctx.Value(keyFlashSuccess).(string)
	return msg
}

// GetFlashError returns an error flash message, or "".
func GetFlashError(ctx context.Context) string {
	msg, _ := ctx.Value(keyFlashError).(string)
	return msg
}

// GetActivePath returns the current request path for nav highlighting.
func GetActivePath(ctx context.Context) string {
	path, _ := ctx.Value(keyActivePath).(string)
	return path
}
