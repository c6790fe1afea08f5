package auth

import (
	"context"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/templates/pages"
)

// LoginFormData is what the login form needs to re-render.
type LoginFormData struct {
	Email      string
	RememberMe bool
	Error      string
	Notice     string
}

// LoginPage renders the full sign-in page.
func LoginPage(data LoginFormData) templ.Component {
	return pages.Layout("Sign in", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="auth-card"><h1>Sign in</h1>`)
		pages.Alert(h, "info", data.Notice)
		h.Component(ctx, LoginFormFragment(data))
		h.Raw(`<p>New to Crescendo? <a href="/register">Create an account</a></p></section>`)
	}))
}

// LoginFormFragment renders the login form alone, for HTMX swaps.
func LoginFormFragment(data LoginFormData) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<form id="login-form" method="post" action="/login" hx-post="/login" hx-target="this" hx-swap="outerHTML">`)
		pages.CSRFField(ctx, h)
		pages.Alert(h, "error", data.Error)
		h.Raw(`<label>Email<input type="email" name="email" required autocomplete="username"`).Attr("value", data.Email).Raw("></label>")
		h.Raw(`<label>Password<input type="password" name="password" required autocomplete="current-password"></label>`)
		h.Raw(`<label class="checkbox"><input type="checkbox" name="remember_me" value="true"`)
		if data.RememberMe {
			h.Raw(" checked")
		}
		h.Raw(`> Remember me for 7 days</label>`)
		h.Raw(`<button type="submit">Sign in</button></form>`)
	})
}

// RegisterPage renders the full registration page.
func RegisterPage(req *RegisterRequest, errMsg string) templ.Component {
	return pages.Layout("Create an account", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section class="auth-card"><h1>Create an account</h1>`)
		h.Component(ctx, RegisterFormFragment(req, errMsg))
		h.Raw(`<p>Already a student? <a href="/login">Sign in</a></p></section>`)
	}))
}

// RegisterFormFragment renders the registration form alone.
func RegisterFormFragment(req *RegisterRequest, errMsg string) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<form id="register-form" method="post" action="/register" hx-post="/register" hx-target="this" hx-swap="outerHTML">`)
		pages.CSRFField(ctx, h)
		pages.Alert(h, "error", errMsg)
		h.Raw(`<label>Name<input type="text" name="display_name" required maxlength="100"`).Attr("value", req.DisplayName).Raw("></label>")
		h.Raw(`<label>Email<input type="email" name="email" required autocomplete="username"`).Attr("value", req.Email).Raw("></label>")
		h.Raw(`<label>Password<input type="password" name="password" required minlength="8" autocomplete="new-password"></label>`)
		h.Raw(`<label>Confirm password<input type="password" name="confirm" required minlength="8" autocomplete="new-password"></label>`)
		h.Raw(`<label class="checkbox"><input type="checkbox" name="remember_me" value="true"`)
		if req.RememberMe {
			h.Raw(" checked")
		}
		h.Raw(`> Remember me for 7 days</label>`)
		h.Raw(`<button type="submit">Create account</button></form>`)
	})
}

// SettingsPage renders the account settings page.
func SettingsPage(errMsg, okMsg string) templ.Component {
	return pages.Layout("Settings", pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<section><h1>Account settings</h1><h2>Change password</h2>`)
		h.Component(ctx, PasswordFormFragment(errMsg, okMsg))
		h.Raw("</section>")
	}))
}

// PasswordFormFragment renders the change-password form.
func PasswordFormFragment(errMsg, okMsg string) templ.Component {
	return pages.View(func(ctx context.Context, h *pages.HTML) {
		h.Raw(`<form id="password-form" method="post" action="/settings/password" hx-post="/settings/password" hx-target="this" hx-swap="outerHTML">`)
		pages.CSRFField(ctx, h)
		pages.Alert(h, "error", errMsg)
		pages.Alert(h, "success", okMsg)
		h.Raw(`<label>Current password<input type="password" name="current_password" required autocomplete="current-password"></label>`)
		h.Raw(`<label>New password<input type="password" name="new_password" required minlength="8" autocomplete="new-password"></label>`)
		h.Raw(`<label>Confirm new password<input type="password" name="confirm" required minlength="8" autocomplete="new-password"></label>`)
		h.Raw(`<button type="submit">Change password</button></form>`)
	})
}
