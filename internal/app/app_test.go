package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/config"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
	"github.com/keyxmakerx/crescendo/internal/templates/layouts"
)

func newTestApp() *App {
	return &App{Config: &config.Config{Env: "development"}, Echo: echo.New()}
}

func serveError(a *App, req *http.Request, err error) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.errorHandler(err, a.Echo.NewContext(req, rec))
	return rec
}

func TestErrorHandler_APIGetsJSON(t *testing.T) {
	a := newTestApp()
	rec := serveError(a, httptest.NewRequest(http.MethodGet, "/api/v1/programs/nope", nil),
		apperror.NewNotFound("program not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "program not found", body["message"])
}

func TestErrorHandler_TransientIs503(t *testing.T) {
	a := newTestApp()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)

	rec := serveError(a, req, apperror.NewTransient(errors.New("redis down")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), apperror.TypeTransient)
	assert.NotContains(t, rec.Body.String(), "redis down")
}

func TestErrorHandler_UnauthorizedRedirects(t *testing.T) {
	a := newTestApp()

	rec := serveError(a, httptest.NewRequest(http.MethodGet, "/courses", nil),
		apperror.NewUnauthorized("authentication required"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("HX-Request", "true")
	rec = serveError(a, req, apperror.NewUnauthorized("authentication required"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("HX-Redirect"))
}

func TestErrorHandler_HTMXErrorPageRetargetsBody(t *testing.T) {
	a := newTestApp()
	req := httptest.NewRequest(http.MethodPut, "/admin/users/u1/admin", nil)
	req.Header.Set("HX-Request", "true")

	rec := serveError(a, req, apperror.NewForbidden("administrator access required"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "body", rec.Header().Get("HX-Retarget"))
	assert.Contains(t, rec.Body.String(), "administrator access required")
}

func TestErrorHandler_EchoNotFound(t *testing.T) {
	a := newTestApp()
	rec := serveError(a, httptest.NewRequest(http.MethodGet, "/missing", nil), echo.ErrNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "404")
}

func TestMetricsAuth(t *testing.T) {
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "metrics") }
	run := func(mw echo.MiddlewareFunc, header string) int {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		if header != "" {
			req.Header.Set(echo.HeaderAuthorization, header)
		}
		rec := httptest.NewRecorder()
		_ = mw(ok)(echo.New().NewContext(req, rec))
		return rec.Code
	}

	withToken := metricsAuth("s3cret", false)
	assert.Equal(t, http.StatusOK, run(withToken, "Bearer s3cret"))
	assert.Equal(t, http.StatusUnauthorized, run(withToken, "Bearer wrong"))
	assert.Equal(t, http.StatusUnauthorized, run(withToken, "s3cret"))
	assert.Equal(t, http.StatusUnauthorized, run(withToken, ""))

	assert.Equal(t, http.StatusOK, run(metricsAuth("", true), ""))
	assert.Equal(t, http.StatusUnauthorized, run(metricsAuth("", false), ""))
}

func TestInjectLayout(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	c := echo.New().NewContext(req, httptest.NewRecorder())

	ctx := injectLayout(c, layouts.SetFlashSuccess(context.Background(), "Saved."))
	assert.False(t, layouts.IsAuthenticated(ctx))
	assert.Equal(t, "/dashboard", layouts.GetActivePath(ctx))
	assert.Equal(t, "Saved.", layouts.GetFlashSuccess(ctx))

	c.Set("auth_session", &auth.Session{UserID: "u1", Name: "Clara", IsAdmin: true, Remember: true})
	ctx = injectLayout(c, context.Background())
	assert.True(t, layouts.IsAuthenticated(ctx))
	assert.Equal(t, "Clara", layouts.GetUserName(ctx))
	assert.True(t, layouts.GetIsAdmin(ctx))
	assert.Equal(t, "extended", layouts.GetSessionMode(ctx))
}
