package admin

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

	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

type countFunc func(ctx context.Context) (int, error)

func (f countFunc) CountPublished(ctx context.Context) (int, error) { return f(ctx) }
func (f countFunc) CountPending(ctx context.Context) (int, error)   { return f(ctx) }

func fixed(n int) countFunc {
	return func(context.Context) (int, error) { return n, nil }
}

func newAdminContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(method, target, nil), rec)
	c.Set("auth_user_id", "admin")
	return c, rec
}

func TestDashboard_Counters(t *testing.T) {
	svc, _, users, authSvc := newTestSecurityService(adminUser, studentUser, auth.User{ID: "s2"})
	authSvc.sessions = []auth.SessionInfo{{TokenHint: "aaaa"}}
	failing := countFunc(func(context.Context) (int, error) { return 0, errors.New("db down") })
	h := NewHandler(users, svc, fixed(4), failing)

	c, rec := newAdminContext(http.MethodGet, "/admin")
	c.Request().Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	require.NoError(t, h.Dashboard(c))

	var o Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, 2, o.Students)
	assert.Equal(t, 1, o.Admins)
	assert.Equal(t, 4, o.PublishedPrograms)
	assert.Equal(t, 0, o.PendingEnrollments, "failed counters show as zero")
	assert.Equal(t, 1, o.ActiveSessions)
}

func TestDisableUser_HTMXReturnsRow(t *testing.T) {
	svc, _, users, _ := newTestSecurityService(adminUser, studentUser)
	h := NewHandler(users, svc, fixed(0), fixed(0))

	c, rec := newAdminContext(http.MethodPut, "/admin/users/student/disable")
	c.Request().Header.Set("HX-Request", "true")
	c.SetParamNames("id")
	c.SetParamValues("student")
	require.NoError(t, h.DisableUser(c))

	body := rec.Body.String()
	assert.Contains(t, body, `id="user-student"`)
	assert.Contains(t, body, "Disabled")
	assert.Contains(t, body, "/admin/users/student/enable")
}

func TestUsers_NoActionsOnOwnRow(t *testing.T) {
	svc, _, users, _ := newTestSecurityService(adminUser)
	h := NewHandler(users, svc, fixed(0), fixed(0))

	c, rec := newAdminContext(http.MethodGet, "/admin/users")
	require.NoError(t, h.Users(c))
	assert.NotContains(t, rec.Body.String(), "/admin/users/admin/admin")
}

func TestSecurity_FiltersByType(t *testing.T) {
	svc, _, users, _ := newTestSecurityService(adminUser)
	ctx := context.Background()
	require.NoError(t, svc.LogEvent(ctx, "session.timeout", "u1", "", "", "", map[string]any{"mode": "standard"}))
	require.NoError(t, svc.LogEvent(ctx, auth.EventLoginSuccess, "u1", "u1", "", "", nil))
	h := NewHandler(users, svc, fixed(0), fixed(0))

	c, rec := newAdminContext(http.MethodGet, "/admin/security?type=session.timeout")
	c.Request().Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	require.NoError(t, h.Security(c))

	var resp struct {
		Events []SecurityEvent `json:"events"`
		Total  int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "session.timeout", resp.Events[0].EventType)
}
