package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// --- Mocks ---

type mockEventRepo struct {
	logged []SecurityEvent
	logErr error
}

func (m *mockEventRepo) Log(ctx context.Context, event *SecurityEvent) error {
	if m.logErr != nil {
		return m.logErr
	}
	m.logged = append(m.logged, *event)
	return nil
}

func (m *mockEventRepo) List(ctx context.Context, eventType string, limit, offset int) ([]SecurityEvent, int, error) {
	var out []SecurityEvent
	for _, e := range m.logged {
		if eventType == "" || e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *mockEventRepo) GetStats(ctx context.Context) (*SecurityStats, error) {
	return &SecurityStats{TotalEvents: len(m.logged)}, nil
}

// mockUserRepo keeps users in a map.
type mockUserRepo struct {
	users map[string]*auth.User
}

func newMockUserRepo(users ...auth.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]*auth.User)}
	for i := range users {
		u := users[i]
		m.users[u.ID] = &u
	}
	return m
}

func (m *mockUserRepo) Create(ctx context.Context, user *auth.User) error { return nil }

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NewNotFound("user not found")
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) { return false, nil }
func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string) error        { return nil }
func (m *mockUserRepo) UpdatePassword(ctx context.Context, userID, hash string) error {
	return nil
}

func (m *mockUserRepo) ListUsers(ctx context.Context, offset, limit int) ([]auth.User, int, error) {
	var out []auth.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) UpdateIsAdmin(ctx context.Context, id string, isAdmin bool) error {
	m.users[id].IsAdmin = isAdmin
	return nil
}

func (m *mockUserRepo) UpdateIsDisabled(ctx context.Context, id string, isDisabled bool) error {
	m.users[id].IsDisabled = isDisabled
	return nil
}

func (m *mockUserRepo) CountUsers(ctx context.Context) (int, error) { return len(m.users), nil }

func (m *mockUserRepo) CountAdmins(ctx context.Context) (int, error) {
	n := 0
	for _, u := range m.users {
		if u.IsAdmin {
			n++
		}
	}
	return n, nil
}

// mockAuthService records session destruction.
type mockAuthService struct {
	auth.AuthService // Unused methods panic.

	sessions   []auth.SessionInfo
	ended      map[string]int
	destroyErr error
}

func (m *mockAuthService) DestroyAllUserSessions(ctx context.Context, userID string) (int, error) {
	if m.destroyErr != nil {
		return 0, m.destroyErr
	}
	if m.ended == nil {
		m.ended = make(map[string]int)
	}
	m.ended[userID]++
	return 2, nil
}

func (m *mockAuthService) ListAllSessions(ctx context.Context) ([]auth.SessionInfo, error) {
	return m.sessions, nil
}

var (
	adminUser   = auth.User{ID: "admin", DisplayName: "Nadia", IsAdmin: true}
	studentUser = auth.User{ID: "student", DisplayName: "Clara"}
	actor       = Actor{ID: "admin", IP: "203.0.113.9", UserAgent: "test"}
)

func newTestSecurityService(users ...auth.User) (SecurityService, *mockEventRepo, *mockUserRepo, *mockAuthService) {
	events := &mockEventRepo{}
	repo := newMockUserRepo(users...)
	authSvc := &mockAuthService{}
	return NewSecurityService(events, repo, authSvc), events, repo, authSvc
}

// --- Tests ---

func TestLogEvent_RequiresType(t *testing.T) {
	svc, _, _, _ := newTestSecurityService()
	err := svc.LogEvent(context.Background(), "", "", "", "", "", nil)
	assert.True(t, apperror.IsType(err, "bad_request"))
}

func TestLogEvent_StoreFailureIsTransient(t *testing.T) {
	svc, events, _, _ := newTestSecurityService()
	events.logErr = errors.New("disk full")
	err := svc.LogEvent(context.Background(), auth.EventLoginSuccess, "u1", "u1", "", "", nil)
	assert.True(t, apperror.IsTransient(err))
}

func TestDisableUser_EndsSessionsAndLogs(t *testing.T) {
	svc, events, repo, authSvc := newTestSecurityService(adminUser, studentUser)

	require.NoError(t, svc.DisableUser(context.Background(), actor, "student"))
	assert.True(t, repo.users["student"].IsDisabled)
	assert.Equal(t, 1, authSvc.ended["student"])
	require.Len(t, events.logged, 1)
	assert.Equal(t, EventUserDisabled, events.logged[0].EventType)
	assert.Equal(t, "admin", events.logged[0].ActorID)
	assert.Equal(t, "203.0.113.9", events.logged[0].IPAddress)

	err := svc.DisableUser(context.Background(), actor, "student")
	assert.True(t, apperror.IsType(err, "conflict"))
}

func TestDisableUser_RefusesAdmins(t *testing.T) {
	svc, _, repo, _ := newTestSecurityService(adminUser, auth.User{ID: "other-admin", IsAdmin: true})
	err := svc.DisableUser(context.Background(), actor, "other-admin")
	assert.True(t, apperror.IsType(err, "bad_request"))
	assert.False(t, repo.users["other-admin"].IsDisabled)
}

func TestDisableUser_SessionStoreOutageStillDisables(t *testing.T) {
	svc, _, repo, authSvc := newTestSecurityService(adminUser, studentUser)
	authSvc.destroyErr = apperror.NewTransient(errors.New("redis down"))

	require.NoError(t, svc.DisableUser(context.Background(), actor, "student"))
	assert.True(t, repo.users["student"].IsDisabled)
}

func TestEnableUser(t *testing.T) {
	disabled := studentUser
	disabled.IsDisabled = true
	svc, events, repo, _ := newTestSecurityService(adminUser, disabled)

	require.NoError(t, svc.EnableUser(context.Background(), actor, "student"))
	assert.False(t, repo.users["student"].IsDisabled)
	assert.Equal(t, EventUserEnabled, events.logged[0].EventType)

	err := svc.EnableUser(context.Background(), actor, "student")
	assert.True(t, apperror.IsType(err, "conflict"))
}

func TestToggleAdmin(t *testing.T) {
	svc, events, repo, authSvc := newTestSecurityService(adminUser, studentUser)
	ctx := context.Background()

	granted, err := svc.ToggleAdmin(ctx, actor, "student")
	require.NoError(t, err)
	assert.True(t, granted)
	assert.True(t, repo.users["student"].IsAdmin)
	assert.Equal(t, 1, authSvc.ended["student"], "sessions must be re-issued with the new rights")
	assert.Equal(t, true, events.logged[0].Details["is_admin"])

	granted, err = svc.ToggleAdmin(ctx, actor, "student")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestToggleAdmin_ProtectsLastAdminAndSelf(t *testing.T) {
	svc, _, _, _ := newTestSecurityService(adminUser, studentUser)
	ctx := context.Background()

	_, err := svc.ToggleAdmin(ctx, actor, "admin")
	assert.True(t, apperror.IsType(err, "bad_request"))

	other := Actor{ID: "student"}
	_, err = svc.ToggleAdmin(ctx, other, "admin")
	assert.True(t, apperror.IsType(err, "conflict"))
}

func TestForceLogoutUser(t *testing.T) {
	svc, events, _, authSvc := newTestSecurityService(adminUser, studentUser)

	n, err := svc.ForceLogoutUser(context.Background(), actor, "student")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, authSvc.ended["student"])
	assert.Equal(t, EventForceLogout, events.logged[0].EventType)

	_, err = svc.ForceLogoutUser(context.Background(), actor, "ghost")
	assert.True(t, apperror.IsType(err, "not_found"))
}

func TestActiveSessions_NewestFirstWithDevice(t *testing.T) {
	svc, _, _, authSvc := newTestSecurityService()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	authSvc.sessions = []auth.SessionInfo{
		{TokenHint: "aaaa", Session: auth.Session{UserID: "u1", CreatedAt: base}},
		{TokenHint: "bbbb", Session: auth.Session{UserID: "u2", CreatedAt: base.Add(time.Hour), UserAgent: firefoxMac}},
	}

	sessions, err := svc.ActiveSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "bbbb", sessions[0].TokenHint)
	assert.Equal(t, "Firefox 124", sessions[0].Browser)
	assert.Equal(t, "Unknown device", sessions[1].Device)
}
