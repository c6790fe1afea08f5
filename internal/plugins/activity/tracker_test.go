package activity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/inactivity"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fakeStore is an in-memory auth.AuthService holding sessions by token.
type fakeStore struct {
	mu         sync.Mutex
	sessions   map[string]*auth.Session
	destroyed  []string
	touched    map[string]time.Duration
	existsErr  error
	destroyErr error

	subscriber   func(auth.Change)
	unsubscribed bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*auth.Session),
		touched:  make(map[string]time.Duration),
	}
}

func (f *fakeStore) Register(ctx context.Context, input auth.RegisterInput) (*auth.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) Login(ctx context.Context, input auth.LoginInput) (string, *auth.User, error) {
	return "", nil, errors.New("not implemented")
}

func (f *fakeStore) ValidateSession(ctx context.Context, token string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStore) ChangePassword(ctx context.Context, userID, current, next, keepToken string) error {
	return nil
}

func (f *fakeStore) DestroySession(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyErr != nil {
		return f.destroyErr
	}
	f.destroyed = append(f.destroyed, token)
	delete(f.sessions, token)
	return nil
}

func (f *fakeStore) DestroyAllUserSessions(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (f *fakeStore) TouchSession(ctx context.Context, token string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[token] = ttl
	return nil
}

func (f *fakeStore) SessionExists(ctx context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.sessions[token]
	return ok, nil
}

func (f *fakeStore) ListAllSessions(ctx context.Context) ([]auth.SessionInfo, error) {
	return nil, nil
}

func (f *fakeStore) Subscribe(fn func(auth.Change)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriber = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed = true
	}, nil
}

func (f *fakeStore) publish(change auth.Change) {
	f.mu.Lock()
	fn := f.subscriber
	f.mu.Unlock()
	fn(change)
}

func (f *fakeStore) wasDestroyed(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.destroyed {
		if t == token {
			return true
		}
	}
	return false
}

// recordingSecurityLog records security event types.
type recordingSecurityLog struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingSecurityLog) LogEvent(ctx context.Context, eventType, userID, actorID, ip, userAgent string, details map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

// testEnv wires a registry on a virtual clock to the session routes.
type testEnv struct {
	sched   *inactivity.ManualScheduler
	store   *fakeStore
	reg     *inactivity.Registry
	tracker *Tracker
	e       *echo.Echo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sched := inactivity.NewManualScheduler(testStart)
	store := newFakeStore()
	cfg := inactivity.Config{
		StandardTimeout: 10 * time.Second,
		ExtendedTimeout: time.Minute,
		WarningLead:     3 * time.Second,
		Debounce:        time.Second,
	}
	reg := inactivity.NewRegistry(cfg, sched, inactivity.TerminatorFunc(store.DestroySession), time.Minute)
	tracker := NewTracker(reg, store)

	e := echo.New()
	RegisterRoutes(e, NewHandler(reg), tracker, reg, store)
	page := e.Group("/dashboard", RedirectEnded(reg, store), auth.RequireAuth(store), TrackActivity(tracker))
	page.GET("", func(c echo.Context) error { return c.String(http.StatusOK, "dashboard") })

	t.Cleanup(reg.Close)
	return &testEnv{sched: sched, store: store, reg: reg, tracker: tracker, e: e}
}

// login stores a session and opens its monitor the way the auth handler does.
func (env *testEnv) login(token, userID string, remember bool) {
	env.store.mu.Lock()
	env.store.sessions[token] = &auth.Session{UserID: userID, Name: "Clara", Remember: remember}
	env.store.mu.Unlock()
	env.tracker.SessionStarted(nil, token, &auth.User{ID: userID, DisplayName: "Clara"}, remember)
}

func (env *testEnv) request(method, path, token string, htmx bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "crescendo_session", Value: token})
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestTracker_SessionStartedOpensMonitorInMode(t *testing.T) {
	env := newTestEnv(t)
	env.login("tok-std", "u1", false)
	env.login("tok-ext", "u2", true)

	st, ok := env.reg.Status("tok-std")
	require.True(t, ok)
	assert.Equal(t, inactivity.ModeStandard, st.Mode)
	assert.Equal(t, testStart.Add(10*time.Second), st.LogoutAt)

	st, ok = env.reg.Status("tok-ext")
	require.True(t, ok)
	assert.Equal(t, inactivity.ModeExtended, st.Mode)
	assert.Equal(t, testStart.Add(time.Minute), st.LogoutAt)
}

func TestTracker_EndSessionLogsOutThroughMonitor(t *testing.T) {
	env := newTestEnv(t)
	env.login("tok", "u1", false)

	require.NoError(t, env.tracker.EndSession(context.Background(), "tok"))

	assert.True(t, env.store.wasDestroyed("tok"))
	reason, ok := env.reg.EndReason("tok")
	require.True(t, ok)
	assert.Equal(t, inactivity.EndLogout, reason)
	assert.Equal(t, 0, env.reg.Len())
}

func TestTracker_EndSessionWithoutMonitorDestroysDirectly(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.tracker.EndSession(context.Background(), "orphan"))
	assert.True(t, env.store.wasDestroyed("orphan"))
}

func TestTracker_EndSessionTransientFailureKeepsMonitor(t *testing.T) {
	env := newTestEnv(t)
	env.login("tok", "u1", false)
	env.store.destroyErr = apperror.NewTransient(errors.New("redis down"))

	err := env.tracker.EndSession(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, apperror.IsTransient(err))

	st, ok := env.reg.Status("tok")
	require.True(t, ok)
	assert.Equal(t, inactivity.StateActive, st.State)
}

func TestTracker_RevokesSessionsEndedElsewhere(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.tracker.Start())
	env.login("tok-a", "u1", false)
	env.login("tok-b", "u1", false)
	env.login("tok-c", "u2", false)

	env.store.publish(auth.Change{Kind: auth.ChangeLogout, UserID: "u1", Tokens: []string{"tok-a"}})
	reason, ok := env.reg.EndReason("tok-a")
	require.True(t, ok)
	assert.Equal(t, inactivity.EndRevoked, reason)

	env.store.publish(auth.Change{Kind: auth.ChangeRevoked, UserID: "u1"})
	_, ok = env.reg.Status("tok-b")
	assert.False(t, ok, "every session of the user should be revoked")
	_, ok = env.reg.Status("tok-c")
	assert.True(t, ok, "other users are unaffected")

	env.tracker.Stop()
	assert.True(t, env.store.unsubscribed)
}

func TestTracker_LoginChangeIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.tracker.Start())
	defer env.tracker.Stop()
	env.login("tok", "u1", false)

	env.store.publish(auth.Change{Kind: auth.ChangeLogin, UserID: "u1", Tokens: []string{"tok"}})

	_, ok := env.reg.Status("tok")
	assert.True(t, ok)
}

func TestTracker_RearmSlidesStoreTTL(t *testing.T) {
	env := newTestEnv(t)
	env.login("tok", "u1", true)

	env.sched.Advance(5 * time.Second)
	env.reg.RecordActivity("tok")
	env.sched.Advance(time.Second)

	env.store.mu.Lock()
	ttl := env.store.touched["tok"]
	env.store.mu.Unlock()
	assert.Equal(t, time.Minute, ttl)
}

func TestTracker_TimeoutIsRecordedAsSecurityEvent(t *testing.T) {
	env := newTestEnv(t)
	log := &recordingSecurityLog{}
	env.tracker.SetSecurityLogger(log)
	env.login("tok", "u1", false)

	env.sched.Advance(10 * time.Second)

	assert.True(t, env.store.wasDestroyed("tok"))
	assert.Equal(t, []string{EventSessionTimeout}, log.types)
}
