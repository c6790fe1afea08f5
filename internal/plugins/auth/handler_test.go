package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

// mockAuthService implements AuthService for handler tests.
type mockAuthService struct {
	loginFn           func(ctx context.Context, input LoginInput) (string, *User, error)
	registerFn        func(ctx context.Context, input RegisterInput) (*User, error)
	validateSessionFn func(ctx context.Context, token string) (*Session, error)
	destroySessionFn  func(ctx context.Context, token string) error
	changePasswordFn  func(ctx context.Context, userID, current, next, keepToken string) error
}

func (m *mockAuthService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, input)
	}
	return &User{ID: "user-1", Email: input.Email, DisplayName: input.DisplayName}, nil
}

func (m *mockAuthService) Login(ctx context.Context, input LoginInput) (string, *User, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, input)
	}
	return "token-1", &User{ID: "user-1", Email: input.Email}, nil
}

func (m *mockAuthService) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if m.validateSessionFn != nil {
		return m.validateSessionFn(ctx, token)
	}
	return nil, apperror.NewUnauthorized("session expired or invalid")
}

func (m *mockAuthService) ChangePassword(ctx context.Context, userID, current, next, keepToken string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, userID, current, next, keepToken)
	}
	return nil
}

func (m *mockAuthService) DestroySession(ctx context.Context, token string) error {
	if m.destroySessionFn != nil {
		return m.destroySessionFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) DestroyAllUserSessions(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (m *mockAuthService) TouchSession(ctx context.Context, token string, ttl time.Duration) error {
	return nil
}

func (m *mockAuthService) SessionExists(ctx context.Context, token string) (bool, error) {
	return true, nil
}

func (m *mockAuthService) ListAllSessions(ctx context.Context) ([]SessionInfo, error) {
	return nil, nil
}

func (m *mockAuthService) Subscribe(fn func(Change)) (func(), error) {
	return func() {}, nil
}

// fakeLifecycle records lifecycle calls.
type fakeLifecycle struct {
	started  []string
	remember bool
	endErr   error
	ended    []string
}

func (f *fakeLifecycle) SessionStarted(c echo.Context, token string, user *User, remember bool) {
	f.started = append(f.started, token)
	f.remember = remember
}

func (f *fakeLifecycle) EndSession(ctx context.Context, token string) error {
	if f.endErr != nil {
		return f.endErr
	}
	f.ended = append(f.ended, token)
	return nil
}

// fakeSecurityLog records security events.
type fakeSecurityLog struct{ types []string }

func (f *fakeSecurityLog) LogEvent(ctx context.Context, eventType, userID, actorID, ip, userAgent string, details map[string]any) error {
	f.types = append(f.types, eventType)
	return nil
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginForm_ExplainsInactivityLogout(t *testing.T) {
	e := echo.New()
	h := NewHandler(&mockAuthService{}, testTTLs)

	req := httptest.NewRequest(http.MethodGet, "/login?reason=inactivity", nil)
	rec := httptest.NewRecorder()
	if err := h.LoginForm(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "You were logged out due to inactivity.") {
		t.Error("expected the inactivity notice on the login page")
	}
}

func TestLogin_RememberMeStartsExtendedSession(t *testing.T) {
	e := echo.New()
	var got LoginInput
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, input LoginInput) (string, *User, error) {
			got = input
			return "token-1", &User{ID: "user-1"}, nil
		},
	}
	lc := &fakeLifecycle{}
	sec := &fakeSecurityLog{}
	h := NewHandler(svc, testTTLs)
	h.SetLifecycle(lc)
	h.SetSecurityLogger(sec)

	form := url.Values{"email": {"clara@example.com"}, "password": {"pw-12345678"}, "remember_me": {"true"}}
	rec := httptest.NewRecorder()
	if err := h.Login(e.NewContext(postForm("/login", form), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !got.RememberMe {
		t.Error("expected remember-me to reach the service")
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Errorf("expected redirect to /dashboard, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	session := findCookie(rec, sessionCookieName)
	if session == nil || session.Value != "token-1" || session.MaxAge != int(testTTLs.Extended/time.Second) {
		t.Errorf("unexpected session cookie: %+v", session)
	}
	if remember := findCookie(rec, RememberCookieName); remember == nil || remember.Value != "1" {
		t.Errorf("expected remember cookie, got %+v", remember)
	}
	if len(lc.started) != 1 || !lc.remember {
		t.Errorf("expected an extended session start, got %+v", lc)
	}
	if len(sec.types) != 1 || sec.types[0] != EventLoginSuccess {
		t.Errorf("expected login.success, got %v", sec.types)
	}
}

func TestLogin_StandardSessionUsesBrowserCookie(t *testing.T) {
	e := echo.New()
	h := NewHandler(&mockAuthService{}, testTTLs)

	form := url.Values{"email": {"clara@example.com"}, "password": {"pw-12345678"}}
	rec := httptest.NewRecorder()
	if err := h.Login(e.NewContext(postForm("/login", form), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session := findCookie(rec, sessionCookieName); session == nil || session.MaxAge != 0 {
		t.Errorf("standard login must set a browser-session cookie, got %+v", session)
	}
	if remember := findCookie(rec, RememberCookieName); remember == nil || remember.MaxAge != -1 {
		t.Errorf("standard login must clear the remember flag, got %+v", remember)
	}
}

func TestLogin_InvalidCredentialsRerendersForm(t *testing.T) {
	e := echo.New()
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, input LoginInput) (string, *User, error) {
			return "", nil, apperror.NewInvalidCredentials()
		},
	}
	lc := &fakeLifecycle{}
	sec := &fakeSecurityLog{}
	h := NewHandler(svc, testTTLs)
	h.SetLifecycle(lc)
	h.SetSecurityLogger(sec)

	form := url.Values{"email": {"clara@example.com"}, "password": {"nope"}}
	rec := httptest.NewRecorder()
	if err := h.Login(e.NewContext(postForm("/login", form), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "invalid email or password") {
		t.Error("expected inline credentials error")
	}
	if len(lc.started) != 0 || findCookie(rec, sessionCookieName) != nil {
		t.Error("failed login must not start a session")
	}
	if len(sec.types) != 1 || sec.types[0] != EventLoginFailed {
		t.Errorf("expected login.failed, got %v", sec.types)
	}
}

func TestLogout_Success(t *testing.T) {
	e := echo.New()
	lc := &fakeLifecycle{}
	h := NewHandler(&mockAuthService{}, testTTLs)
	h.SetLifecycle(lc)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "token-1"})
	rec := httptest.NewRecorder()
	if err := h.Logout(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lc.ended) != 1 || lc.ended[0] != "token-1" {
		t.Errorf("expected the monitor to end token-1, got %v", lc.ended)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?reason=signed_out" {
		t.Errorf("unexpected redirect %q", loc)
	}
	if c := findCookie(rec, sessionCookieName); c == nil || c.MaxAge != -1 {
		t.Error("expected the session cookie to be cleared")
	}
}

func TestLogout_TransientFailureKeepsSession(t *testing.T) {
	e := echo.New()
	lc := &fakeLifecycle{endErr: apperror.NewTransient(errors.New("redis down"))}
	h := NewHandler(&mockAuthService{}, testTTLs)
	h.SetLifecycle(lc)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "token-1"})
	rec := httptest.NewRecorder()
	err := h.Logout(e.NewContext(req, rec))
	assertAppError(t, err, http.StatusServiceUnavailable)
	if findCookie(rec, sessionCookieName) != nil {
		t.Error("the cookie must be kept so the user can retry")
	}
}

func TestLogout_WithoutLifecycleDestroysDirectly(t *testing.T) {
	e := echo.New()
	destroyed := ""
	svc := &mockAuthService{
		destroySessionFn: func(ctx context.Context, token string) error {
			destroyed = token
			return nil
		},
	}
	h := NewHandler(svc, testTTLs)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "token-1"})
	if err := h.Logout(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if destroyed != "token-1" {
		t.Errorf("expected direct destroy, got %q", destroyed)
	}
}

func TestRegister_AlreadyRegistered(t *testing.T) {
	e := echo.New()
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, input RegisterInput) (*User, error) {
			return nil, apperror.NewAlreadyRegistered()
		},
	}
	h := NewHandler(svc, testTTLs)

	form := url.Values{
		"email": {"clara@example.com"}, "display_name": {"Clara"},
		"password": {"pw-12345678"}, "confirm": {"pw-12345678"},
	}
	rec := httptest.NewRecorder()
	if err := h.Register(e.NewContext(postForm("/register", form), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "an account with that email already exists") {
		t.Error("expected inline already-registered message")
	}
}

func TestRegister_SignsIn(t *testing.T) {
	e := echo.New()
	lc := &fakeLifecycle{}
	h := NewHandler(&mockAuthService{}, testTTLs)
	h.SetLifecycle(lc)

	form := url.Values{
		"email": {"clara@example.com"}, "display_name": {"Clara"},
		"password": {"pw-12345678"}, "confirm": {"pw-12345678"},
	}
	rec := httptest.NewRecorder()
	if err := h.Register(e.NewContext(postForm("/register", form), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lc.started) != 1 || lc.remember {
		t.Errorf("expected a standard session start, got %+v", lc)
	}
}

func TestValidateRegisterRequest(t *testing.T) {
	valid := RegisterRequest{Email: "a@b.c", DisplayName: "Clara", Password: "pw-12345678", Confirm: "pw-12345678"}
	if msg := validateRegisterRequest(&valid); msg != "" {
		t.Errorf("expected valid, got %q", msg)
	}

	mismatch := valid
	mismatch.Confirm = "other-password"
	if msg := validateRegisterRequest(&mismatch); msg != "passwords do not match" {
		t.Errorf("got %q", msg)
	}

	short := valid
	short.DisplayName = "C"
	if msg := validateRegisterRequest(&short); msg == "" {
		t.Error("expected short display name to be rejected")
	}
}
