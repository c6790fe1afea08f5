package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

// loginTestUser signs a user in and returns the session token.
func loginTestUser(t *testing.T, svc *authService, user *User, remember bool) string {
	t.Helper()
	token, err := svc.createSession(context.Background(), user, LoginInput{RememberMe: remember, IP: "203.0.113.5"})
	require.NoError(t, err)
	return token
}

func TestDestroySession_Idempotent(t *testing.T) {
	svc, mr := newTestAuthService(t, &mockUserRepo{})
	user := &User{ID: "user-1", Email: "clara@example.com", DisplayName: "Clara"}
	token := loginTestUser(t, svc, user, false)
	ctx := context.Background()

	require.NoError(t, svc.DestroySession(ctx, token))
	require.False(t, mr.Exists(sessionKeyPrefix+token))
	members, _ := mr.SMembers(userSessionsKey(user.ID))
	require.NotContains(t, members, token)

	// A second destroy of the same session is a no-op.
	require.NoError(t, svc.DestroySession(ctx, token))

	_, err := svc.ValidateSession(ctx, token)
	require.True(t, apperror.IsType(err, "unauthorized"), "got %v", err)
}

func TestValidateSession_StoreDownIsTransient(t *testing.T) {
	svc, mr := newTestAuthService(t, &mockUserRepo{})
	mr.Close()

	_, err := svc.ValidateSession(context.Background(), "whatever")
	require.True(t, apperror.IsTransient(err), "got %v", err)

	err = svc.DestroySession(context.Background(), "whatever")
	require.True(t, apperror.IsTransient(err), "got %v", err)
}

func TestDestroyAllUserSessions(t *testing.T) {
	svc, _ := newTestAuthService(t, &mockUserRepo{})
	clara := &User{ID: "user-1", Email: "clara@example.com"}
	robert := &User{ID: "user-2", Email: "robert@example.com"}
	a := loginTestUser(t, svc, clara, false)
	b := loginTestUser(t, svc, clara, true)
	c := loginTestUser(t, svc, robert, false)
	ctx := context.Background()

	n, err := svc.DestroyAllUserSessions(ctx, clara.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, token := range []string{a, b} {
		ok, err := svc.SessionExists(ctx, token)
		require.NoError(t, err)
		require.False(t, ok)
	}
	ok, err := svc.SessionExists(ctx, c)
	require.NoError(t, err)
	require.True(t, ok, "other users' sessions must survive")
}

func TestTouchSession(t *testing.T) {
	svc, mr := newTestAuthService(t, &mockUserRepo{})
	token := loginTestUser(t, svc, &User{ID: "user-1"}, false)

	mr.FastForward(20 * time.Minute)
	require.NoError(t, svc.TouchSession(context.Background(), token, 30*time.Minute))
	require.Equal(t, 30*time.Minute, mr.TTL(sessionKeyPrefix+token))

	mr.FastForward(31 * time.Minute)
	err := svc.TouchSession(context.Background(), token, 30*time.Minute)
	require.True(t, apperror.IsType(err, "unauthorized"), "got %v", err)
}

func TestListAllSessions(t *testing.T) {
	svc, _ := newTestAuthService(t, &mockUserRepo{})
	token := loginTestUser(t, svc, &User{ID: "user-1", Email: "clara@example.com"}, true)

	infos, err := svc.ListAllSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, token[:tokenHintLen], infos[0].TokenHint)
	require.Equal(t, "user-1", infos[0].Session.UserID)
	require.True(t, infos[0].Session.Remember)
	require.Equal(t, "203.0.113.5", infos[0].Session.IP)
}

func TestSubscribe_ReceivesChanges(t *testing.T) {
	svc, _ := newTestAuthService(t, &mockUserRepo{})

	changes := make(chan Change, 8)
	unsubscribe, err := svc.Subscribe(func(c Change) { changes <- c })
	require.NoError(t, err)
	defer unsubscribe()

	user := &User{ID: "user-1"}
	token := loginTestUser(t, svc, user, false)
	require.NoError(t, svc.DestroySession(context.Background(), token))

	want := []ChangeKind{ChangeLogin, ChangeLogout}
	for _, kind := range want {
		select {
		case c := <-changes:
			require.Equal(t, kind, c.Kind)
			require.Equal(t, user.ID, c.UserID)
			require.Equal(t, []string{token}, c.Tokens)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	svc, _ := newTestAuthService(t, &mockUserRepo{})

	changes := make(chan Change, 8)
	unsubscribe, err := svc.Subscribe(func(c Change) { changes <- c })
	require.NoError(t, err)
	unsubscribe()
	unsubscribe() // Safe to call twice.

	loginTestUser(t, svc, &User{ID: "user-1"}, false)
	select {
	case c := <-changes:
		t.Fatalf("unexpected change after unsubscribe: %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}
