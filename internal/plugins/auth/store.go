package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

// Redis key layout for sessions.
const (
	// sessionKeyPrefix + token holds the JSON-encoded Session.
	sessionKeyPrefix = "session:"

	// userSessionsPrefix + user ID is a set of that user's session tokens.
	userSessionsPrefix = "user_sessions:"

	// changesChannel carries JSON-encoded Change messages.
	changesChannel = "auth:changes"

	// tokenHintLen is how much of a token the admin console shows.
	tokenHintLen = 8
)

func userSessionsKey(userID string) string { return userSessionsPrefix + userID }

// createSession generates a random session token, stores the session data in
// Redis with the TTL of the chosen login mode, and returns the token.
func (s *authService) createSession(ctx context.Context, user *User, input LoginInput) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	session := Session{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.DisplayName,
		IsAdmin:   user.IsAdmin,
		Remember:  input.RememberMe,
		IP:        input.IP,
		UserAgent: input.UserAgent,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	ttl := s.ttls.For(input.RememberMe)
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+token, data, ttl)
	pipe.SAdd(ctx, userSessionsKey(user.ID), token)
	pipe.Expire(ctx, userSessionsKey(user.ID), s.ttls.Extended)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("storing session in Redis: %w", err)
	}

	s.publish(ctx, Change{Kind: ChangeLogin, UserID: user.ID, Tokens: []string{token}})
	return token, nil
}

// ValidateSession looks up a session token in Redis and returns the session
// data if it exists and hasn't expired.
func (s *authService) ValidateSession(ctx context.Context, token string) (*Session, error) {
	data, err := s.redis.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewTransient(fmt.Errorf("reading session from Redis: %w", err))
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling session: %w", err))
	}

	return &session, nil
}

// DestroySession removes a session from Redis, effectively logging the user
// out. The session is read and deleted atomically so concurrent calls
// publish at most one logout.
func (s *authService) DestroySession(ctx context.Context, token string) error {
	data, err := s.redis.GetDel(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return apperror.NewTransient(fmt.Errorf("deleting session from Redis: %w", err))
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		slog.Warn("destroyed unreadable session", slog.Any("error", err))
		return nil
	}

	if err := s.redis.SRem(ctx, userSessionsKey(session.UserID), token).Err(); err != nil {
		slog.Warn("failed to unindex session",
			slog.String("user_id", session.UserID),
			slog.Any("error", err),
		)
	}

	s.publish(ctx, Change{Kind: ChangeLogout, UserID: session.UserID, Tokens: []string{token}})
	return nil
}

// DestroyAllUserSessions ends every session of a user. Used when an admin
// forces a logout or disables the account.
func (s *authService) DestroyAllUserSessions(ctx context.Context, userID string) (int, error) {
	return s.destroyUserSessions(ctx, userID, "")
}

// destroyUserSessions ends every session of a user except keep.
func (s *authService) destroyUserSessions(ctx context.Context, userID, keep string) (int, error) {
	tokens, err := s.redis.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return 0, apperror.NewTransient(fmt.Errorf("listing user sessions: %w", err))
	}

	var ended []string
	for _, token := range tokens {
		if token == keep {
			continue
		}
		n, err := s.redis.Del(ctx, sessionKeyPrefix+token).Result()
		if err != nil {
			return len(ended), apperror.NewTransient(fmt.Errorf("deleting session: %w", err))
		}
		if err := s.redis.SRem(ctx, userSessionsKey(userID), token).Err(); err != nil {
			return len(ended), apperror.NewTransient(fmt.Errorf("unindexing session: %w", err))
		}
		// Tokens whose key already expired are only cleaned from the index.
		if n > 0 {
			ended = append(ended, token)
		}
	}

	if len(ended) > 0 {
		s.publish(ctx, Change{Kind: ChangeRevoked, UserID: userID, Tokens: ended})
	}
	return len(ended), nil
}

// TouchSession slides the Redis expiry of a session. Called whenever the
// inactivity monitor re-arms so the store outlives the monitor's deadline.
func (s *authService) TouchSession(ctx context.Context, token string, ttl time.Duration) error {
	ok, err := s.redis.Expire(ctx, sessionKeyPrefix+token, ttl).Result()
	if err != nil {
		return apperror.NewTransient(fmt.Errorf("refreshing session ttl: %w", err))
	}
	if !ok {
		return apperror.NewUnauthorized("session expired or invalid")
	}
	return nil
}

// SessionExists reports whether the session is still present in Redis.
func (s *authService) SessionExists(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Exists(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		return false, apperror.NewTransient(fmt.Errorf("checking session: %w", err))
	}
	return n > 0, nil
}

// ListAllSessions scans Redis for every live session.
func (s *authService) ListAllSessions(ctx context.Context) ([]SessionInfo, error) {
	var infos []SessionInfo
	iter := s.redis.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // Expired between SCAN and GET.
		}
		if err != nil {
			return nil, apperror.NewTransient(fmt.Errorf("reading session: %w", err))
		}
		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		ttl, _ := s.redis.TTL(ctx, key).Result()

		token := strings.TrimPrefix(key, sessionKeyPrefix)
		if len(token) > tokenHintLen {
			token = token[:tokenHintLen]
		}
		infos = append(infos, SessionInfo{TokenHint: token, Session: session, ExpiresIn: ttl})
	}
	if err := iter.Err(); err != nil {
		return nil, apperror.NewTransient(fmt.Errorf("scanning sessions: %w", err))
	}
	return infos, nil
}

// publish announces an auth change. Failures are logged; subscribers also
// reconcile periodically against the session keys.
func (s *authService) publish(ctx context.Context, change Change) {
	data, err := json.Marshal(change)
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, changesChannel, data).Err(); err != nil {
		slog.Warn("failed to publish auth change",
			slog.String("kind", string(change.Kind)),
			slog.String("user_id", change.UserID),
			slog.Any("error", err),
		)
	}
}

// Subscribe delivers auth changes from every server instance to fn on a
// dedicated goroutine until the returned function is called.
func (s *authService) Subscribe(fn func(Change)) (func(), error) {
	ctx := context.Background()
	ps := s.redis.Subscribe(ctx, changesChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, apperror.NewTransient(fmt.Errorf("subscribing to auth changes: %w", err))
	}

	ch := ps.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				slog.Warn("ignoring malformed auth change", slog.Any("error", err))
				continue
			}
			fn(change)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = ps.Close()
			<-done
		})
	}, nil
}
