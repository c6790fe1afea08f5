package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/argon2"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// argon2id parameters tuned for a self-hosted application running on
// modest hardware. These follow OWASP recommendations for argon2id:
// memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
//
// Infrastructure failures (database or Redis unreachable) are reported as
// apperror TransientFailure so callers can offer a retry.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)
	Login(ctx context.Context, input LoginInput) (token string, user *User, err error)
	ValidateSession(ctx context.Context, token string) (*Session, error)
	ChangePassword(ctx context.Context, userID, current, next, keepToken string) error

	// DestroySession ends one session. Destroying a session that no longer
	// exists is not an error.
	DestroySession(ctx context.Context, token string) error
	DestroyAllUserSessions(ctx context.Context, userID string) (int, error)
	TouchSession(ctx context.Context, token string, ttl time.Duration) error
	SessionExists(ctx context.Context, token string) (bool, error)
	ListAllSessions(ctx context.Context) ([]SessionInfo, error)

	// Subscribe delivers every auth change until the returned function is
	// called.
	Subscribe(fn func(Change)) (unsubscribe func(), err error)
}

// authService implements AuthService with argon2id hashing and Redis sessions.
type authService struct {
	repo  UserRepository
	redis *redis.Client
	ttls  SessionTTLs
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo UserRepository, rdb *redis.Client, ttls SessionTTLs) AuthService {
	return &authService{
		repo:  repo,
		redis: rdb,
		ttls:  ttls,
	}
}

// Register creates a new user account. It validates uniqueness, hashes the
// password with argon2id, and persists the user. The very first account
// becomes the school's administrator.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	email := normalizeEmail(input.Email)

	// Check if email is already taken before doing expensive hashing.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewTransient(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewAlreadyRegistered()
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, apperror.NewTransient(fmt.Errorf("counting users: %w", err))
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		PasswordHash: hash,
		IsAdmin:      count == 0,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if apperror.IsType(err, apperror.TypeAlreadyRegistered) {
			return nil, err
		}
		return nil, apperror.NewTransient(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.Bool("is_admin", user.IsAdmin),
	)

	return user, nil
}

// Login authenticates a user by email and password. On success it creates a
// new session in Redis whose lifetime follows the remember-me choice and
// returns the session token for the cookie.
func (s *authService) Login(ctx context.Context, input LoginInput) (string, *User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		// Don't reveal whether the email exists.
		if isNotFound(err) {
			return "", nil, apperror.NewInvalidCredentials()
		}
		return "", nil, apperror.NewTransient(fmt.Errorf("finding user: %w", err))
	}

	if !verifyPassword(input.Password, user.PasswordHash) {
		return "", nil, apperror.NewInvalidCredentials()
	}

	if user.IsDisabled {
		return "", nil, apperror.NewForbidden("this account has been disabled")
	}

	token, err := s.createSession(ctx, user, input)
	if err != nil {
		return "", nil, apperror.NewTransient(fmt.Errorf("creating session: %w", err))
	}

	// Non-critical bookkeeping.
	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("remember_me", input.RememberMe),
	)

	return token, user, nil
}

// ChangePassword verifies the current password, stores the new hash, and
// ends every other session of the user. keepToken is the session making the
// change and survives.
func (s *authService) ChangePassword(ctx context.Context, userID, current, next, keepToken string) error {
	if msg := validatePassword(next); msg != "" {
		return apperror.NewValidation(msg)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return err
		}
		return apperror.NewTransient(fmt.Errorf("finding user: %w", err))
	}
	if !verifyPassword(current, user.PasswordHash) {
		return apperror.NewInvalidCredentials()
	}

	hash, err := hashPassword(next)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return apperror.NewTransient(fmt.Errorf("updating password: %w", err))
	}

	n, err := s.destroyUserSessions(ctx, userID, keepToken)
	if err != nil {
		return err
	}
	slog.Info("password changed",
		slog.String("user_id", userID),
		slog.Int("sessions_ended", n),
	)
	return nil
}

// --- Password Hashing (argon2id) ---

// hashPassword creates an argon2id hash of the given password. The output
// format is: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, b64Salt, b64Hash), nil
}

// verifyPassword checks a plaintext password against an argon2id hash string.
func verifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1
}

// --- Helpers ---

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isNotFound checks if an error is an apperror.NotFound type.
func isNotFound(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Type == "not_found"
}

// validatePassword enforces the password policy. Returns an error message
// or empty string.
func validatePassword(password string) string {
	if password == "" {
		return "password is required"
	}
	if len(password) < 8 {
		return "password must be at least 8 characters"
	}
	if len(password) > 128 {
		return "password must be at most 128 characters"
	}
	return ""
}
