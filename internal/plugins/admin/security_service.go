package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// securityPerPage is the number of security events shown per page.
const securityPerPage = 50

// Actor identifies the administrator performing an action, for the log.
type Actor struct {
	ID        string
	IP        string
	UserAgent string
}

// SecurityService records the security log and performs account actions
// that end sessions. It satisfies auth.SecurityLogger.
type SecurityService interface {
	// LogEvent records a security event. Failures are logged and returned;
	// callers treat them as non-fatal.
	LogEvent(ctx context.Context, eventType, userID, actorID, ip, userAgent string, details map[string]any) error

	ListEvents(ctx context.Context, eventType string, page int) ([]SecurityEvent, int, error)
	GetStats(ctx context.Context) (*SecurityStats, error)

	// ActiveSessions lists live sessions, most recent login first, with the
	// device parsed from the user agent.
	ActiveSessions(ctx context.Context) ([]ActiveSession, error)

	ForceLogoutUser(ctx context.Context, actor Actor, userID string) (int, error)
	DisableUser(ctx context.Context, actor Actor, userID string) error
	EnableUser(ctx context.Context, actor Actor, userID string) error

	// ToggleAdmin grants or revokes administrator rights and ends the
	// target's sessions so the change applies at once. The last
	// administrator cannot be demoted, and nobody can change their own flag.
	ToggleAdmin(ctx context.Context, actor Actor, userID string) (bool, error)
}

type securityService struct {
	repo        SecurityEventRepository
	users       auth.UserRepository
	authService auth.AuthService
}

// NewSecurityService creates a new security service.
func NewSecurityService(repo SecurityEventRepository, users auth.UserRepository, authService auth.AuthService) SecurityService {
	return &securityService{repo: repo, users: users, authService: authService}
}

// LogEvent validates and persists a security event.
func (s *securityService) LogEvent(ctx context.Context, eventType, userID, actorID, ip, userAgent string, details map[string]any) error {
	if eventType == "" {
		return apperror.NewBadRequest("event type is required")
	}

	event := &SecurityEvent{
		EventType: eventType,
		UserID:    userID,
		ActorID:   actorID,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   details,
	}
	if err := s.repo.Log(ctx, event); err != nil {
		slog.Error("failed to log security event",
			slog.String("event_type", eventType),
			slog.String("ip", ip),
			slog.Any("error", err),
		)
		return apperror.NewTransient(fmt.Errorf("logging security event: %w", err))
	}
	return nil
}

// ListEvents returns one page of the log.
func (s *securityService) ListEvents(ctx context.Context, eventType string, page int) ([]SecurityEvent, int, error) {
	if page < 1 {
		page = 1
	}
	events, total, err := s.repo.List(ctx, eventType, securityPerPage, (page-1)*securityPerPage)
	if err != nil {
		return nil, 0, apperror.NewTransient(fmt.Errorf("listing security events: %w", err))
	}
	return events, total, nil
}

// GetStats returns the security counters.
func (s *securityService) GetStats(ctx context.Context) (*SecurityStats, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, apperror.NewTransient(fmt.Errorf("getting security stats: %w", err))
	}
	return stats, nil
}

// ActiveSessions lists live sessions from the session store.
func (s *securityService) ActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	infos, err := s.authService.ListAllSessions(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]ActiveSession, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, newActiveSession(info))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Session.CreatedAt.After(sessions[j].Session.CreatedAt)
	})
	return sessions, nil
}

// ForceLogoutUser ends every session of a user.
func (s *securityService) ForceLogoutUser(ctx context.Context, actor Actor, userID string) (int, error) {
	if userID == "" {
		return 0, apperror.NewBadRequest("user ID is required")
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return 0, err
	}
	n, err := s.authService.DestroyAllUserSessions(ctx, userID)
	if err != nil {
		return n, err
	}
	s.record(ctx, actor, EventForceLogout, userID, map[string]any{"sessions_ended": n})
	return n, nil
}

// DisableUser blocks future logins and ends the user's sessions.
// Administrators must be demoted first.
func (s *securityService) DisableUser(ctx context.Context, actor Actor, userID string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsDisabled {
		return apperror.NewConflict("this account is already disabled")
	}
	if user.IsAdmin {
		return apperror.NewBadRequest("remove administrator rights before disabling this account")
	}

	if err := s.users.UpdateIsDisabled(ctx, userID, true); err != nil {
		return storeError(err, "disabling user")
	}
	n, err := s.authService.DestroyAllUserSessions(ctx, userID)
	if err != nil {
		// The flag still blocks new logins.
		slog.Warn("failed to end sessions of disabled user",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
	s.record(ctx, actor, EventUserDisabled, userID, map[string]any{"sessions_ended": n})
	return nil
}

// EnableUser lifts a previous DisableUser.
func (s *securityService) EnableUser(ctx context.Context, actor Actor, userID string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsDisabled {
		return apperror.NewConflict("this account is not disabled")
	}
	if err := s.users.UpdateIsDisabled(ctx, userID, false); err != nil {
		return storeError(err, "enabling user")
	}
	s.record(ctx, actor, EventUserEnabled, userID, nil)
	return nil
}

// ToggleAdmin flips the administrator flag and returns the new value.
func (s *securityService) ToggleAdmin(ctx context.Context, actor Actor, userID string) (bool, error) {
	if userID == actor.ID {
		return false, apperror.NewBadRequest("you cannot change your own administrator rights")
	}
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return false, err
	}

	granted := !user.IsAdmin
	if !granted {
		admins, err := s.users.CountAdmins(ctx)
		if err != nil {
			return false, storeError(err, "counting admins")
		}
		if admins <= 1 {
			return false, apperror.NewConflict("the school needs at least one administrator")
		}
	}

	if err := s.users.UpdateIsAdmin(ctx, userID, granted); err != nil {
		return false, storeError(err, "updating admin flag")
	}

	// Sessions carry IsAdmin; end them so the new rights apply at once.
	n, err := s.authService.DestroyAllUserSessions(ctx, userID)
	if err != nil {
		slog.Warn("failed to end sessions after admin change",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	slog.Info("admin flag changed",
		slog.String("user_id", userID),
		slog.Bool("is_admin", granted),
		slog.String("by", actor.ID),
		slog.Int("sessions_ended", n),
	)
	s.record(ctx, actor, EventAdminPrivilegeChanged, userID, map[string]any{"is_admin": granted})
	return granted, nil
}

func (s *securityService) findUser(ctx context.Context, userID string) (*auth.User, error) {
	if userID == "" {
		return nil, apperror.NewBadRequest("user ID is required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "finding user")
	}
	return user, nil
}

// record writes an admin action to the log. Failures were already logged
// by LogEvent.
func (s *securityService) record(ctx context.Context, actor Actor, eventType, userID string, details map[string]any) {
	_ = s.LogEvent(ctx, eventType, userID, actor.ID, actor.IP, actor.UserAgent, details)
}

func storeError(err error, action string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.NewTransient(fmt.Errorf("%s: %w", action, err))
}
