package audit

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

// perPage is the number of entries shown per page in the activity feed.
const perPage = 50

// maxHistoryEntries caps the history returned for a single subject.
const maxHistoryEntries = 100

// AuditService handles business logic for the audit log.
type AuditService interface {
	Recorder

	// Log validates and persists an entry.
	Log(ctx context.Context, entry *AuditEntry) error

	// Activity returns a page of the feed, optionally for one subject type.
	// Pages are 1-indexed; invalid pages are clamped to 1.
	Activity(ctx context.Context, subjectType string, page int) ([]AuditEntry, int, error)

	History(ctx context.Context, subjectID string) ([]AuditEntry, error)
	Stats(ctx context.Context) (*Stats, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// Log validates and persists an entry. The subject type is taken from the
// action when missing.
func (s *auditService) Log(ctx context.Context, entry *AuditEntry) error {
	if entry.Action == "" {
		return apperror.NewBadRequest("action is required for audit entry")
	}
	if entry.SubjectID == "" {
		return apperror.NewBadRequest("subject ID is required for audit entry")
	}
	if entry.SubjectType == "" {
		entry.SubjectType = SubjectOf(entry.Action)
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("action", entry.Action),
			slog.String("subject_id", entry.SubjectID),
			slog.Any("error", err),
		)
		return apperror.NewTransient(fmt.Errorf("writing audit entry: %w", err))
	}
	return nil
}

// Record logs a change on behalf of another plugin. Failures are already
// logged by Log and never reach the caller.
func (s *auditService) Record(ctx context.Context, actorID, action, subjectID, subjectName string, details map[string]any) {
	_ = s.Log(ctx, &AuditEntry{
		ActorID:     actorID,
		Action:      action,
		SubjectID:   subjectID,
		SubjectName: subjectName,
		Details:     details,
	})
}

// Activity returns one page of the feed.
func (s *auditService) Activity(ctx context.Context, subjectType string, page int) ([]AuditEntry, int, error) {
	if subjectType != "" && !slices.Contains(SubjectTypes, subjectType) {
		return nil, 0, apperror.NewBadRequest("unknown subject type")
	}
	if page < 1 {
		page = 1
	}

	entries, total, err := s.repo.List(ctx, subjectType, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, apperror.NewTransient(fmt.Errorf("listing activity: %w", err))
	}
	return entries, total, nil
}

// History returns the recent changes to one program or enrollment.
func (s *auditService) History(ctx context.Context, subjectID string) ([]AuditEntry, error) {
	if subjectID == "" {
		return nil, apperror.NewBadRequest("subject ID is required")
	}

	entries, err := s.repo.ListBySubject(ctx, subjectID, maxHistoryEntries)
	if err != nil {
		return nil, apperror.NewTransient(fmt.Errorf("listing history: %w", err))
	}
	return entries, nil
}

// Stats returns the feed summary.
func (s *auditService) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, apperror.NewTransient(fmt.Errorf("getting audit stats: %w", err))
	}
	return stats, nil
}
