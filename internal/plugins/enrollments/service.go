package enrollments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/sanitize"
)

// maxNoteLength matches the note column.
const maxNoteLength = 500

// EnrollmentService defines the business logic contract for enrollments.
type EnrollmentService interface {
	// Request asks to join a published program. A closed earlier request
	// for the same program is reopened instead of duplicated.
	Request(ctx context.Context, userID string, req EnrollRequest) (*Enrollment, error)
	Withdraw(ctx context.Context, userID, id string) (*Enrollment, error)
	Approve(ctx context.Context, adminID, id, note string) (*Enrollment, error)
	Reject(ctx context.Context, adminID, id, note string) (*Enrollment, error)

	ListForUser(ctx context.Context, userID string) ([]Enrollment, error)
	Courses(ctx context.Context, userID string) ([]Enrollment, error)
	ListForAdmin(ctx context.Context, opts ListOptions) ([]Enrollment, int, error)
	CountsForUser(ctx context.Context, userID string) (StatusCounts, error)
	CountPending(ctx context.Context) (int, error)
}

// enrollmentService implements EnrollmentService.
type enrollmentService struct {
	repo     EnrollmentRepository
	programs ProgramFinder
	now      func() time.Time
}

// NewEnrollmentService creates a new enrollment service.
func NewEnrollmentService(repo EnrollmentRepository, programs ProgramFinder) EnrollmentService {
	return &enrollmentService{
		repo:     repo,
		programs: programs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Request creates or reopens the student's enrollment in a program.
func (s *enrollmentService) Request(ctx context.Context, userID string, req EnrollRequest) (*Enrollment, error) {
	note, err := cleanNote(req.Note)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ProgramID) == "" {
		return nil, apperror.NewValidation("choose a program")
	}

	program, err := s.programs.FindProgram(ctx, req.ProgramID)
	if err != nil {
		return nil, storeError(err, "finding program")
	}
	if !program.IsPublished {
		return nil, apperror.NewNotFound("program not found")
	}

	now := s.now()
	existing, err := s.repo.FindByUserAndProgram(ctx, userID, program.ID)
	switch {
	case err == nil:
		if !existing.Status.CanTransition(StatusPending) {
			return nil, apperror.NewConflict("you have already requested this program")
		}
		from := existing.Status
		existing.Status = StatusPending
		existing.Note = note
		existing.DecidedBy = nil
		existing.DecidedAt = nil
		existing.UpdatedAt = now
		if err := s.repo.UpdateStatus(ctx, existing, from); err != nil {
			return nil, storeError(err, "reopening enrollment")
		}
		slog.Info("enrollment reopened",
			slog.String("enrollment_id", existing.ID),
			slog.String("user_id", userID),
			slog.String("program_id", program.ID),
		)
		return existing, nil
	case !apperror.IsType(err, "not_found"):
		return nil, storeError(err, "finding enrollment")
	}

	e := &Enrollment{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProgramID:   program.ID,
		Status:      StatusPending,
		Note:        note,
		CreatedAt:   now,
		UpdatedAt:   now,
		ProgramName: program.Name,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, storeError(err, "creating enrollment")
	}

	slog.Info("enrollment requested",
		slog.String("enrollment_id", e.ID),
		slog.String("user_id", userID),
		slog.String("program_id", program.ID),
	)
	return e, nil
}

// Withdraw lets a student leave a pending or approved enrollment. Another
// student's enrollment is reported as not found.
func (s *enrollmentService) Withdraw(ctx context.Context, userID, id string) (*Enrollment, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "finding enrollment")
	}
	if e.UserID != userID {
		return nil, apperror.NewNotFound("enrollment not found")
	}
	if !e.Status.CanTransition(StatusWithdrawn) {
		return nil, apperror.NewConflict("this enrollment is already closed")
	}

	from := e.Status
	e.Status = StatusWithdrawn
	e.UpdatedAt = s.now()
	if err := s.repo.UpdateStatus(ctx, e, from); err != nil {
		return nil, storeError(err, "withdrawing enrollment")
	}

	slog.Info("enrollment withdrawn",
		slog.String("enrollment_id", e.ID),
		slog.String("user_id", userID),
	)
	return e, nil
}

// Approve accepts a pending request if the program has a free seat.
func (s *enrollmentService) Approve(ctx context.Context, adminID, id, note string) (*Enrollment, error) {
	e, err := s.decide(ctx, adminID, id, note, StatusApproved)
	if err != nil {
		return nil, err
	}

	program, err := s.programs.FindProgram(ctx, e.ProgramID)
	if err != nil {
		return nil, storeError(err, "finding program")
	}

	err = s.repo.Approve(ctx, e, program.Capacity)
	if errors.Is(err, errProgramFull) {
		return nil, apperror.NewConflict(fmt.Sprintf("%s is full", program.Name))
	}
	if err != nil {
		return nil, storeError(err, "approving enrollment")
	}
	e.Status = StatusApproved

	slog.Info("enrollment approved",
		slog.String("enrollment_id", e.ID),
		slog.String("admin_id", adminID),
	)
	return e, nil
}

// Reject declines a pending request.
func (s *enrollmentService) Reject(ctx context.Context, adminID, id, note string) (*Enrollment, error) {
	e, err := s.decide(ctx, adminID, id, note, StatusRejected)
	if err != nil {
		return nil, err
	}

	e.Status = StatusRejected
	if err := s.repo.UpdateStatus(ctx, e, StatusPending); err != nil {
		return nil, storeError(err, "rejecting enrollment")
	}

	slog.Info("enrollment rejected",
		slog.String("enrollment_id", e.ID),
		slog.String("admin_id", adminID),
	)
	return e, nil
}

// decide loads a request and stamps the decision fields, leaving the
// status for the caller to persist.
func (s *enrollmentService) decide(ctx context.Context, adminID, id, note string, next Status) (*Enrollment, error) {
	cleaned, err := cleanNote(note)
	if err != nil {
		return nil, err
	}

	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "finding enrollment")
	}
	if e.Status != StatusPending || !e.Status.CanTransition(next) {
		return nil, apperror.NewConflict("this request has already been decided")
	}

	now := s.now()
	if cleaned != "" {
		e.Note = cleaned
	}
	e.DecidedBy = &adminID
	e.DecidedAt = &now
	e.UpdatedAt = now
	return e, nil
}

// ListForUser returns every enrollment of a student.
func (s *enrollmentService) ListForUser(ctx context.Context, userID string) ([]Enrollment, error) {
	list, err := s.repo.ListByUser(ctx, userID, "")
	if err != nil {
		return nil, storeError(err, "listing enrollments")
	}
	return list, nil
}

// Courses returns the student's approved enrollments.
func (s *enrollmentService) Courses(ctx context.Context, userID string) ([]Enrollment, error) {
	list, err := s.repo.ListByUser(ctx, userID, StatusApproved)
	if err != nil {
		return nil, storeError(err, "listing courses")
	}
	return list, nil
}

// ListForAdmin returns one page of the review queue.
func (s *enrollmentService) ListForAdmin(ctx context.Context, opts ListOptions) ([]Enrollment, int, error) {
	list, total, err := s.repo.List(ctx, opts.normalized())
	if err != nil {
		return nil, 0, storeError(err, "listing enrollments")
	}
	return list, total, nil
}

// CountsForUser returns a student's enrollment counts per status.
func (s *enrollmentService) CountsForUser(ctx context.Context, userID string) (StatusCounts, error) {
	counts, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return StatusCounts{}, storeError(err, "counting enrollments")
	}
	return counts, nil
}

// CountPending returns the number of requests awaiting a decision.
func (s *enrollmentService) CountPending(ctx context.Context) (int, error) {
	counts, err := s.repo.CountAll(ctx)
	if err != nil {
		return 0, storeError(err, "counting enrollments")
	}
	return counts.Pending, nil
}

// cleanNote strips markup from a free-text note and enforces its length.
func cleanNote(note string) (string, error) {
	cleaned := strings.TrimSpace(sanitize.Text(note))
	if utf8.RuneCountInString(cleaned) > maxNoteLength {
		return "", apperror.NewValidation(fmt.Sprintf("note must be at most %d characters", maxNoteLength))
	}
	return cleaned, nil
}

// storeError passes application errors through and reports anything else
// as a transient infrastructure failure.
func storeError(err error, action string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.NewTransient(fmt.Errorf("%s: %w", action, err))
}
