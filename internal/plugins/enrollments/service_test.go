package enrollments

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// memRepo implements EnrollmentRepository with a map.
type memRepo struct {
	rows      map[string]*Enrollment
	findErr   error
	approveFn func(e *Enrollment, capacity int) error
	// afterFind runs once FindByID has read a row, standing in for a
	// concurrent writer.
	afterFind func()
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]*Enrollment)}
}

func (m *memRepo) Create(ctx context.Context, e *Enrollment) error {
	for _, row := range m.rows {
		if row.UserID == e.UserID && row.ProgramID == e.ProgramID {
			return apperror.NewConflict("you have already requested this program")
		}
	}
	copied := *e
	m.rows[e.ID] = &copied
	return nil
}

func (m *memRepo) FindByID(ctx context.Context, id string) (*Enrollment, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	e, ok := m.rows[id]
	if !ok {
		return nil, apperror.NewNotFound("enrollment not found")
	}
	copied := *e
	if m.afterFind != nil {
		m.afterFind()
	}
	return &copied, nil
}

func (m *memRepo) FindByUserAndProgram(ctx context.Context, userID, programID string) (*Enrollment, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, e := range m.rows {
		if e.UserID == userID && e.ProgramID == programID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, apperror.NewNotFound("enrollment not found")
}

func (m *memRepo) ListByUser(ctx context.Context, userID string, status Status) ([]Enrollment, error) {
	var out []Enrollment
	for _, e := range m.rows {
		if e.UserID == userID && (status == "" || e.Status == status) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) List(ctx context.Context, opts ListOptions) ([]Enrollment, int, error) {
	var out []Enrollment
	for _, e := range m.rows {
		if opts.Status == "" || e.Status == opts.Status {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memRepo) UpdateStatus(ctx context.Context, e *Enrollment, from Status) error {
	row, ok := m.rows[e.ID]
	if !ok || row.Status != from {
		return apperror.NewConflict("this enrollment was changed by someone else")
	}
	copied := *e
	m.rows[e.ID] = &copied
	return nil
}

func (m *memRepo) Approve(ctx context.Context, e *Enrollment, capacity int) error {
	if m.approveFn != nil {
		return m.approveFn(e, capacity)
	}
	if capacity > 0 {
		approved := 0
		for _, row := range m.rows {
			if row.ProgramID == e.ProgramID && row.Status == StatusApproved {
				approved++
			}
		}
		if approved >= capacity {
			return errProgramFull
		}
	}
	copied := *e
	copied.Status = StatusApproved
	m.rows[e.ID] = &copied
	return nil
}

func (m *memRepo) CountByUser(ctx context.Context, userID string) (StatusCounts, error) {
	var c StatusCounts
	for _, e := range m.rows {
		if e.UserID == userID {
			c.Add(e.Status, 1)
		}
	}
	return c, nil
}

func (m *memRepo) CountAll(ctx context.Context) (StatusCounts, error) {
	var c StatusCounts
	for _, e := range m.rows {
		c.Add(e.Status, 1)
	}
	return c, nil
}

// mockFinder implements ProgramFinder from a fixed table.
type mockFinder struct {
	programs map[string]*ProgramInfo
	err      error
}

func (f *mockFinder) FindProgram(ctx context.Context, id string) (*ProgramInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.programs[id]
	if !ok {
		return nil, apperror.NewNotFound("program not found")
	}
	return p, nil
}

func newTestService() (*enrollmentService, *memRepo, *mockFinder) {
	repo := newMemRepo()
	finder := &mockFinder{programs: map[string]*ProgramInfo{
		"piano":  {ID: "piano", Name: "Piano Foundations", IsPublished: true},
		"violin": {ID: "violin", Name: "Violin Studio", Capacity: 1, IsPublished: true},
		"draft":  {ID: "draft", Name: "Unannounced", IsPublished: false},
	}}
	svc := NewEnrollmentService(repo, finder).(*enrollmentService)
	svc.now = func() time.Time { return testNow }
	return svc, repo, finder
}

func assertAppErrorType(t *testing.T, err error, want string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, want, appErr.Type)
}

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusApproved))
	assert.True(t, StatusApproved.CanTransition(StatusWithdrawn))
	assert.True(t, StatusRejected.CanTransition(StatusPending))
	assert.False(t, StatusApproved.CanTransition(StatusRejected))
	assert.False(t, StatusWithdrawn.CanTransition(StatusApproved))
}

func TestRequest_CreatesPending(t *testing.T) {
	svc, repo, _ := newTestService()

	e, err := svc.Request(context.Background(), "u1", EnrollRequest{ProgramID: "piano", Note: "  <b>Grade 3</b> done "})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, "Grade 3 done", e.Note)
	assert.Equal(t, testNow, e.CreatedAt)
	assert.Len(t, repo.rows, 1)
}

func TestRequest_UnpublishedProgramIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Request(context.Background(), "u1", EnrollRequest{ProgramID: "draft"})
	assertAppErrorType(t, err, "not_found")
}

func TestRequest_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Request(ctx, "u1", EnrollRequest{})
	assertAppErrorType(t, err, "validation_error")

	_, err = svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano", Note: strings.Repeat("a", maxNoteLength+1)})
	assertAppErrorType(t, err, "validation_error")
}

func TestRequest_DuplicateOpenRequestConflicts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)
	_, err = svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	assertAppErrorType(t, err, "conflict")
}

func TestRequest_ReopensWithdrawn(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, "u1", first.ID)
	require.NoError(t, err)

	again, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano", Note: "back again"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, StatusPending, repo.rows[first.ID].Status)
	assert.Equal(t, "back again", repo.rows[first.ID].Note)
	assert.Len(t, repo.rows, 1)
}

func TestRequest_StoreOutageIsTransient(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.findErr = errors.New("connection refused")

	_, err := svc.Request(context.Background(), "u1", EnrollRequest{ProgramID: "piano"})
	assert.True(t, apperror.IsTransient(err))
}

func TestWithdraw_OtherStudentIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, "u2", e.ID)
	assertAppErrorType(t, err, "not_found")
}

func TestWithdraw_ClosedConflicts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)
	_, err = svc.Reject(ctx, "admin", e.ID, "")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, "u1", e.ID)
	assertAppErrorType(t, err, "conflict")
}

func TestApprove_StampsDecision(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	e, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, "admin", e.ID, "Welcome!")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, repo.rows[e.ID].DecidedBy)
	assert.Equal(t, "admin", *repo.rows[e.ID].DecidedBy)
	assert.Equal(t, testNow, *repo.rows[e.ID].DecidedAt)
	assert.Equal(t, "Welcome!", repo.rows[e.ID].Note)

	courses, err := svc.Courses(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, courses, 1)
}

func TestApprove_FullProgramConflicts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	a, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "violin"})
	require.NoError(t, err)
	b, err := svc.Request(ctx, "u2", EnrollRequest{ProgramID: "violin"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, "admin", a.ID, "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, "admin", b.ID, "")
	assertAppErrorType(t, err, "conflict")
	assert.Contains(t, err.Error(), "Violin Studio is full")
}

func TestApprove_OnlyPending(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	e, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "admin", e.ID, "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, "admin", e.ID, "")
	assertAppErrorType(t, err, "conflict")
	_, err = svc.Reject(ctx, "admin", e.ID, "")
	assertAppErrorType(t, err, "conflict")
}

func TestReject_LosesRaceWithApproval(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	e, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)

	// Another admin approves between our read and our write.
	repo.afterFind = func() {
		repo.afterFind = nil
		repo.rows[e.ID].Status = StatusApproved
	}
	_, err = svc.Reject(ctx, "admin", e.ID, "")
	assertAppErrorType(t, err, "conflict")
	assert.Equal(t, StatusApproved, repo.rows[e.ID].Status)
}

func TestWithdraw_LosesRaceWithRejection(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	e, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)

	repo.afterFind = func() {
		repo.afterFind = nil
		repo.rows[e.ID].Status = StatusRejected
	}
	_, err = svc.Withdraw(ctx, "u1", e.ID)
	assertAppErrorType(t, err, "conflict")
	assert.Equal(t, StatusRejected, repo.rows[e.ID].Status)
}

func TestApprove_RepositoryFailureIsTransient(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	e, err := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	require.NoError(t, err)
	repo.approveFn = func(*Enrollment, int) error { return errors.New("deadlock") }

	_, err = svc.Approve(ctx, "admin", e.ID, "")
	assert.True(t, apperror.IsTransient(err))
}

func TestCounts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	a, _ := svc.Request(ctx, "u1", EnrollRequest{ProgramID: "piano"})
	_, _ = svc.Request(ctx, "u1", EnrollRequest{ProgramID: "violin"})
	_, _ = svc.Request(ctx, "u2", EnrollRequest{ProgramID: "piano"})
	_, err := svc.Approve(ctx, "admin", a.ID, "")
	require.NoError(t, err)

	counts, err := svc.CountsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Pending: 1, Approved: 1}, counts)
	assert.Equal(t, 2, counts.Total())

	pending, err := svc.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestListOptions_Normalized(t *testing.T) {
	opts := ListOptions{Status: "bogus", Page: -1, PerPage: 1000}.normalized()
	assert.Equal(t, ListOptions{Page: 1, PerPage: 50}, opts)
	assert.Equal(t, 50, ListOptions{Page: 2, PerPage: 50}.Offset())
}
