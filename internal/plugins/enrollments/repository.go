package enrollments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

// mysqlDuplicateEntry is the MariaDB error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// errProgramFull is returned by Approve when the program has no free seats.
var errProgramFull = errors.New("program is full")

// EnrollmentRepository defines the data access contract for enrollments.
type EnrollmentRepository interface {
	Create(ctx context.Context, e *Enrollment) error
	FindByID(ctx context.Context, id string) (*Enrollment, error)
	FindByUserAndProgram(ctx context.Context, userID, programID string) (*Enrollment, error)
	ListByUser(ctx context.Context, userID string, status Status) ([]Enrollment, error)
	List(ctx context.Context, opts ListOptions) ([]Enrollment, int, error)

	// UpdateStatus saves the status, note and decision columns of e if the
	// stored row is still in status from.
	UpdateStatus(ctx context.Context, e *Enrollment, from Status) error

	// Approve saves e as approved if fewer than capacity enrollments of the
	// program are approved. Approvals of one program are serialized so two
	// administrators cannot overfill it. capacity 0 means unlimited.
	Approve(ctx context.Context, e *Enrollment, capacity int) error

	CountByUser(ctx context.Context, userID string) (StatusCounts, error)
	CountAll(ctx context.Context) (StatusCounts, error)
}

// enrollmentRepository implements EnrollmentRepository with MariaDB queries.
type enrollmentRepository struct {
	db *sql.DB
}

// NewEnrollmentRepository creates a new repository backed by the given DB pool.
func NewEnrollmentRepository(db *sql.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

const enrollmentSelect = `SELECT e.id, e.user_id, e.program_id, e.status, e.note, e.decided_by, e.decided_at,
	e.created_at, e.updated_at, p.name, p.slug, p.instrument, u.display_name, u.email
	FROM enrollments e
	INNER JOIN programs p ON p.id = e.program_id
	INNER JOIN users u ON u.id = e.user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (*Enrollment, error) {
	e := &Enrollment{}
	err := row.Scan(
		&e.ID, &e.UserID, &e.ProgramID, &e.Status, &e.Note, &e.DecidedBy, &e.DecidedAt,
		&e.CreatedAt, &e.UpdatedAt, &e.ProgramName, &e.ProgramSlug, &e.Instrument,
		&e.StudentName, &e.StudentEmail,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a new enrollment. A second request for the same program
// surfaces as apperror.Conflict.
func (r *enrollmentRepository) Create(ctx context.Context, e *Enrollment) error {
	query := `INSERT INTO enrollments (id, user_id, program_id, status, note, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, e.ID, e.UserID, e.ProgramID, e.Status, e.Note, e.CreatedAt, e.UpdatedAt)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return apperror.NewConflict("you have already requested this program")
	}
	if err != nil {
		return fmt.Errorf("inserting enrollment: %w", err)
	}
	return nil
}

// FindByID retrieves an enrollment with its program and student.
func (r *enrollmentRepository) FindByID(ctx context.Context, id string) (*Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, enrollmentSelect+` WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("enrollment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying enrollment: %w", err)
	}
	return e, nil
}

// FindByUserAndProgram retrieves a student's enrollment in a program.
func (r *enrollmentRepository) FindByUserAndProgram(ctx context.Context, userID, programID string) (*Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx,
		enrollmentSelect+` WHERE e.user_id = ? AND e.program_id = ?`, userID, programID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("enrollment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying enrollment: %w", err)
	}
	return e, nil
}

// ListByUser returns a student's enrollments, newest first. An empty status
// returns all of them.
func (r *enrollmentRepository) ListByUser(ctx context.Context, userID string, status Status) ([]Enrollment, error) {
	query := enrollmentSelect + ` WHERE e.user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND e.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY e.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// List returns one page of every student's enrollments, oldest first so
// the review queue is worked in order.
func (r *enrollmentRepository) List(ctx context.Context, opts ListOptions) ([]Enrollment, int, error) {
	where := ""
	var args []any
	if opts.Status != "" {
		where = ` WHERE e.status = ?`
		args = append(args, opts.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments e`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting enrollments: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, enrollmentSelect+where+` ORDER BY e.created_at ASC LIMIT ? OFFSET ?`,
		append(args, opts.PerPage, opts.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing enrollments: %w", err)
	}
	defer rows.Close()

	list, err := collect(rows)
	return list, total, err
}

func collect(rows *sql.Rows) ([]Enrollment, error) {
	var list []Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning enrollment row: %w", err)
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// UpdateStatus saves the status, note and decision columns. The row must
// still be in status from; a concurrent change is reported as a conflict.
func (r *enrollmentRepository) UpdateStatus(ctx context.Context, e *Enrollment, from Status) error {
	query := `UPDATE enrollments SET status = ?, note = ?, decided_by = ?, decided_at = ?, updated_at = ?
	          WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, query, e.Status, e.Note, e.DecidedBy, e.DecidedAt, e.UpdatedAt, e.ID, from)
	if err != nil {
		return fmt.Errorf("updating enrollment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NewConflict("this enrollment was changed by someone else")
	}
	return nil
}

// Approve locks the program row, counts its approved enrollments and saves
// e as approved within one transaction.
func (r *enrollmentRepository) Approve(ctx context.Context, e *Enrollment, capacity int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit.

	var locked string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM programs WHERE id = ? FOR UPDATE`, e.ProgramID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NewNotFound("program not found")
		}
		return fmt.Errorf("locking program: %w", err)
	}

	if capacity > 0 {
		var approved int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM enrollments WHERE program_id = ? AND status = ?`,
			e.ProgramID, StatusApproved).Scan(&approved)
		if err != nil {
			return fmt.Errorf("counting approved enrollments: %w", err)
		}
		if approved >= capacity {
			return errProgramFull
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET status = ?, note = ?, decided_by = ?, decided_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		StatusApproved, e.Note, e.DecidedBy, e.DecidedAt, e.UpdatedAt, e.ID, StatusPending)
	if err != nil {
		return fmt.Errorf("approving enrollment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NewConflict("this request has already been decided")
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing approval: %w", err)
	}
	return nil
}

// CountByUser returns a student's enrollment counts per status.
func (r *enrollmentRepository) CountByUser(ctx context.Context, userID string) (StatusCounts, error) {
	return r.count(ctx, ` WHERE user_id = ?`, userID)
}

// CountAll returns enrollment counts per status across the school.
func (r *enrollmentRepository) CountAll(ctx context.Context) (StatusCounts, error) {
	return r.count(ctx, "")
}

func (r *enrollmentRepository) count(ctx context.Context, where string, args ...any) (StatusCounts, error) {
	var counts StatusCounts
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM enrollments`+where+` GROUP BY status`, args...)
	if err != nil {
		return counts, fmt.Errorf("counting enrollments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("scanning enrollment count: %w", err)
		}
		counts.Add(status, n)
	}
	return counts, rows.Err()
}
