package programs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

// mysqlRowIsReferenced is the MariaDB error number for a foreign key
// violation on delete.
const mysqlRowIsReferenced = 1451

// ProgramRepository defines the data access contract for programs.
type ProgramRepository interface {
	Create(ctx context.Context, p *Program) error
	FindByID(ctx context.Context, id string) (*Program, error)
	FindBySlug(ctx context.Context, slug string) (*Program, error)
	List(ctx context.Context, opts ListOptions, publishedOnly bool) ([]Program, int, error)
	Update(ctx context.Context, p *Program) error
	Delete(ctx context.Context, id string) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	CountEnrollments(ctx context.Context, programID string) (int, error)
	CountPublished(ctx context.Context) (int, error)
}

// programRepository implements ProgramRepository with MariaDB queries.
type programRepository struct {
	db *sql.DB
}

// NewProgramRepository creates a new repository backed by the given DB pool.
func NewProgramRepository(db *sql.DB) ProgramRepository {
	return &programRepository{db: db}
}

const programColumns = `id, slug, name, instrument, level, summary, description,
	duration_weeks, price_cents, capacity, is_published, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgram(row rowScanner) (*Program, error) {
	p := &Program{}
	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Instrument, &p.Level, &p.Summary, &p.Description,
		&p.DurationWeeks, &p.PriceCents, &p.Capacity, &p.IsPublished, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a new program row.
func (r *programRepository) Create(ctx context.Context, p *Program) error {
	query := `INSERT INTO programs (` + programColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Slug, p.Name, p.Instrument, p.Level, p.Summary, p.Description,
		p.DurationWeeks, p.PriceCents, p.Capacity, p.IsPublished, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting program: %w", err)
	}
	return nil
}

// FindByID retrieves a program by its UUID.
func (r *programRepository) FindByID(ctx context.Context, id string) (*Program, error) {
	p, err := scanProgram(r.db.QueryRowContext(ctx, `SELECT `+programColumns+` FROM programs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("program not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying program by id: %w", err)
	}
	return p, nil
}

// FindBySlug retrieves a program by its URL slug.
func (r *programRepository) FindBySlug(ctx context.Context, slug string) (*Program, error) {
	p, err := scanProgram(r.db.QueryRowContext(ctx, `SELECT `+programColumns+` FROM programs WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("program not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying program by slug: %w", err)
	}
	return p, nil
}

// List returns one page of programs matching opts plus the total count.
func (r *programRepository) List(ctx context.Context, opts ListOptions, publishedOnly bool) ([]Program, int, error) {
	var where []string
	var args []any
	if publishedOnly {
		where = append(where, "is_published = TRUE")
	}
	if opts.Instrument != "" {
		where = append(where, "instrument = ?")
		args = append(args, opts.Instrument)
	}
	if opts.Level != "" {
		where = append(where, "level = ?")
		args = append(args, opts.Level)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM programs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting programs: %w", err)
	}

	query := `SELECT ` + programColumns + ` FROM programs` + clause + ` ORDER BY instrument, name LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, opts.PerPage, opts.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var programs []Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning program row: %w", err)
		}
		programs = append(programs, *p)
	}
	return programs, total, rows.Err()
}

// Update saves every editable column of a program.
func (r *programRepository) Update(ctx context.Context, p *Program) error {
	query := `UPDATE programs SET slug = ?, name = ?, instrument = ?, level = ?, summary = ?,
	          description = ?, duration_weeks = ?, price_cents = ?, capacity = ?, is_published = ?,
	          updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		p.Slug, p.Name, p.Instrument, p.Level, p.Summary, p.Description,
		p.DurationWeeks, p.PriceCents, p.Capacity, p.IsPublished, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating program: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NewNotFound("program not found")
	}
	return nil
}

// Delete removes a program. Programs referenced by enrollments cannot be
// deleted; that surfaces as apperror.Conflict.
func (r *programRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM programs WHERE id = ?`, id)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlRowIsReferenced {
		return apperror.NewConflict("program has enrollments and cannot be deleted")
	}
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NewNotFound("program not found")
	}
	return nil
}

// SlugExists returns true if a program already uses slug.
func (r *programRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM programs WHERE slug = ?)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return exists, nil
}

// CountEnrollments returns how many enrollments of any status reference the
// program.
func (r *programRepository) CountEnrollments(ctx context.Context, programID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments WHERE program_id = ?`, programID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting enrollments: %w", err)
	}
	return n, nil
}

// CountPublished returns the number of published programs.
func (r *programRepository) CountPublished(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM programs WHERE is_published = TRUE`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return n, nil
}
