package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditRepository defines the data access contract for the audit log.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type AuditRepository interface {
	Log(ctx context.Context, entry *AuditEntry) error

	// List returns entries newest first, optionally limited to one subject
	// type, plus the total count for pagination.
	List(ctx context.Context, subjectType string, limit, offset int) ([]AuditEntry, int, error)

	// ListBySubject returns the most recent entries about one program or
	// enrollment.
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]AuditEntry, error)

	GetStats(ctx context.Context) (*Stats, error)
}

// auditRepository implements AuditRepository with MariaDB queries.
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new repository backed by the given DB pool.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Log inserts an entry. Nil details are stored as SQL NULL.
func (r *auditRepository) Log(ctx context.Context, entry *AuditEntry) error {
	var detailsJSON []byte
	if len(entry.Details) > 0 {
		var err error
		if detailsJSON, err = json.Marshal(entry.Details); err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var actor any
	if entry.ActorID != "" {
		actor = entry.ActorID
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (actor_id, action, subject_type, subject_id, subject_name, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		actor, entry.Action, entry.SubjectType, entry.SubjectID, entry.SubjectName, detailsJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit entry id: %w", err)
	}
	entry.ID = id
	return nil
}

const selectEntries = `SELECT a.id, COALESCE(a.actor_id, ''), a.action, a.subject_type,
                              a.subject_id, a.subject_name, a.details, a.created_at,
                              COALESCE(u.display_name, 'Former user')
                       FROM audit_log a
                       LEFT JOIN users u ON u.id = a.actor_id`

// List returns a page of the feed.
func (r *auditRepository) List(ctx context.Context, subjectType string, limit, offset int) ([]AuditEntry, int, error) {
	where, args := "", []any{}
	if subjectType != "" {
		where, args = " WHERE subject_type = ?", append(args, subjectType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	query := selectEntries + where + ` ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListBySubject returns the history of one subject.
func (r *auditRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		selectEntries+` WHERE a.subject_id = ? ORDER BY a.created_at DESC, a.id DESC LIMIT ?`,
		subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing subject history: %w", err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// GetStats computes the feed summary in one pass.
func (r *auditRepository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(created_at),
		        COUNT(DISTINCT CASE WHEN created_at >= DATE_SUB(NOW(), INTERVAL 30 DAY) THEN actor_id END)
		 FROM audit_log`,
	).Scan(&stats.TotalEntries, &last, &stats.ActiveActors)
	if err != nil {
		return nil, fmt.Errorf("querying audit stats: %w", err)
	}
	if last.Valid {
		stats.LastActivityAt = &last.Time
	}
	return stats, nil
}

// scanAuditRows scans rows of selectEntries.
func scanAuditRows(rows *sql.Rows) ([]AuditEntry, error) {
	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var detailsJSON sql.NullString
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action, &e.SubjectType,
			&e.SubjectID, &e.SubjectName, &detailsJSON, &e.CreatedAt,
			&e.ActorName,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				// A bad row must not break the feed.
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}
	return entries, nil
}
