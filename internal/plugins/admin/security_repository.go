package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keyxmakerx/crescendo/internal/plugins/activity"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// SecurityEventRepository defines the data access contract for the
// security log.
type SecurityEventRepository interface {
	Log(ctx context.Context, event *SecurityEvent) error

	// List returns one page of events, newest first. An empty eventType
	// lists every type.
	List(ctx context.Context, eventType string, limit, offset int) ([]SecurityEvent, int, error)

	GetStats(ctx context.Context) (*SecurityStats, error)
}

type securityEventRepository struct {
	db *sql.DB
}

// NewSecurityEventRepository creates a new repository backed by the given DB.
func NewSecurityEventRepository(db *sql.DB) SecurityEventRepository {
	return &securityEventRepository{db: db}
}

// Log inserts an event. Details are stored as JSON; empty user and actor
// IDs become NULL for the foreign keys.
func (r *securityEventRepository) Log(ctx context.Context, event *SecurityEvent) error {
	var details []byte
	if event.Details != nil {
		var err error
		if details, err = json.Marshal(event.Details); err != nil {
			return fmt.Errorf("marshaling event details: %w", err)
		}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO security_events (event_type, user_id, actor_id, ip_address, user_agent, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.EventType, nullable(event.UserID), nullable(event.ActorID),
		event.IPAddress, nullable(event.UserAgent), details, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}
	event.ID, _ = result.LastInsertId()
	return nil
}

// List returns events joined with the user and actor display names.
func (r *securityEventRepository) List(ctx context.Context, eventType string, limit, offset int) ([]SecurityEvent, int, error) {
	where := ""
	var args []any
	if eventType != "" {
		where = ` WHERE se.event_type = ?`
		args = append(args, eventType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_events se`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting security events: %w", err)
	}

	query := `SELECT se.id, se.event_type, COALESCE(se.user_id, ''), COALESCE(se.actor_id, ''),
	                 se.ip_address, COALESCE(se.user_agent, ''), se.details, se.created_at,
	                 COALESCE(u.display_name, ''), COALESCE(a.display_name, '')
	          FROM security_events se
	          LEFT JOIN users u ON u.id = se.user_id
	          LEFT JOIN users a ON a.id = se.actor_id` + where + `
	          ORDER BY se.created_at DESC, se.id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing security events: %w", err)
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var e SecurityEvent
		var details sql.NullString
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.UserID, &e.ActorID,
			&e.IPAddress, &e.UserAgent, &details, &e.CreatedAt,
			&e.UserName, &e.ActorName,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning security event: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// GetStats counts the last 24 hours of the log.
func (r *securityEventRepository) GetStats(ctx context.Context) (*SecurityStats, error) {
	stats := &SecurityStats{}
	const recent = ` AND created_at >= DATE_SUB(NOW(), INTERVAL 24 HOUR)`

	counters := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&stats.TotalEvents, `SELECT COUNT(*) FROM security_events`, nil},
		{&stats.FailedLogins24h, `SELECT COUNT(*) FROM security_events WHERE event_type = ?` + recent, []any{auth.EventLoginFailed}},
		{&stats.SuccessfulLogins24h, `SELECT COUNT(*) FROM security_events WHERE event_type = ?` + recent, []any{auth.EventLoginSuccess}},
		{&stats.Timeouts24h, `SELECT COUNT(*) FROM security_events WHERE event_type = ?` + recent, []any{activity.EventSessionTimeout}},
		{&stats.UniqueIPs24h, `SELECT COUNT(DISTINCT ip_address) FROM security_events WHERE ip_address != ''` + recent, nil},
		{&stats.DisabledUsers, `SELECT COUNT(*) FROM users WHERE is_disabled = TRUE`, nil},
	}
	for _, c := range counters {
		if err := r.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("computing security stats: %w", err)
		}
	}
	return stats, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
