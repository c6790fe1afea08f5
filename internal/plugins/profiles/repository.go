package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/crescendo/internal/apperror"
)

// ProfileRepository defines the data access contract for profiles.
type ProfileRepository interface {
	// Get returns the profile of a user, with defaults when the user never
	// saved one. Unknown users are apperror.NotFound.
	Get(ctx context.Context, userID string) (*Profile, error)

	// Save writes the display name and upserts the profile row atomically.
	Save(ctx context.Context, p *Profile) error
}

type profileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new repository backed by the given DB pool.
func NewProfileRepository(db *sql.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// Get joins the user account with the optional profile row.
func (r *profileRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `SELECT u.id, u.email, u.display_name,
	                 COALESCE(sp.phone, ''), COALESCE(sp.instrument, ''),
	                 COALESCE(sp.skill_level, 'beginner'), COALESCE(sp.bio, ''),
	                 COALESCE(sp.timezone, 'UTC'), sp.updated_at
	          FROM users u
	          LEFT JOIN student_profiles sp ON sp.user_id = u.id
	          WHERE u.id = ?`

	p := &Profile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Email, &p.DisplayName,
		&p.Phone, &p.Instrument, &p.SkillLevel, &p.Bio, &p.Timezone, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return p, nil
}

// Save updates users.display_name and upserts student_profiles in one
// transaction.
func (r *profileRepository) Save(ctx context.Context, p *Profile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit.

	// MariaDB reports 0 affected rows for an unchanged name, so existence is
	// left to the profile foreign key.
	if _, err := tx.ExecContext(ctx, `UPDATE users SET display_name = ? WHERE id = ?`, p.DisplayName, p.UserID); err != nil {
		return fmt.Errorf("updating display name: %w", err)
	}

	query := `INSERT INTO student_profiles (user_id, phone, instrument, skill_level, bio, timezone, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	              phone = VALUES(phone),
	              instrument = VALUES(instrument),
	              skill_level = VALUES(skill_level),
	              bio = VALUES(bio),
	              timezone = VALUES(timezone),
	              updated_at = VALUES(updated_at)`
	_, err = tx.ExecContext(ctx, query,
		p.UserID, p.Phone, p.Instrument, p.SkillLevel, nullIfEmpty(p.Bio), p.Timezone, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing profile: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
