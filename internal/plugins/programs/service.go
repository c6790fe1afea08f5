package programs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/sanitize"
)

// maxSlugAttempts caps slug deduplication iterations.
const maxSlugAttempts = 100

// ProgramService handles business logic for the program catalog.
type ProgramService interface {
	Create(ctx context.Context, input ProgramInput) (*Program, error)
	Update(ctx context.Context, id string, input ProgramInput) (*Program, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Program, error)

	// GetPublished returns a published program by slug. Unpublished
	// programs are reported as not found.
	GetPublished(ctx context.Context, slug string) (*Program, error)
	ListPublished(ctx context.Context, opts ListOptions) ([]Program, int, error)
	ListAll(ctx context.Context, opts ListOptions) ([]Program, int, error)
	CountPublished(ctx context.Context) (int, error)
}

// catalogPage is a cached page of the public catalog.
type catalogPage struct {
	programs []Program
	total    int
}

// programService implements ProgramService. Public catalog reads are served
// from an expiring LRU cache that every write purges.
type programService struct {
	repo   ProgramRepository
	bySlug *expirable.LRU[string, Program]
	pages  *expirable.LRU[string, catalogPage]
}

// NewProgramService creates a program service whose catalog cache holds up
// to cacheSize entries for ttl.
func NewProgramService(repo ProgramRepository, cacheSize int, ttl time.Duration) ProgramService {
	if cacheSize < 1 {
		cacheSize = 256
	}
	return &programService{
		repo:   repo,
		bySlug: expirable.NewLRU[string, Program](cacheSize, nil, ttl),
		pages:  expirable.NewLRU[string, catalogPage](cacheSize, nil, ttl),
	}
}

// Create validates and stores a new program.
func (s *programService) Create(ctx context.Context, input ProgramInput) (*Program, error) {
	p := &Program{}
	if err := applyInput(p, input); err != nil {
		return nil, err
	}

	slug, err := s.generateSlug(ctx, p.Name)
	if err != nil {
		return nil, apperror.NewTransient(fmt.Errorf("generating slug: %w", err))
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.Slug = slug
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperror.NewTransient(fmt.Errorf("creating program: %w", err))
	}
	s.purge()

	slog.Info("program created",
		slog.String("program_id", p.ID),
		slog.String("slug", p.Slug),
	)
	return p, nil
}

// Update edits a program. Renaming it regenerates the slug.
func (s *programService) Update(ctx context.Context, id string, input ProgramInput) (*Program, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName := p.Name
	if err := applyInput(p, input); err != nil {
		return nil, err
	}

	if p.Name != oldName {
		slug, err := s.generateSlug(ctx, p.Name)
		if err != nil {
			return nil, apperror.NewTransient(fmt.Errorf("generating slug: %w", err))
		}
		p.Slug = slug
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, p); err != nil {
		if apperror.IsType(err, "not_found") {
			return nil, err
		}
		return nil, apperror.NewTransient(fmt.Errorf("updating program: %w", err))
	}
	s.purge()

	slog.Info("program updated", slog.String("program_id", p.ID))
	return p, nil
}

// Delete removes a program nobody has enrolled in.
func (s *programService) Delete(ctx context.Context, id string) error {
	n, err := s.repo.CountEnrollments(ctx, id)
	if err != nil {
		return apperror.NewTransient(fmt.Errorf("checking enrollments: %w", err))
	}
	if n > 0 {
		return apperror.NewConflict("program has enrollments and cannot be deleted; unpublish it instead")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if apperror.IsType(err, "not_found") || apperror.IsType(err, "conflict") {
			return err
		}
		return apperror.NewTransient(fmt.Errorf("deleting program: %w", err))
	}
	s.purge()

	slog.Info("program deleted", slog.String("program_id", id))
	return nil
}

// GetByID retrieves a program regardless of its published state.
func (s *programService) GetByID(ctx context.Context, id string) (*Program, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if apperror.IsType(err, "not_found") {
			return nil, err
		}
		return nil, apperror.NewTransient(fmt.Errorf("finding program: %w", err))
	}
	return p, nil
}

func (s *programService) GetPublished(ctx context.Context, slug string) (*Program, error) {
	if p, ok := s.bySlug.Get(slug); ok {
		return &p, nil
	}

	p, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if apperror.IsType(err, "not_found") {
			return nil, err
		}
		return nil, apperror.NewTransient(fmt.Errorf("finding program: %w", err))
	}
	if !p.IsPublished {
		return nil, apperror.NewNotFound("program not found")
	}
	s.bySlug.Add(slug, *p)
	return p, nil
}

func (s *programService) ListPublished(ctx context.Context, opts ListOptions) ([]Program, int, error) {
	opts = opts.normalized()
	key := opts.cacheKey()
	if page, ok := s.pages.Get(key); ok {
		return page.programs, page.total, nil
	}

	programs, total, err := s.repo.List(ctx, opts, true)
	if err != nil {
		return nil, 0, apperror.NewTransient(fmt.Errorf("listing programs: %w", err))
	}
	s.pages.Add(key, catalogPage{programs: programs, total: total})
	return programs, total, nil
}

// ListAll returns published and draft programs. Admin only.
func (s *programService) ListAll(ctx context.Context, opts ListOptions) ([]Program, int, error) {
	programs, total, err := s.repo.List(ctx, opts.normalized(), false)
	if err != nil {
		return nil, 0, apperror.NewTransient(fmt.Errorf("listing programs: %w", err))
	}
	return programs, total, nil
}

func (s *programService) CountPublished(ctx context.Context) (int, error) {
	n, err := s.repo.CountPublished(ctx)
	if err != nil {
		return 0, apperror.NewTransient(fmt.Errorf("counting programs: %w", err))
	}
	return n, nil
}

// purge drops every cached catalog entry after a write.
func (s *programService) purge() {
	s.bySlug.Purge()
	s.pages.Purge()
}

// applyInput validates input and copies it onto p.
func applyInput(p *Program, input ProgramInput) error {
	name := sanitize.Text(input.Name)
	if name == "" {
		return apperror.NewValidation("program name is required")
	}
	if len(name) > 120 {
		return apperror.NewValidation("program name must be at most 120 characters")
	}
	instrument := sanitize.Text(input.Instrument)
	if instrument == "" {
		return apperror.NewValidation("instrument is required")
	}
	if len(instrument) > 64 {
		return apperror.NewValidation("instrument must be at most 64 characters")
	}
	level := input.Level
	if level == "" {
		level = LevelAll
	}
	if !level.IsValid() {
		return apperror.NewValidation("unknown level")
	}
	summary := sanitize.Text(input.Summary)
	if len(summary) > 500 {
		return apperror.NewValidation("summary must be at most 500 characters")
	}
	if input.DurationWeeks < 1 || input.DurationWeeks > 104 {
		return apperror.NewValidation("duration must be between 1 and 104 weeks")
	}
	if input.PriceCents < 0 {
		return apperror.NewValidation("price must not be negative")
	}
	if input.Capacity < 0 {
		return apperror.NewValidation("capacity must not be negative")
	}

	p.Name = name
	p.Instrument = instrument
	p.Level = level
	p.Summary = summary
	p.DurationWeeks = input.DurationWeeks
	p.PriceCents = input.PriceCents
	p.Capacity = input.Capacity
	p.IsPublished = input.IsPublished

	p.Description = nil
	if desc := strings.TrimSpace(sanitize.HTML(input.Description)); desc != "" {
		p.Description = &desc
	}
	return nil
}

// generateSlug creates a unique slug for a program. If the base slug is
// taken, appends -2, -3, etc. After maxSlugAttempts, falls back to a random
// suffix.
func (s *programService) generateSlug(ctx context.Context, name string) (string, error) {
	base := Slugify(name)
	slug := base

	for i := 2; i < maxSlugAttempts+2; i++ {
		exists, err := s.repo.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}

	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random slug suffix: %w", err)
	}
	return fmt.Sprintf("%s-%s", base, hex.EncodeToString(b)), nil
}
