package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/keyxmakerx/crescendo/internal/apperror"
	"github.com/keyxmakerx/crescendo/internal/sanitize"
)

// phonePattern accepts digits with the usual separators and an optional
// leading plus.
var phonePattern = regexp.MustCompile(`^\+?[0-9 ()./-]{5,32}$`)

// ProfileService defines the business logic contract for profiles.
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	PutProfile(ctx context.Context, userID string, req ProfileRequest) (*Profile, error)
}

type profileService struct {
	repo ProfileRepository
	now  func() time.Time
}

// NewProfileService creates a new profile service.
func NewProfileService(repo ProfileRepository) ProfileService {
	return &profileService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// GetProfile returns the profile of a user.
func (s *profileService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, storeError(err, "loading profile")
	}
	return p, nil
}

// PutProfile validates and saves the whole profile form.
func (s *profileService) PutProfile(ctx context.Context, userID string, req ProfileRequest) (*Profile, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, storeError(err, "loading profile")
	}

	if err := apply(p, req); err != nil {
		return nil, err
	}
	now := s.now()
	p.UpdatedAt = &now

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, storeError(err, "saving profile")
	}

	slog.Info("profile updated", slog.String("user_id", userID))
	return p, nil
}

// apply validates req and copies it onto p.
func apply(p *Profile, req ProfileRequest) error {
	name := strings.TrimSpace(sanitize.Text(req.DisplayName))
	switch {
	case name == "":
		return apperror.NewValidation("display name is required")
	case utf8.RuneCountInString(name) > 100:
		return apperror.NewValidation("display name must be at most 100 characters")
	}

	phone := strings.TrimSpace(req.Phone)
	if phone != "" && !phonePattern.MatchString(phone) {
		return apperror.NewValidation("phone number is not valid")
	}

	instrument := strings.TrimSpace(sanitize.Text(req.Instrument))
	if utf8.RuneCountInString(instrument) > 64 {
		return apperror.NewValidation("instrument must be at most 64 characters")
	}

	level := SkillLevel(req.SkillLevel)
	if req.SkillLevel == "" {
		level = SkillBeginner
	}
	if !level.IsValid() {
		return apperror.NewValidation("unknown skill level")
	}

	bio := strings.TrimSpace(sanitize.Text(req.Bio))
	if utf8.RuneCountInString(bio) > 2000 {
		return apperror.NewValidation("bio must be at most 2000 characters")
	}

	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	// "Local" would resolve to the server's zone.
	if _, err := time.LoadLocation(tz); err != nil || tz == "Local" || len(tz) > 64 {
		return apperror.NewValidation("unknown timezone")
	}

	p.DisplayName = name
	p.Phone = phone
	p.Instrument = instrument
	p.SkillLevel = level
	p.Bio = bio
	p.Timezone = tz
	return nil
}

func storeError(err error, action string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.NewTransient(fmt.Errorf("%s: %w", action, err))
}
