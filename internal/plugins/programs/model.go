// Package programs manages the school's catalog of music programs: what is
// taught, at which level, for how long and how many students fit. Published
// programs are listed publicly; administrators create and edit them.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package programs

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Level is the skill level a program is aimed at.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
	LevelAll          Level = "all"
)

// Levels lists the valid levels in display order.
var Levels = []Level{LevelBeginner, LevelIntermediate, LevelAdvanced, LevelAll}

// IsValid returns true if l is one of the known levels.
func (l Level) IsValid() bool {
	for _, v := range Levels {
		if l == v {
			return true
		}
	}
	return false
}

// DisplayName returns a human-readable label for the level.
func (l Level) DisplayName() string {
	switch l {
	case LevelBeginner:
		return "Beginner"
	case LevelIntermediate:
		return "Intermediate"
	case LevelAdvanced:
		return "Advanced"
	case LevelAll:
		return "All levels"
	default:
		return string(l)
	}
}

// Program is a course of study offered by the school.
type Program struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Instrument    string    `json:"instrument"`
	Level         Level     `json:"level"`
	Summary       string    `json:"summary"`
	Description   *string   `json:"description,omitempty"` // Sanitized HTML.
	DurationWeeks int       `json:"duration_weeks"`
	PriceCents    int       `json:"price_cents"`
	Capacity      int       `json:"capacity"` // 0 means unlimited.
	IsPublished   bool      `json:"is_published"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PriceLabel formats the tuition for display.
func (p *Program) PriceLabel() string {
	if p.PriceCents == 0 {
		return "Free"
	}
	return fmt.Sprintf("$%d.%02d", p.PriceCents/100, p.PriceCents%100)
}

// HasCapacity reports whether n approved students still fit.
func (p *Program) HasCapacity(n int) bool {
	return p.Capacity == 0 || n < p.Capacity
}

// --- Request DTOs (bound from HTTP requests) ---

// ProgramRequest holds the data submitted by the program editor.
type ProgramRequest struct {
	Name          string `json:"name" form:"name"`
	Instrument    string `json:"instrument" form:"instrument"`
	Level         string `json:"level" form:"level"`
	Summary       string `json:"summary" form:"summary"`
	Description   string `json:"description" form:"description"`
	DurationWeeks int    `json:"duration_weeks" form:"duration_weeks"`
	PriceCents    int    `json:"price_cents" form:"price_cents"`
	Capacity      int    `json:"capacity" form:"capacity"`
	IsPublished   bool   `json:"is_published" form:"is_published"`
}

// --- Service Input DTOs ---

// ProgramInput is the input for creating or updating a program.
type ProgramInput struct {
	Name          string
	Instrument    string
	Level         Level
	Summary       string
	Description   string
	DurationWeeks int
	PriceCents    int
	Capacity      int
	IsPublished   bool
}

func (r ProgramRequest) input() ProgramInput {
	return ProgramInput{
		Name:          r.Name,
		Instrument:    r.Instrument,
		Level:         Level(r.Level),
		Summary:       r.Summary,
		Description:   r.Description,
		DurationWeeks: r.DurationWeeks,
		PriceCents:    r.PriceCents,
		Capacity:      r.Capacity,
		IsPublished:   r.IsPublished,
	}
}

// ListOptions holds filter and pagination parameters for catalog queries.
type ListOptions struct {
	Instrument string
	Level      Level
	Page       int
	PerPage    int
}

// DefaultListOptions returns the catalog's first page.
func DefaultListOptions() ListOptions {
	return ListOptions{Page: 1, PerPage: 24}
}

// Offset returns the row offset for the current page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PerPage
}

func (o ListOptions) normalized() ListOptions {
	if o.PerPage < 1 || o.PerPage > 100 {
		o.PerPage = 24
	}
	if o.Page < 1 {
		o.Page = 1
	}
	o.Instrument = strings.TrimSpace(o.Instrument)
	if !o.Level.IsValid() {
		o.Level = ""
	}
	return o
}

// cacheKey identifies a catalog page in the cache.
func (o ListOptions) cacheKey() string {
	return fmt.Sprintf("%s|%s|%d|%d", strings.ToLower(o.Instrument), o.Level, o.Page, o.PerPage)
}

// slugPattern matches one or more non-alphanumeric characters for replacement.
var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify creates a URL-safe slug from a program name.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "program"
	}
	return slug
}
