// Package profiles stores the student details shown to the faculty: phone,
// main instrument, skill level, a short bio and the timezone lessons are
// scheduled in. The display name itself lives on the user account and is
// edited through the same form.
package profiles

import (
	"time"
)

// SkillLevel is a student's self-assessed level on their main instrument.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillProfessional SkillLevel = "professional"
)

// SkillLevels lists every level in display order.
var SkillLevels = []SkillLevel{SkillBeginner, SkillIntermediate, SkillAdvanced, SkillProfessional}

// IsValid returns true if l is a known level.
func (l SkillLevel) IsValid() bool {
	switch l {
	case SkillBeginner, SkillIntermediate, SkillAdvanced, SkillProfessional:
		return true
	}
	return false
}

// DisplayName returns a human-readable label for the level.
func (l SkillLevel) DisplayName() string {
	switch l {
	case SkillBeginner:
		return "Beginner"
	case SkillIntermediate:
		return "Intermediate"
	case SkillAdvanced:
		return "Advanced"
	case SkillProfessional:
		return "Professional"
	default:
		return string(l)
	}
}

// DefaultTimezone is used until the student picks one.
const DefaultTimezone = "UTC"

// Profile is a student's account name plus their profile row. A student
// who never saved the form has a Profile with defaults and a nil UpdatedAt.
type Profile struct {
	UserID      string     `json:"user_id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Phone       string     `json:"phone"`
	Instrument  string     `json:"instrument"`
	SkillLevel  SkillLevel `json:"skill_level"`
	Bio         string     `json:"bio"`
	Timezone    string     `json:"timezone"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Completeness returns the percentage of optional details the student has
// filled in.
func (p *Profile) Completeness() int {
	filled := 0
	for _, v := range []string{p.DisplayName, p.Phone, p.Instrument, p.Bio} {
		if v != "" {
			filled++
		}
	}
	if p.UpdatedAt != nil {
		filled++ // Level and timezone were confirmed.
	}
	return filled * 100 / 5
}

// ProfileRequest holds the data submitted by the profile form.
type ProfileRequest struct {
	DisplayName string `json:"display_name" form:"display_name"`
	Phone       string `json:"phone" form:"phone"`
	Instrument  string `json:"instrument" form:"instrument"`
	SkillLevel  string `json:"skill_level" form:"skill_level"`
	Bio         string `json:"bio" form:"bio"`
	Timezone    string `json:"timezone" form:"timezone"`
}

// RequestFor returns the form values of an existing profile.
func RequestFor(p *Profile) *ProfileRequest {
	return &ProfileRequest{
		DisplayName: p.DisplayName,
		Phone:       p.Phone,
		Instrument:  p.Instrument,
		SkillLevel:  string(p.SkillLevel),
		Bio:         p.Bio,
		Timezone:    p.Timezone,
	}
}
