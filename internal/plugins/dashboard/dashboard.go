// Package dashboard renders the student's start page: enrollment counts,
// current courses and how complete the profile is.
package dashboard

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/middleware"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
	"github.com/keyxmakerx/crescendo/internal/plugins/enrollments"
	"github.com/keyxmakerx/crescendo/internal/plugins/profiles"
)

// maxCourses caps the course cards on the dashboard.
const maxCourses = 6

// EnrollmentReader is the part of the enrollment service the dashboard
// reads.
type EnrollmentReader interface {
	CountsForUser(ctx context.Context, userID string) (enrollments.StatusCounts, error)
	Courses(ctx context.Context, userID string) ([]enrollments.Enrollment, error)
}

// ProfileReader is the part of the profile service the dashboard reads.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*profiles.Profile, error)
}

// Summary is the data behind the dashboard, also served as JSON.
type Summary struct {
	DisplayName         string                   `json:"display_name"`
	Counts              enrollments.StatusCounts `json:"counts"`
	Courses             []enrollments.Enrollment `json:"courses"`
	MoreCourses         int                      `json:"more_courses"`
	ProfileCompleteness int                      `json:"profile_completeness"`
}

// Handler serves the dashboard.
type Handler struct {
	enrollments EnrollmentReader
	profiles    ProfileReader
}

// NewHandler creates a new dashboard handler.
func NewHandler(enrollments EnrollmentReader, profiles ProfileReader) *Handler {
	return &Handler{enrollments: enrollments, profiles: profiles}
}

// RegisterRoutes adds the dashboard to the signed-in group.
func RegisterRoutes(member *echo.Group, h *Handler) {
	member.GET("/dashboard", h.Show)
	member.GET("/dashboard/summary", h.Summary)
}

// Show renders the dashboard page (GET /dashboard).
func (h *Handler) Show(c echo.Context) error {
	s, err := h.load(c)
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, Page(s))
}

// Summary returns the dashboard data as JSON (GET /dashboard/summary).
func (h *Handler) Summary(c echo.Context) error {
	s, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) load(c echo.Context) (*Summary, error) {
	ctx := c.Request().Context()
	userID := auth.GetUserID(c)

	counts, err := h.enrollments.CountsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	courses, err := h.enrollments.Courses(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := h.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		DisplayName:         profile.DisplayName,
		Counts:              counts,
		Courses:             courses,
		ProfileCompleteness: profile.Completeness(),
	}
	if len(s.Courses) > maxCourses {
		s.MoreCourses = len(s.Courses) - maxCourses
		s.Courses = s.Courses[:maxCourses]
	}
	if s.Courses == nil {
		s.Courses = []enrollments.Enrollment{}
	}
	return s, nil
}
