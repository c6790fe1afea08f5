// Package enrollments tracks students' requests to join programs and the
// faculty decisions on them. A request starts pending; an administrator
// approves or rejects it, and the student may withdraw at any time before
// the program ends. Approved enrollments are the student's courses.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package enrollments

import (
	"context"
	"time"
)

// Status is the state of an enrollment request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusWithdrawn}

// IsValid returns true if s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// DisplayName returns a human-readable label for the status.
func (s Status) DisplayName() string {
	switch s {
	case StatusPending:
		return "Pending review"
	case StatusApproved:
		return "Enrolled"
	case StatusRejected:
		return "Not accepted"
	case StatusWithdrawn:
		return "Withdrawn"
	default:
		return string(s)
	}
}

// CanTransition reports whether an enrollment may move from s to next.
// Closed requests (rejected, withdrawn) are reopened as pending by a new
// request from the student.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected || next == StatusWithdrawn
	case StatusApproved:
		return next == StatusWithdrawn
	case StatusRejected, StatusWithdrawn:
		return next == StatusPending
	}
	return false
}

// Enrollment is one student's request to join one program.
type Enrollment struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ProgramID string     `json:"program_id"`
	Status    Status     `json:"status"`
	Note      string     `json:"note"`
	DecidedBy *string    `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Joined from programs and users for display.
	ProgramName  string `json:"program_name,omitempty"`
	ProgramSlug  string `json:"program_slug,omitempty"`
	Instrument   string `json:"instrument,omitempty"`
	StudentName  string `json:"student_name,omitempty"`
	StudentEmail string `json:"student_email,omitempty"`
}

// StatusCounts holds the number of enrollments per status.
type StatusCounts struct {
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Withdrawn int `json:"withdrawn"`
}

// Add increments the counter for s by n.
func (c *StatusCounts) Add(s Status, n int) {
	switch s {
	case StatusPending:
		c.Pending += n
	case StatusApproved:
		c.Approved += n
	case StatusRejected:
		c.Rejected += n
	case StatusWithdrawn:
		c.Withdrawn += n
	}
}

// Total returns the sum over every status.
func (c StatusCounts) Total() int {
	return c.Pending + c.Approved + c.Rejected + c.Withdrawn
}

// --- Cross-Plugin Interfaces ---

// ProgramFinder looks up programs for enrollment rules. Implemented by
// ProgramFinderAdapter, which wraps the programs service.
type ProgramFinder interface {
	FindProgram(ctx context.Context, id string) (*ProgramInfo, error)
}

// ProgramInfo is the part of a program the enrollment rules need.
type ProgramInfo struct {
	ID          string
	Name        string
	Capacity    int // 0 means unlimited.
	IsPublished bool
}

// --- Request DTOs ---

// EnrollRequest holds the data submitted by the "Request enrollment" form.
type EnrollRequest struct {
	ProgramID string `json:"program_id" form:"program_id"`
	Note      string `json:"note" form:"note"`
}

// DecisionRequest holds the optional note an administrator attaches to a
// decision.
type DecisionRequest struct {
	Note string `json:"note" form:"note"`
}

// ListOptions holds filter and pagination parameters for the admin queue.
type ListOptions struct {
	Status  Status
	Page    int
	PerPage int
}

// Offset returns the row offset for the current page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PerPage
}

func (o ListOptions) normalized() ListOptions {
	if o.PerPage < 1 || o.PerPage > 100 {
		o.PerPage = 50
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if !o.Status.IsValid() {
		o.Status = ""
	}
	return o
}
