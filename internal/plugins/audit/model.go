// Package audit records who changed the school's catalog and enrollments.
// Program edits and enrollment requests or decisions are captured as
// AuditEntry rows in the audit_log table; administrators read them as an
// activity feed and as the history of a single program or enrollment.
//
// The plugin only observes changes made by other plugins. Sign-ins and
// account actions belong to the security log in the admin plugin.
package audit

import (
	"context"
	"strings"
	"time"
)

// --- Action Constants ---
// Each action string follows the pattern "subject.verb"; the subject part
// doubles as the entry's subject type.

const (
	ActionProgramCreated = "program.created"
	ActionProgramUpdated = "program.updated"
	ActionProgramDeleted = "program.deleted"

	ActionEnrollmentRequested = "enrollment.requested"
	ActionEnrollmentWithdrawn = "enrollment.withdrawn"
	ActionEnrollmentApproved  = "enrollment.approved"
	ActionEnrollmentRejected  = "enrollment.rejected"
)

// Subject types, as derived from actions.
const (
	SubjectProgram    = "program"
	SubjectEnrollment = "enrollment"
)

// SubjectTypes lists the feed filters in display order.
var SubjectTypes = []string{SubjectProgram, SubjectEnrollment}

var actionLabels = map[string]string{
	ActionProgramCreated:      "Program created",
	ActionProgramUpdated:      "Program updated",
	ActionProgramDeleted:      "Program deleted",
	ActionEnrollmentRequested: "Enrollment requested",
	ActionEnrollmentWithdrawn: "Enrollment withdrawn",
	ActionEnrollmentApproved:  "Enrollment approved",
	ActionEnrollmentRejected:  "Enrollment rejected",
}

// ActionLabel returns the display label of an action.
func ActionLabel(action string) string {
	if l, ok := actionLabels[action]; ok {
		return l
	}
	return action
}

// SubjectOf returns the subject type encoded in an action.
func SubjectOf(action string) string {
	subject, _, _ := strings.Cut(action, ".")
	return subject
}

// AuditEntry is a single recorded change. Details holds action-specific
// metadata such as the decision note or the fields an edit touched.
type AuditEntry struct {
	ID          int64          `json:"id"`
	ActorID     string         `json:"actor_id,omitempty"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
	SubjectName string         `json:"subject_name,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`

	// ActorName is joined from users at query time.
	ActorName string `json:"actor_name,omitempty"`
}

// Stats summarizes the feed for the page header.
type Stats struct {
	TotalEntries   int        `json:"total_entries"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`

	// ActiveActors counts distinct people with recorded changes in the last
	// 30 days.
	ActiveActors int `json:"active_actors"`
}

// Recorder is how other plugins report changes. Recording never fails the
// caller's operation.
type Recorder interface {
	Record(ctx context.Context, actorID, action, subjectID, subjectName string, details map[string]any)
}
