package admin

import (
	"time"

	"github.com/keyxmakerx/crescendo/internal/plugins/activity"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// Security event types recorded by this plugin. Auth events and session
// timeouts are recorded by the auth and activity plugins.
const (
	EventAdminPrivilegeChanged = "admin.privilege_changed"
	EventUserDisabled          = "admin.user_disabled"
	EventUserEnabled           = "admin.user_enabled"
	EventForceLogout           = "admin.force_logout"
)

// SecurityEvent is one entry of the site-wide security log.
type SecurityEvent struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"` // Admin who performed the action.
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`

	// Joined from users for display.
	UserName  string `json:"user_name,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
}

// SecurityStats holds the 24 hour counters of the security page.
type SecurityStats struct {
	TotalEvents         int `json:"total_events"`
	FailedLogins24h     int `json:"failed_logins_24h"`
	SuccessfulLogins24h int `json:"successful_logins_24h"`
	Timeouts24h         int `json:"timeouts_24h"`
	DisabledUsers       int `json:"disabled_users"`
	UniqueIPs24h        int `json:"unique_ips_24h"`
}

// EventTypes lists the filterable event types in display order.
var EventTypes = []string{
	auth.EventLoginSuccess,
	auth.EventLoginFailed,
	auth.EventLogout,
	activity.EventSessionTimeout,
	auth.EventRegister,
	auth.EventPasswordChanged,
	EventAdminPrivilegeChanged,
	EventUserDisabled,
	EventUserEnabled,
	EventForceLogout,
}

var eventLabels = map[string]string{
	auth.EventLoginSuccess:       "Login",
	auth.EventLoginFailed:        "Login failed",
	auth.EventLogout:             "Logout",
	auth.EventRegister:           "Registration",
	auth.EventPasswordChanged:    "Password changed",
	activity.EventSessionTimeout: "Session timed out",
	EventAdminPrivilegeChanged:   "Admin privilege changed",
	EventUserDisabled:            "Account disabled",
	EventUserEnabled:             "Account enabled",
	EventForceLogout:             "Forced logout",
}

// EventTypeLabel returns a human-readable label for a security event type.
func EventTypeLabel(eventType string) string {
	if label, ok := eventLabels[eventType]; ok {
		return label
	}
	return eventType
}

// EventTypeTone returns the badge style of an event type: "danger" for
// failures and enforcement, "muted" for routine session ends.
func EventTypeTone(eventType string) string {
	switch eventType {
	case auth.EventLoginFailed, EventUserDisabled, EventForceLogout:
		return "danger"
	case auth.EventLogout, activity.EventSessionTimeout:
		return "muted"
	}
	return "info"
}
