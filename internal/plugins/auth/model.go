// Package auth handles student and staff accounts, password security and
// browser sessions for Crescendo. Sessions are random tokens whose data
// lives in Redis; changes to authentication state are published on a Redis
// channel so every server instance can react to them.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// User represents a registered Crescendo account: a student, or a staff
// member with IsAdmin set.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	IsAdmin      bool       `json:"is_admin"`
	IsDisabled   bool       `json:"is_disabled"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted by the registration form.
type RegisterRequest struct {
	Email       string `json:"email" form:"email"`
	DisplayName string `json:"display_name" form:"display_name"`
	Password    string `json:"password" form:"password"`
	Confirm     string `json:"confirm" form:"confirm"`
	RememberMe  bool   `json:"remember_me" form:"remember_me"`
}

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Email      string `json:"email" form:"email"`
	Password   string `json:"password" form:"password"`
	RememberMe bool   `json:"remember_me" form:"remember_me"`
}

// ChangePasswordRequest holds the data submitted by the settings form.
type ChangePasswordRequest struct {
	Current string `json:"current_password" form:"current_password"`
	New     string `json:"new_password" form:"new_password"`
	Confirm string `json:"confirm" form:"confirm"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the validated input for creating a new user.
type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
}

// LoginInput is the validated input for authenticating a user.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	IP         string
	UserAgent  string
}

// --- Session ---

// Session represents an authenticated browser session stored in Redis.
// The session token is the key, and this struct is the value (JSON-encoded).
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	Remember  bool      `json:"remember"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInfo describes an active session for the admin console.
type SessionInfo struct {
	// TokenHint is a short prefix of the token, enough to tell sessions apart.
	TokenHint string        `json:"token_hint"`
	Session   Session       `json:"session"`
	ExpiresIn time.Duration `json:"expires_in"`
}

// SessionTTLs holds the Redis lifetime of a session per login mode. They
// match the inactivity timeouts so the store and the monitor agree.
type SessionTTLs struct {
	Standard time.Duration
	Extended time.Duration
}

// For returns the TTL for a login with the given remember-me choice.
func (t SessionTTLs) For(remember bool) time.Duration {
	if remember {
		return t.Extended
	}
	return t.Standard
}

// --- Auth change notifications ---

// ChangeKind classifies an authentication state change.
type ChangeKind string

const (
	ChangeLogin   ChangeKind = "login"
	ChangeLogout  ChangeKind = "logout"
	ChangeRevoked ChangeKind = "revoked"
)

// Change is published on the auth change channel whenever sessions are
// created or destroyed.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	UserID string     `json:"user_id"`
	Tokens []string   `json:"tokens,omitempty"`
}
