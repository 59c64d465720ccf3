// Package auth implements bearer-token authentication for the control
// surface.
package auth

import "time"

// Token is an API token record. The secret itself is never stored.
type Token struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Scope      string     `json:"scope"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Scope constants
const (
	ScopeAdmin   = "admin"
	ScopeAdminRO = "admin:ro"
)

// ValidScope reports whether scope is one the daemon understands
func ValidScope(scope string) bool {
	return scope == ScopeAdmin || scope == ScopeAdminRO
}

// AuthContext holds authentication information for a request
type AuthContext struct {
	Token *Token
}

// CanWrite reports whether the caller may run mutating operations
func (a *AuthContext) CanWrite() bool {
	return a != nil && a.Token != nil && a.Token.Scope == ScopeAdmin
}

// CanRead reports whether the caller may run read-only operations
func (a *AuthContext) CanRead() bool {
	return a != nil && a.Token != nil && ValidScope(a.Token.Scope)
}

// TokenID returns the caller's token id, or "" when unauthenticated
func (a *AuthContext) TokenID() string {
	if a == nil || a.Token == nil {
		return ""
	}
	return a.Token.ID
}

// Scope returns the caller's scope, or "" when unauthenticated
func (a *AuthContext) Scope() string {
	if a == nil || a.Token == nil {
		return ""
	}
	return a.Token.Scope
}
