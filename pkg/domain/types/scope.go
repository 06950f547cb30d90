package types

import "fmt"

// Scope is the visibility tier of a memory item. Session-scoped items are
// visible only within their originating session, user-scoped items follow a
// person across sessions, and agent-scoped items are system-level insights.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeUser    Scope = "user"
	ScopeAgent   Scope = "agent"
)

// AllScopes returns all valid memory scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeSession,
		ScopeUser,
		ScopeAgent,
	}
}

// IsValid checks if the scope is valid
func (s Scope) IsValid() bool {
	switch s {
	case ScopeSession,
		ScopeUser,
		ScopeAgent:
		return true
	default:
		return false
	}
}

// String returns the string representation of the scope
func (s Scope) String() string {
	return string(s)
}

// ParseScope parses a string into a Scope
func ParseScope(s string) (Scope, error) {
	scope := Scope(s)
	if !scope.IsValid() {
		return "", fmt.Errorf("invalid memory scope: %s", s)
	}
	return scope, nil
}
