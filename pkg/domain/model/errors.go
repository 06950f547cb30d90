package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy for memory operations. Callers classify failures with
// errors.Is against these sentinels.
var (
	// ErrInvalidInput indicates a malformed request shape
	ErrInvalidInput = goerr.New("invalid input")

	// ErrPIIRejected indicates PII was detected while auto-sanitization is disabled
	ErrPIIRejected = goerr.New("pii detected and auto-sanitization is disabled")

	// ErrConsentRequired indicates a consent-gated category without a valid consent record
	ErrConsentRequired = goerr.New("valid consent required for this memory category")

	// ErrBackendTimeout indicates a single remote attempt exceeded its timeout; retried internally
	ErrBackendTimeout = goerr.New("memory backend attempt timed out")

	// ErrBackendUnavailable indicates retries against the remote backend are exhausted
	ErrBackendUnavailable = goerr.New("memory backend unavailable")

	// ErrNotFound indicates a lookup of a nonexistent item or record
	ErrNotFound = goerr.New("not found")
)

// Context keys for error values
const (
	SessionIDKey      = "session_id"
	UserIDKey         = "user_id"
	ConversationIDKey = "conversation_id"
	CategoryKey       = "category"
)
