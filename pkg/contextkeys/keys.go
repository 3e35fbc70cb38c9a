// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here to
// prevent typos and make key usage discoverable.
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains the caller's user id
	// Set by: middleware.Principal (pkg/middleware/principal.go)
	// Required by: all app endpoints
	// Type: int64
	PrincipalKey Key = "principal_user_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: logger
	// Type: string
	RequestIDKey Key = "request_id"
)
