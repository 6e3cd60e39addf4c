package interfaces

import (
	"helpforum/pkg/types"
)

// SessionAuthority validates opaque session identifiers presented by
// connecting clients. The gateway treats it as an external service: one call,
// either an authenticated identity or an error.
type SessionAuthority interface {
	// Validate resolves a session ID to an identity. Returns
	// ErrSessionNotFound for unknown tokens and ErrSessionExpired for tokens
	// past their lifetime.
	Validate(sessionID string) (*types.Identity, error)
}
