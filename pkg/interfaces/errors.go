package interfaces

import "errors"

// Shared errors crossing component boundaries.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrContentNotFound = errors.New("post content not found")
)
