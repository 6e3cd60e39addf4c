package session

import "errors"

var (
	ErrInvalidUserID = errors.New("invalid user ID")
	ErrInvalidRole   = errors.New("invalid role")
	ErrEmptyToken    = errors.New("empty session token")
)
