package types

import "errors"

var (
	ErrInvalidUserID     = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidForumTitle = errors.New("forum title must be 1-200 characters")
	ErrInvalidRole       = errors.New("invalid role: must be 'student' or 'tutor'")
	ErrInvalidState      = errors.New("invalid post state")
)
