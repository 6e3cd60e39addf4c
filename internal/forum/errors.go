package forum

import "errors"

var (
	ErrIndexOutOfRange     = errors.New("post index out of range")
	ErrParentNotFound      = errors.New("parent post does not exist in this forum")
	ErrDuplicateForumTitle = errors.New("duplicate forum title")
)
