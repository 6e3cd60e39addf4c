package types

import (
	"regexp"
	"strings"
)

// Compiled once; validation happens on every login and post submission.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements.
// The 1-50 character limit keeps identifiers database- and display-friendly.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidForumTitle checks if a forum title meets format requirements.
// Titles identify forums on the wire, so blank or padded titles are rejected.
func IsValidForumTitle(title string) bool {
	if len(title) < 1 || len(title) > 200 {
		return false
	}
	return strings.TrimSpace(title) == title && title != ""
}

// IsValidRole checks if the role is one of the recognized roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTutor:
		return true
	default:
		return false
	}
}
