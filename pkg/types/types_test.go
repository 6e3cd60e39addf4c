package types

import (
	"errors"
	"testing"
	"time"
)

func TestPostState_StringRoundTrip(t *testing.T) {
	states := []PostState{StateUnread, StateRead, StateStarred, StateDeleted}

	for _, state := range states {
		parsed, err := ParsePostState(state.String())
		if err != nil {
			t.Fatalf("ParsePostState(%q) returned error: %v", state.String(), err)
		}
		if parsed != state {
			t.Errorf("ParsePostState(%q) = %v, want %v", state.String(), parsed, state)
		}
	}
}

func TestPostState_ParseInvalid(t *testing.T) {
	for _, input := range []string{"", "unread", "ARCHIVED", "U"} {
		if _, err := ParsePostState(input); !errors.Is(err, ErrInvalidState) {
			t.Errorf("ParsePostState(%q) error = %v, want ErrInvalidState", input, err)
		}
	}
}

func TestPostState_Valid(t *testing.T) {
	if !StateUnread.Valid() || !StateDeleted.Valid() {
		t.Error("defined states should be valid")
	}
	if PostState(-1).Valid() {
		t.Error("negative state should be invalid")
	}
	if PostState(4).Valid() {
		t.Error("out-of-range state should be invalid")
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	session := &Session{
		ID:        "s1",
		UserID:    "tutor1",
		Role:      RoleTutor,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	if session.Expired(now) {
		t.Error("session should not be expired before ExpiresAt")
	}
	if !session.Expired(now.Add(time.Hour)) {
		t.Error("session should be expired at ExpiresAt")
	}
	if !session.Expired(now.Add(2 * time.Hour)) {
		t.Error("session should be expired after ExpiresAt")
	}
}

func TestIdentity_CanObserveForums(t *testing.T) {
	tutor := &Identity{UserID: "t1", Role: RoleTutor}
	student := &Identity{UserID: "s1", Role: RoleStudent}

	if !tutor.CanObserveForums() {
		t.Error("tutor should be able to observe forums")
	}
	if student.CanObserveForums() {
		t.Error("student should not be able to observe forums")
	}
}

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		userID string
		valid  bool
	}{
		{"student1", true},
		{"tutor_01", true},
		{"a-b-c", true},
		{"", false},
		{"user with spaces", false},
		{"user@host", false},
		{string(make([]byte, 51)), false},
	}

	for _, tt := range tests {
		if got := IsValidUserID(tt.userID); got != tt.valid {
			t.Errorf("IsValidUserID(%q) = %v, want %v", tt.userID, got, tt.valid)
		}
	}
}

func TestIsValidForumTitle(t *testing.T) {
	tests := []struct {
		title string
		valid bool
	}{
		{"MATH 117", true},
		{"CS 101 - Intro", true},
		{"", false},
		{" padded", false},
		{"padded ", false},
	}

	for _, tt := range tests {
		if got := IsValidForumTitle(tt.title); got != tt.valid {
			t.Errorf("IsValidForumTitle(%q) = %v, want %v", tt.title, got, tt.valid)
		}
	}

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	if IsValidForumTitle(string(long)) {
		t.Error("title over 200 characters should be invalid")
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleStudent) || !IsValidRole(RoleTutor) {
		t.Error("defined roles should be valid")
	}
	if IsValidRole("admin") || IsValidRole("") {
		t.Error("unknown roles should be invalid")
	}
}
