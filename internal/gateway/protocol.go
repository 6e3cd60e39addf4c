package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"helpforum/internal/forum"
)

// Inbound frames are plain text: "Session:<token>". Outbound frames are
// either a plain-text "SessionError:<reason>" or a JSON document.
const (
	sessionPrefix      = "Session:"
	sessionErrorPrefix = "SessionError:"

	reasonInvalidSession = "Invalid session ID"
	reasonSessionExpired = "Session expired"
	reasonNotAuthorized  = "Not Authorized"
)

// ParseSessionFrame extracts the token from a "Session:<token>" frame.
func ParseSessionFrame(data []byte) (string, bool) {
	text := string(data)
	if !strings.HasPrefix(text, sessionPrefix) {
		return "", false
	}
	return text[len(sessionPrefix):], true
}

// EncodeSessionError builds a "SessionError:<reason>" frame.
func EncodeSessionError(reason string) []byte {
	return []byte(sessionErrorPrefix + reason)
}

type snapshotFrame struct {
	Fora []forum.Summary `json:"fora"`
}

// EncodeSnapshot builds the initial full-state frame sent right after
// authentication.
func EncodeSnapshot(summaries []forum.Summary) ([]byte, error) {
	if summaries == nil {
		summaries = []forum.Summary{}
	}
	return json.Marshal(snapshotFrame{Fora: summaries})
}

type forumAddedEvent struct {
	Event       string `json:"event"`
	Forum       string `json:"forum"`
	TotalPosts  int    `json:"totalPosts"`
	TotalUnread int    `json:"totalUnread"`
}

type postAddedEvent struct {
	Event        string    `json:"event"`
	Forum        string    `json:"forum"`
	PostNumber   int64     `json:"postNumber"`
	ParentNumber *int64    `json:"parentNumber,omitempty"`
	Author       string    `json:"author"`
	State        string    `json:"state"`
	PostedAt     time.Time `json:"postedAt"`
}

type postUpdatedEvent struct {
	Event      string `json:"event"`
	Forum      string `json:"forum"`
	PostNumber int64  `json:"postNumber"`
	State      string `json:"state"`
	OldState   string `json:"oldState"`
}

type postContentUpdatedEvent struct {
	Event      string `json:"event"`
	Forum      string `json:"forum"`
	PostNumber int64  `json:"postNumber"`
}

func encodeForumAdded(summary forum.Summary) ([]byte, error) {
	return json.Marshal(forumAddedEvent{
		Event:       "forumAdded",
		Forum:       summary.Title,
		TotalPosts:  summary.TotalPosts,
		TotalUnread: summary.TotalUnread,
	})
}

func encodePostAdded(forumTitle string, post forum.PostInfo) ([]byte, error) {
	return json.Marshal(postAddedEvent{
		Event:        "postAdded",
		Forum:        forumTitle,
		PostNumber:   post.Number,
		ParentNumber: post.ParentNumber,
		Author:       post.Author,
		State:        post.State.String(),
		PostedAt:     post.WhenPosted,
	})
}

func encodePostUpdated(forumTitle string, post forum.PostInfo, oldState string) ([]byte, error) {
	return json.Marshal(postUpdatedEvent{
		Event:      "postUpdated",
		Forum:      forumTitle,
		PostNumber: post.Number,
		State:      post.State.String(),
		OldState:   oldState,
	})
}

func encodePostContentUpdated(forumTitle string, postNumber int64) ([]byte, error) {
	return json.Marshal(postContentUpdatedEvent{
		Event:      "postContentUpdated",
		Forum:      forumTitle,
		PostNumber: postNumber,
	})
}
