// Package queue carries user activity events over RabbitMQ.  Publishing is
// best-effort: a broker outage never fails the request that produced the
// event.
package queue

import (
	"fmt"
	"strings"
	"time"
)

// ActivityQueue is the durable queue every event goes to.
const ActivityQueue = "bandou.activity"

// Event types.
const (
	RatingCreated  = "rating.created"
	RatingUpdated  = "rating.updated"
	RatingDeleted  = "rating.deleted"
	CommentCreated = "comment.created"
	CommentDeleted = "comment.deleted"
	UserLogin      = "user.login"
)

// ActivityEvent describes one user action.  Optional fields are omitted
// from the JSON payload when unset.
type ActivityEvent struct {
	Type       string   `json:"type"`
	UserID     uint64   `json:"user_id"`
	MovieID    uint64   `json:"movie_id,omitempty"`
	RatingID   uint64   `json:"rating_id,omitempty"`
	CommentID  uint64   `json:"comment_id,omitempty"`
	Rating     *float64 `json:"rating,omitempty"`
	Score      *float64 `json:"score,omitempty"` // movie score after a rating write
	Removed    int64    `json:"removed,omitempty"`
	IP         string   `json:"ip,omitempty"`
	OccurredAt string   `json:"occurred_at"`
}

// NewEvent stamps an event of type typ for userID with the current UTC time.
func NewEvent(typ string, userID uint64) ActivityEvent {
	return ActivityEvent{Type: typ, UserID: userID, OccurredAt: time.Now().UTC().Format(time.RFC3339)}
}

// Line renders ev as the single log line the consumer appends.
func (ev ActivityEvent) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | user_id=%d", ev.OccurredAt, ev.Type, ev.UserID)
	if ev.MovieID != 0 {
		fmt.Fprintf(&b, " | movie_id=%d", ev.MovieID)
	}
	if ev.RatingID != 0 {
		fmt.Fprintf(&b, " | rating_id=%d", ev.RatingID)
	}
	if ev.CommentID != 0 {
		fmt.Fprintf(&b, " | comment_id=%d", ev.CommentID)
	}
	if ev.Rating != nil {
		fmt.Fprintf(&b, " | rating=%.1f", *ev.Rating)
	}
	if ev.Score != nil {
		fmt.Fprintf(&b, " | score=%.1f", *ev.Score)
	}
	if ev.Removed != 0 {
		fmt.Fprintf(&b, " | removed=%d", ev.Removed)
	}
	if ev.IP != "" {
		fmt.Fprintf(&b, " | ip=%s", ev.IP)
	}
	b.WriteByte('\n')
	return b.String()
}
