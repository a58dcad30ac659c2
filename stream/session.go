package stream

import (
	"time"

	"github.com/libraryhq/notifications/model"
)

// EventType identifies the kind of event pushed to a streaming client.
type EventType string

// The event types pushed to streaming clients.
const (
	// EventConnected is sent once, immediately after a session is registered.
	EventConnected EventType = "connected"

	// EventNotifications carries a batch of newly deliverable notifications.
	EventNotifications EventType = "notifications"
)

// Event is a single message pushed to a streaming client.
type Event struct {
	Type          EventType             `json:"type"`
	Notifications []*model.Notification `json:"notifications,omitempty"`
}

// Session represents one live streaming connection for one user. Sessions for
// different users never interact and share no mutable state; the cursor is only
// ever touched by the session's own polling loop.
type Session struct {
	id      string
	user    string
	cursor  string
	created time.Time
	events  chan Event
	done    chan struct{}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// User returns the identifier of the user the session belongs to.
func (s *Session) User() string {
	return s.user
}

// Events returns the channel on which the session's events are delivered. The
// channel is closed when the session is disconnected.
func (s *Session) Events() <-chan Event {
	return s.events
}
