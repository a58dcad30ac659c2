package model

import "time"

// NotificationType identifies the kind of event a notification describes.
type NotificationType string

// The notification types recognized by the system.
const (
	TypeSystem       NotificationType = "system"
	TypeLoan         NotificationType = "loan"
	TypeBook         NotificationType = "book"
	TypeReview       NotificationType = "review"
	TypeAnnouncement NotificationType = "announcement"
	TypeMaintenance  NotificationType = "maintenance"
	TypeCustom       NotificationType = "custom"
)

// ValidNotificationType returns true if the given notification type is one that
// the system recognizes.
func ValidNotificationType(t NotificationType) bool {
	switch t {
	case TypeSystem, TypeLoan, TypeBook, TypeReview, TypeAnnouncement, TypeMaintenance, TypeCustom:
		return true
	}
	return false
}

// Priority indicates how urgently a notification should be surfaced.
type Priority string

// The notification priorities recognized by the system.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ValidPriority returns true if the given priority is one that the system
// recognizes.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// The bounds enforced on notification subjects and messages.
const (
	MaxSubjectLength = 255
	MaxMessageLength = 1000
)

// MaxDispatchTargets is the largest number of recipients that a single bulk
// dispatch request may name.
const MaxDispatchTargets = 1000

// Notification represents a single notification recorded in the database.
type Notification struct {
	ID            string                 `json:"id"`
	User          string                 `json:"user"`
	Type          NotificationType       `json:"type"`
	Subject       string                 `json:"subject"`
	Message       string                 `json:"message"`
	Priority      Priority               `json:"priority"`
	Seen          bool                   `json:"seen"`
	Deliverable   bool                   `json:"deliverable"`
	DeferredUntil *time.Time             `json:"deferred_until,omitempty"`
	TimeCreated   time.Time              `json:"time_created"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

// Critical returns true if the notification must bypass user suppression
// settings. Only high-priority system and maintenance notifications qualify.
func (n *Notification) Critical() bool {
	return n.Priority == PriorityHigh && (n.Type == TypeSystem || n.Type == TypeMaintenance)
}
