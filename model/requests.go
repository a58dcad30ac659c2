package model

import "time"

// Role identifies the privilege level of a caller.
type Role string

// The caller roles recognized by the system.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity represents the verified identity of a caller, as supplied by the
// authentication layer.
type Identity struct {
	UserID string
	Role   Role
}

// Admin returns true if the caller holds the admin role.
func (id Identity) Admin() bool {
	return id.Role == RoleAdmin
}

// BulkDispatchRequest represents a request to create one notification per
// recipient in an explicit target list. It is consumed once by the fan-out
// engine and never persisted.
type BulkDispatchRequest struct {
	RequestID string                 `json:"request_id"`
	Users     []string               `json:"users"`
	Type      NotificationType       `json:"type"`
	Subject   string                 `json:"subject"`
	Message   string                 `json:"message"`
	Priority  Priority               `json:"priority"`
	SendEmail bool                   `json:"send_email"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// SystemWideDispatchRequest represents a request to notify every active user,
// minus an optional exclusion list.
type SystemWideDispatchRequest struct {
	RequestID     string                 `json:"request_id"`
	ExcludedUsers []string               `json:"excluded_users,omitempty"`
	Type          NotificationType       `json:"type"`
	Subject       string                 `json:"subject"`
	Message       string                 `json:"message"`
	Priority      Priority               `json:"priority"`
	SendEmail     bool                   `json:"send_email"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

// LoanReminderRequest represents a request to send reminders for loans that are
// coming due or overdue.
type LoanReminderRequest struct {
	RequestID      string `json:"request_id"`
	DaysBeforeDue  int    `json:"days_before_due"`
	IncludeOverdue bool   `json:"include_overdue"`
	CustomMessage  string `json:"custom_message,omitempty"`
}

// DispatchSummary reports the outcome of a fan-out operation. Failed lists the
// recipients whose records could not be created.
type DispatchSummary struct {
	Created    int      `json:"created"`
	Suppressed int      `json:"suppressed"`
	Failed     []string `json:"failed,omitempty"`
}

// NotificationFilter restricts a notification listing or export. A nil or
// zero-valued field places no restriction.
type NotificationFilter struct {
	User       string
	UnreadOnly bool
	Type       NotificationType
	Priority   Priority
	After      *time.Time
	Before     *time.Time
	Search     string
}

// Pagination bounds for notification listings.
const (
	MaxPageSize     = 100
	DefaultPageSize = 20
)

// Page describes which slice of a filtered result set to return. Page numbers
// start at 1.
type Page struct {
	Number int
	Size   int
}

// Offset returns the row offset corresponding to the page.
func (p Page) Offset() uint64 {
	return uint64((p.Number - 1) * p.Size)
}
