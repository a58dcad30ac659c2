package model

// Frequency controls how often a user wants to be actively notified.
type Frequency string

// The notification frequencies recognized by the system.
const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyNever     Frequency = "never"
)

// ValidFrequency returns true if the given frequency is one that the system
// recognizes.
func ValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly, FrequencyNever:
		return true
	}
	return false
}

// NotificationSettings represents a single user's notification preferences.
// Quiet hours are stored as HH:MM strings; both must be present for the quiet
// hours window to take effect.
type NotificationSettings struct {
	User                string    `json:"user"`
	EmailEnabled        bool      `json:"email_enabled"`
	PushEnabled         bool      `json:"push_enabled"`
	LoanReminders       bool      `json:"loan_reminders"`
	NewBookAlerts       bool      `json:"new_book_alerts"`
	SystemAnnouncements bool      `json:"system_announcements"`
	ReviewResponses     bool      `json:"review_responses"`
	Marketing           bool      `json:"marketing"`
	Frequency           Frequency `json:"frequency"`
	QuietHoursStart     string    `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd       string    `json:"quiet_hours_end,omitempty"`
}

// DefaultSettings returns the notification settings assigned to a user who has
// never customized them.
func DefaultSettings(user string) *NotificationSettings {
	return &NotificationSettings{
		User:                user,
		EmailEnabled:        true,
		PushEnabled:         true,
		LoanReminders:       true,
		NewBookAlerts:       true,
		SystemAnnouncements: true,
		ReviewResponses:     true,
		Marketing:           false,
		Frequency:           FrequencyImmediate,
	}
}

// ChannelEnabled returns true if the settings permit active delivery of
// notifications of the given type. Types without a dedicated toggle are always
// permitted.
func (s *NotificationSettings) ChannelEnabled(t NotificationType) bool {
	switch t {
	case TypeLoan:
		return s.LoanReminders
	case TypeBook:
		return s.NewBookAlerts
	case TypeSystem, TypeMaintenance, TypeAnnouncement:
		return s.SystemAnnouncements
	case TypeReview:
		return s.ReviewResponses
	}
	return true
}
