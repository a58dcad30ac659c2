// Package gate implements the delivery gate: the decision of whether a
// notification should be actively surfaced to its recipient, deferred until a
// quiet-hours window closes, or permanently suppressed. The gate never affects
// whether a notification is recorded; history is always retained.
package gate

import (
	"time"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/model"
)

// Decision is the outcome of evaluating a notification against a user's
// settings. A suppressed notification has Deliver=false and no deferral; a
// quiet-hours deferral has Deliver=true and a non-nil DeferredUntil.
type Decision struct {
	Deliver       bool
	DeferredUntil *time.Time
}

// Suppressed returns true if the notification should never be actively pushed.
func (d Decision) Suppressed() bool {
	return !d.Deliver
}

// Immediate returns true if the notification should be pushed right away.
func (d Decision) Immediate() bool {
	return d.Deliver && d.DeferredUntil == nil
}

// Evaluate decides whether the notification should be surfaced given the user's
// settings and the current time. Malformed settings fields fall back to the
// defaults: a quiet hours boundary that can't be parsed is treated as if it
// were absent, and an unrecognized frequency is treated as immediate.
func Evaluate(notification *model.Notification, settings *model.NotificationSettings, now time.Time) Decision {
	if settings == nil {
		settings = model.DefaultSettings(notification.User)
	}

	// High-priority system and maintenance notifications bypass all suppression.
	if notification.Critical() {
		return Decision{Deliver: true}
	}

	// A disabled channel suppresses the notification permanently.
	if !settings.ChannelEnabled(notification.Type) {
		return Decision{Deliver: false}
	}

	// A user who never wants notifications gets none of the non-critical ones.
	frequency := settings.Frequency
	if !model.ValidFrequency(frequency) {
		frequency = model.FrequencyImmediate
	}
	if frequency == model.FrequencyNever {
		return Decision{Deliver: false}
	}

	// Inside quiet hours, delivery is deferred until the window closes.
	if window, ok := quietWindow(settings); ok && window.Contains(now) {
		deferredUntil := window.NextEnd(now)
		return Decision{Deliver: true, DeferredUntil: &deferredUntil}
	}

	return Decision{Deliver: true}
}

// quietWindow returns the user's quiet-hours window. The second return value is
// false if quiet hours aren't configured or either boundary is malformed.
func quietWindow(settings *model.NotificationSettings) (common.QuietWindow, bool) {
	var window common.QuietWindow
	if settings.QuietHoursStart == "" || settings.QuietHoursEnd == "" {
		return window, false
	}
	start, err := common.ParseTimeOfDay(settings.QuietHoursStart)
	if err != nil {
		return window, false
	}
	end, err := common.ParseTimeOfDay(settings.QuietHoursEnd)
	if err != nil {
		return window, false
	}
	return common.QuietWindow{Start: start, End: end}, true
}
