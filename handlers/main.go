// Package handlers exposes the notification subsystem's operation surface. The
// Handlers type composes the fan-out engine, read-state manager, query layer,
// and live stream dispatcher behind methods keyed by a verified caller
// identity, enforcing role checks for the administrative operations. The
// MessageHandler interface covers dispatch requests arriving over AMQP.
package handlers

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/db"
	"github.com/libraryhq/notifications/fanout"
	"github.com/libraryhq/notifications/model"
	"github.com/libraryhq/notifications/query"
	"github.com/libraryhq/notifications/readstate"
	"github.com/libraryhq/notifications/stream"
)

var log = logrus.WithFields(logrus.Fields{"package": "handlers"})

// MessageHandler describes the interface used to handle AMQP messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, category string, delivery amqp.Delivery) error
}

// SettingsClient describes the database operations used for notification
// settings management.
type SettingsClient interface {
	Begin() (*sql.Tx, error)
	Commit(*sql.Tx) error
	Rollback(*sql.Tx) error
	GetSettings(ctx context.Context, tx *sql.Tx, user string) (*model.NotificationSettings, error)
	SaveSettings(ctx context.Context, tx *sql.Tx, settings *model.NotificationSettings) error
	ResetSettings(ctx context.Context, tx *sql.Tx, user string) error
}

// Handlers implements the notification subsystem's exposed operations.
type Handlers struct {
	engine    *fanout.Engine
	readState *readstate.Manager
	queries   *query.Service
	streams   *stream.Dispatcher
	settings  SettingsClient
	loans     fanout.LoanDirectory
}

// New returns the operation surface for the notification subsystem.
func New(
	engine *fanout.Engine,
	readState *readstate.Manager,
	queries *query.Service,
	streams *stream.Dispatcher,
	settings SettingsClient,
	loans fanout.LoanDirectory,
) *Handlers {
	return &Handlers{
		engine:    engine,
		readState: readState,
		queries:   queries,
		streams:   streams,
		settings:  settings,
		loans:     loans,
	}
}

// requireAdmin returns a ForbiddenError if the caller doesn't hold the admin role.
func requireAdmin(caller model.Identity) error {
	if !caller.Admin() {
		return common.NewForbiddenError("%s is not an administrator", caller.UserID)
	}
	return nil
}

// GetMyNotifications returns one page of the caller's notifications. The
// caller's identity overrides any user named in the filter.
func (h *Handlers) GetMyNotifications(
	ctx context.Context,
	caller model.Identity,
	filter model.NotificationFilter,
	page model.Page,
) (*query.Listing, error) {
	filter.User = caller.UserID
	return h.queries.List(ctx, &filter, page)
}

// GetNotificationByID returns a single notification owned by the caller.
func (h *Handlers) GetNotificationByID(ctx context.Context, caller model.Identity, id string) (*model.Notification, error) {
	return h.readState.Get(ctx, id, caller)
}

// MarkAsRead marks a single notification as read.
func (h *Handlers) MarkAsRead(ctx context.Context, caller model.Identity, id string) (*model.Notification, error) {
	return h.readState.MarkRead(ctx, id, caller)
}

// MarkAllAsRead marks all of the caller's notifications as read, returning the
// number of notifications transitioned.
func (h *Handlers) MarkAllAsRead(ctx context.Context, caller model.Identity) (int64, error) {
	return h.readState.MarkAllRead(ctx, caller.UserID)
}

// DeleteNotification permanently removes a single notification.
func (h *Handlers) DeleteNotification(ctx context.Context, caller model.Identity, id string) error {
	return h.readState.Delete(ctx, id, caller)
}

// GetUnreadCount returns the caller's unread notification count.
func (h *Handlers) GetUnreadCount(ctx context.Context, caller model.Identity) (int64, error) {
	return h.readState.UnreadCount(ctx, caller.UserID)
}

// StreamNotifications opens a live notification stream for the caller. The
// lastSeen cursor, if not empty, resumes delivery after a previously received
// notification.
func (h *Handlers) StreamNotifications(ctx context.Context, caller model.Identity, lastSeen string) (*stream.Session, error) {
	return h.streams.Connect(ctx, caller.UserID, lastSeen)
}

// DisconnectStream tears down a live notification stream.
func (h *Handlers) DisconnectStream(sessionID string) {
	h.streams.Disconnect(sessionID)
}

// CreateCustomNotification creates a single notification addressed to the
// caller, for client-side reminders and notes to self.
func (h *Handlers) CreateCustomNotification(
	ctx context.Context,
	caller model.Identity,
	subject, message string,
	priority model.Priority,
) (*model.DispatchSummary, error) {
	request := &model.BulkDispatchRequest{
		Users:    []string{caller.UserID},
		Type:     model.TypeCustom,
		Subject:  subject,
		Message:  message,
		Priority: priority,
	}
	return h.engine.Dispatch(ctx, request)
}

// GetMySettings returns the caller's notification settings, falling back to the
// defaults for a caller who never customized them.
func (h *Handlers) GetMySettings(ctx context.Context, caller model.Identity) (*model.NotificationSettings, error) {
	tx, err := h.settings.Begin()
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to begin a database transaction")
	}
	defer h.settings.Rollback(tx) // nolint:errcheck

	settings, err := h.settings.GetSettings(ctx, tx, caller.UserID)
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to look up the notification settings")
	}
	return settings, nil
}

// UpdateMySettings stores the caller's notification settings. Settings are only
// ever mutated by their owning user.
func (h *Handlers) UpdateMySettings(
	ctx context.Context,
	caller model.Identity,
	settings *model.NotificationSettings,
) (*model.NotificationSettings, error) {
	if err := validateSettings(settings); err != nil {
		return nil, err
	}
	settings.User = caller.UserID

	tx, err := h.settings.Begin()
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to begin a database transaction")
	}
	defer h.settings.Rollback(tx) // nolint:errcheck

	if err := h.settings.SaveSettings(ctx, tx, settings); err != nil {
		return nil, common.NewDependencyError(err, "unable to save the notification settings")
	}
	if err := h.settings.Commit(tx); err != nil {
		return nil, common.NewDependencyError(err, "unable to commit the database transaction")
	}
	return settings, nil
}

// ResetMySettings restores the caller's notification settings to the defaults.
func (h *Handlers) ResetMySettings(ctx context.Context, caller model.Identity) (*model.NotificationSettings, error) {
	tx, err := h.settings.Begin()
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to begin a database transaction")
	}
	defer h.settings.Rollback(tx) // nolint:errcheck

	if err := h.settings.ResetSettings(ctx, tx, caller.UserID); err != nil {
		return nil, common.NewDependencyError(err, "unable to reset the notification settings")
	}
	if err := h.settings.Commit(tx); err != nil {
		return nil, common.NewDependencyError(err, "unable to commit the database transaction")
	}
	return model.DefaultSettings(caller.UserID), nil
}

// validateSettings rejects malformed settings before they're stored.
func validateSettings(settings *model.NotificationSettings) error {
	if !model.ValidFrequency(settings.Frequency) {
		return common.NewValidationError("frequency", "unrecognized frequency `%s`", settings.Frequency)
	}
	if (settings.QuietHoursStart == "") != (settings.QuietHoursEnd == "") {
		return common.NewValidationError("quiet_hours", "both quiet-hours boundaries must be set together")
	}
	if settings.QuietHoursStart != "" {
		if _, err := common.ParseTimeOfDay(settings.QuietHoursStart); err != nil {
			return common.NewValidationError("quiet_hours_start", "%s", err.Error())
		}
		if _, err := common.ParseTimeOfDay(settings.QuietHoursEnd); err != nil {
			return common.NewValidationError("quiet_hours_end", "%s", err.Error())
		}
	}
	return nil
}

// GetAllNotifications returns one page of notifications across all users,
// optionally restricted to a single user via the filter. Admin only.
func (h *Handlers) GetAllNotifications(
	ctx context.Context,
	caller model.Identity,
	filter model.NotificationFilter,
	page model.Page,
) (*query.Listing, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return h.queries.List(ctx, &filter, page)
}

// CreateBulkNotification fans a notification out to an explicit recipient list.
// Admin only.
func (h *Handlers) CreateBulkNotification(
	ctx context.Context,
	caller model.Identity,
	request *model.BulkDispatchRequest,
) (*model.DispatchSummary, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return h.engine.Dispatch(ctx, request)
}

// CreateSystemWideNotification fans a notification out to every active user.
// Admin only.
func (h *Handlers) CreateSystemWideNotification(
	ctx context.Context,
	caller model.Identity,
	request *model.SystemWideDispatchRequest,
) (*model.DispatchSummary, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return h.engine.DispatchSystemWide(ctx, request)
}

// CleanupOldNotifications removes notifications older than the given number of
// days. Admin only.
func (h *Handlers) CleanupOldNotifications(ctx context.Context, caller model.Identity, daysOld int) (int64, error) {
	if err := requireAdmin(caller); err != nil {
		return 0, err
	}
	return h.queries.Cleanup(ctx, daysOld)
}

// GetNotificationStats computes aggregate notification counts over a reporting
// range. Admin only.
func (h *Handlers) GetNotificationStats(
	ctx context.Context,
	caller model.Identity,
	period string,
	from, until time.Time,
) (*db.NotificationStats, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return h.queries.Stats(ctx, period, from, until)
}

// ExportNotifications writes the notifications matching the filter to the
// writer in the requested format. Admin only.
func (h *Handlers) ExportNotifications(
	ctx context.Context,
	caller model.Identity,
	filter model.NotificationFilter,
	format query.ExportFormat,
	w io.Writer,
) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return h.queries.Export(ctx, &filter, format, w)
}

// SendLoanReminders dispatches reminders for loans coming due. Admin only.
func (h *Handlers) SendLoanReminders(
	ctx context.Context,
	caller model.Identity,
	request *model.LoanReminderRequest,
) (*model.DispatchSummary, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return h.engine.SendLoanReminders(ctx, h.loans, request)
}
