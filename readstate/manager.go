// Package readstate owns the unread/read/deleted transitions of notification
// records. The seen flag only ever moves from false to true; ownership is
// enforced on every single-record operation, with admins allowed to act on
// records they don't own.
package readstate

import (
	"context"
	"database/sql"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/model"
)

// DatabaseClient describes the database operations used by the read-state
// manager.
type DatabaseClient interface {
	Begin() (*sql.Tx, error)
	Commit(*sql.Tx) error
	Rollback(*sql.Tx) error
	GetNotification(ctx context.Context, tx *sql.Tx, id string) (*model.Notification, error)
	MarkNotificationSeen(ctx context.Context, tx *sql.Tx, id string) (int64, error)
	MarkAllNotificationsSeen(ctx context.Context, tx *sql.Tx, user string) (int64, error)
	DeleteNotification(ctx context.Context, tx *sql.Tx, id string) error
	CountUnreadNotifications(ctx context.Context, tx *sql.Tx, user string) (int64, error)
}

// Manager performs read-state transitions on notification records.
type Manager struct {
	dbClient DatabaseClient
}

// New returns a new read-state manager.
func New(dbClient DatabaseClient) *Manager {
	return &Manager{dbClient: dbClient}
}

// loadOwned looks up a notification and verifies that the caller may act on it.
func (m *Manager) loadOwned(
	ctx context.Context,
	tx *sql.Tx,
	id string,
	caller model.Identity,
) (*model.Notification, error) {
	notification, err := m.dbClient.GetNotification(ctx, tx, id)
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to look up notification %s", id)
	}
	if notification == nil {
		return nil, common.NewNotFoundError("notification %s not found", id)
	}
	if notification.User != caller.UserID && !caller.Admin() {
		return nil, common.NewForbiddenError("notification %s does not belong to %s", id, caller.UserID)
	}
	return notification, nil
}

// MarkRead marks a single notification as read and returns the updated record.
// Marking an already-read notification is a no-op.
func (m *Manager) MarkRead(ctx context.Context, id string, caller model.Identity) (*model.Notification, error) {
	tx, err := m.dbClient.Begin()
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to begin a database transaction")
	}
	defer m.dbClient.Rollback(tx) // nolint:errcheck

	notification, err := m.loadOwned(ctx, tx, id, caller)
	if err != nil {
		return nil, err
	}

	if !notification.Seen {
		if _, err := m.dbClient.MarkNotificationSeen(ctx, tx, id); err != nil {
			return nil, common.NewDependencyError(err, "unable to mark notification %s as read", id)
		}
		notification.Seen = true
	}

	if err := m.dbClient.Commit(tx); err != nil {
		return nil, common.NewDependencyError(err, "unable to commit the database transaction")
	}
	return notification, nil
}

// MarkAllRead marks every unread notification belonging to the user as read,
// returning the number of notifications actually transitioned. The transition
// happens in a single statement, so concurrent calls never double-count.
func (m *Manager) MarkAllRead(ctx context.Context, user string) (int64, error) {
	tx, err := m.dbClient.Begin()
	if err != nil {
		return 0, common.NewDependencyError(err, "unable to begin a database transaction")
	}
	defer m.dbClient.Rollback(tx) // nolint:errcheck

	updated, err := m.dbClient.MarkAllNotificationsSeen(ctx, tx, user)
	if err != nil {
		return 0, common.NewDependencyError(err, "unable to mark all notifications as read for %s", user)
	}

	if err := m.dbClient.Commit(tx); err != nil {
		return 0, common.NewDependencyError(err, "unable to commit the database transaction")
	}
	return updated, nil
}

// Delete permanently removes a single notification after verifying ownership.
func (m *Manager) Delete(ctx context.Context, id string, caller model.Identity) error {
	tx, err := m.dbClient.Begin()
	if err != nil {
		return common.NewDependencyError(err, "unable to begin a database transaction")
	}
	defer m.dbClient.Rollback(tx) // nolint:errcheck

	if _, err := m.loadOwned(ctx, tx, id, caller); err != nil {
		return err
	}

	if err := m.dbClient.DeleteNotification(ctx, tx, id); err != nil {
		return common.NewDependencyError(err, "unable to delete notification %s", id)
	}

	if err := m.dbClient.Commit(tx); err != nil {
		return common.NewDependencyError(err, "unable to commit the database transaction")
	}
	return nil
}

// UnreadCount returns the number of unread, deliverable notifications belonging
// to the user. The count reflects all completed writes.
func (m *Manager) UnreadCount(ctx context.Context, user string) (int64, error) {
	tx, err := m.dbClient.Begin()
	if err != nil {
		return 0, common.NewDependencyError(err, "unable to begin a database transaction")
	}
	defer m.dbClient.Rollback(tx) // nolint:errcheck

	total, err := m.dbClient.CountUnreadNotifications(ctx, tx, user)
	if err != nil {
		return 0, common.NewDependencyError(err, "unable to count unread notifications for %s", user)
	}
	return total, nil
}

// Get looks up a single notification after verifying ownership.
func (m *Manager) Get(ctx context.Context, id string, caller model.Identity) (*model.Notification, error) {
	tx, err := m.dbClient.Begin()
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to begin a database transaction")
	}
	defer m.dbClient.Rollback(tx) // nolint:errcheck

	return m.loadOwned(ctx, tx, id, caller)
}
