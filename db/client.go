package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/libraryhq/notifications/model"
)

// Client provides transaction management and access to the database operations
// in this package. Components depend on narrow interfaces that Client
// satisfies, which lets their tests substitute mock clients.
type Client struct {
	db *sql.DB
}

// NewClient returns a database client backed by the given connection.
func NewClient(db *sql.DB) *Client {
	return &Client{db: db}
}

// Begin starts a database transaction.
func (c *Client) Begin() (*sql.Tx, error) {
	return c.db.Begin()
}

// Commit commits a database transaction.
func (c *Client) Commit(tx *sql.Tx) error {
	return tx.Commit()
}

// Rollback rolls back a database transaction.
func (c *Client) Rollback(tx *sql.Tx) error {
	return tx.Rollback()
}

// SaveNotification saves a single notification.
func (c *Client) SaveNotification(
	ctx context.Context,
	tx *sql.Tx,
	notification *model.Notification,
	dedupKey string,
) (bool, error) {
	return SaveNotification(ctx, tx, notification, dedupKey)
}

// GetNotification looks up a single notification by its identifier.
func (c *Client) GetNotification(ctx context.Context, tx *sql.Tx, id string) (*model.Notification, error) {
	return GetNotification(ctx, tx, id)
}

// MarkNotificationSeen marks a single notification as seen.
func (c *Client) MarkNotificationSeen(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	return MarkNotificationSeen(ctx, tx, id)
}

// MarkAllNotificationsSeen marks all of a user's notifications as seen.
func (c *Client) MarkAllNotificationsSeen(ctx context.Context, tx *sql.Tx, user string) (int64, error) {
	return MarkAllNotificationsSeen(ctx, tx, user)
}

// DeleteNotification permanently removes a single notification.
func (c *Client) DeleteNotification(ctx context.Context, tx *sql.Tx, id string) error {
	return DeleteNotification(ctx, tx, id)
}

// CountUnreadNotifications counts a user's unread, deliverable notifications.
func (c *Client) CountUnreadNotifications(ctx context.Context, tx *sql.Tx, user string) (int64, error) {
	return CountUnreadNotifications(ctx, tx, user)
}

// GetSettings returns a user's notification settings.
func (c *Client) GetSettings(ctx context.Context, tx *sql.Tx, user string) (*model.NotificationSettings, error) {
	return GetSettings(ctx, tx, user)
}

// SaveSettings stores a user's notification settings.
func (c *Client) SaveSettings(ctx context.Context, tx *sql.Tx, settings *model.NotificationSettings) error {
	return SaveSettings(ctx, tx, settings)
}

// ResetSettings removes a user's stored notification settings.
func (c *Client) ResetSettings(ctx context.Context, tx *sql.Tx, user string) error {
	return ResetSettings(ctx, tx, user)
}

// inReadOnlyTx runs a read-only operation in its own transaction.
func (c *Client) inReadOnlyTx(fn func(tx *sql.Tx) error) error {
	tx, err := c.db.Begin()
	if err != nil {
		return errors.Wrap(err, "unable to begin a database transaction")
	}
	defer tx.Rollback() // nolint:errcheck

	return fn(tx)
}

// ListDeliverableAfter returns a user's unseen, deliverable notifications with
// identifiers greater than the cursor, opening its own transaction. This is the
// polling entry point used by the live stream dispatcher.
func (c *Client) ListDeliverableAfter(
	ctx context.Context,
	user, cursor string,
	now time.Time,
	limit uint64,
) ([]*model.Notification, error) {
	var listing []*model.Notification
	err := c.inReadOnlyTx(func(tx *sql.Tx) error {
		var err error
		listing, err = ListDeliverableAfter(ctx, tx, user, cursor, now, limit)
		return err
	})
	return listing, err
}

// ListNotifications returns one page of the notifications matching the filter.
func (c *Client) ListNotifications(
	ctx context.Context,
	filter *model.NotificationFilter,
	page model.Page,
) ([]*model.Notification, error) {
	var listing []*model.Notification
	err := c.inReadOnlyTx(func(tx *sql.Tx) error {
		var err error
		listing, err = ListNotifications(ctx, tx, filter, page)
		return err
	})
	return listing, err
}

// CountNotifications counts the notifications matching the filter.
func (c *Client) CountNotifications(ctx context.Context, filter *model.NotificationFilter) (int64, error) {
	var total int64
	err := c.inReadOnlyTx(func(tx *sql.Tx) error {
		var err error
		total, err = CountNotifications(ctx, tx, filter)
		return err
	})
	return total, err
}

// GetNotificationStats computes aggregate notification counts over a range.
func (c *Client) GetNotificationStats(
	ctx context.Context,
	period string,
	from, until time.Time,
) (*NotificationStats, error) {
	var stats *NotificationStats
	err := c.inReadOnlyTx(func(tx *sql.Tx) error {
		var err error
		stats, err = GetNotificationStats(ctx, tx, period, from, until)
		return err
	})
	return stats, err
}

// DeleteNotificationsOlderThan permanently removes every notification created
// before the cutoff.
func (c *Client) DeleteNotificationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	wrapMsg := "unable to delete old notifications"

	tx, err := c.db.Begin()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	defer tx.Rollback() // nolint:errcheck

	removed, err := DeleteNotificationsOlderThan(ctx, tx, cutoff)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	return removed, nil
}
