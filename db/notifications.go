package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/libraryhq/notifications/model"
)

// notificationColumns lists the columns selected whenever full notification
// records are loaded.
var notificationColumns = []string{
	"id",
	"user_id",
	"notification_type",
	"subject",
	"message",
	"priority",
	"seen",
	"deliverable",
	"deferred_until",
	"time_created",
	"payload",
}

// scanNotification reads a single notification record from a row.
func scanNotification(row sq.RowScanner) (*model.Notification, error) {
	var (
		n           model.Notification
		deferred    sql.NullTime
		payloadJSON []byte
	)
	err := row.Scan(
		&n.ID,
		&n.User,
		&n.Type,
		&n.Subject,
		&n.Message,
		&n.Priority,
		&n.Seen,
		&n.Deliverable,
		&deferred,
		&n.TimeCreated,
		&payloadJSON,
	)
	if err != nil {
		return nil, err
	}
	if deferred.Valid {
		n.DeferredUntil = &deferred.Time
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &n.Payload); err != nil {
			return nil, err
		}
	}
	return &n, nil
}

// SaveNotification saves a single notification into the database. The dedup key
// uniquely identifies the (request, recipient) pair; if a record with the same
// dedup key already exists, no new record is created and false is returned.
func SaveNotification(ctx context.Context, tx *sql.Tx, notification *model.Notification, dedupKey string) (bool, error) {
	wrapMsg := "unable to save notification"

	// Marshal the payload if there is one.
	var payloadJSON []byte
	if notification.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(notification.Payload)
		if err != nil {
			return false, errors.Wrap(err, wrapMsg)
		}
	}

	// Build the statement to insert the notification.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("notifications").
		Columns(
			"id",
			"dedup_key",
			"user_id",
			"notification_type",
			"subject",
			"message",
			"priority",
			"seen",
			"deliverable",
			"deferred_until",
			"time_created",
			"payload").
		Values(
			notification.ID,
			dedupKey,
			notification.User,
			notification.Type,
			notification.Subject,
			notification.Message,
			notification.Priority,
			notification.Seen,
			notification.Deliverable,
			notification.DeferredUntil,
			notification.TimeCreated,
			payloadJSON).
		Suffix("ON CONFLICT (dedup_key) DO NOTHING").
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}

	// Execute the insert statement. A conflict on the dedup key means that a
	// retry of the same dispatch request already created this record.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected == 1, nil
}

// GetNotification looks up a single notification by its identifier. Both the
// notification and error return values are nil if the notification doesn't exist.
func GetNotification(ctx context.Context, tx *sql.Tx, id string) (*model.Notification, error) {
	wrapMsg := "unable to look up the notification"

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	notification, err := scanNotification(tx.QueryRowContext(ctx, statement, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notification, nil
}

// MarkNotificationSeen marks a single notification as seen. The number of rows
// affected is returned so that callers can treat already-seen notifications as
// a no-op.
func MarkNotificationSeen(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	wrapMsg := "unable to mark the notification as seen"

	// Build the update statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("notifications").
		Set("seen", true).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"seen": false}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the update statement.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}

// MarkAllNotificationsSeen marks every unseen notification belonging to the user
// as seen in a single statement, returning the number of notifications that were
// actually transitioned.
func MarkAllNotificationsSeen(ctx context.Context, tx *sql.Tx, user string) (int64, error) {
	wrapMsg := "unable to mark all notifications as seen"

	// Build the update statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("notifications").
		Set("seen", true).
		Where(sq.Eq{"user_id": user}).
		Where(sq.Eq{"seen": false}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the update statement.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}

// DeleteNotification permanently removes a single notification.
func DeleteNotification(ctx context.Context, tx *sql.Tx, id string) error {
	wrapMsg := "unable to delete the notification"

	// Build the delete statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete("notifications").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the delete statement.
	_, err = tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// CountUnreadNotifications counts the number of deliverable notifications for the
// user that haven't been marked as seen. Suppressed notifications are retained
// for history but never contribute to the unread count.
func CountUnreadNotifications(ctx context.Context, tx *sql.Tx, user string) (int64, error) {
	wrapMsg := "unable to count unread notifications"
	var total int64

	// Build the statement to count the unread notifications.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("count(*)").
		From("notifications").
		Where(sq.Eq{"user_id": user}).
		Where(sq.Eq{"seen": false}).
		Where(sq.Eq{"deliverable": true}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	err = tx.QueryRowContext(ctx, statement, args...).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return total, nil
}

// ListDeliverableAfter returns the user's unseen, deliverable notifications with
// identifiers greater than the given cursor, excluding notifications whose
// delivery deferral hasn't expired yet. Results are returned in identifier
// order, which matches creation order. Because the cursor only moves forward, a
// deferred notification whose deferral expires after a newer notification has
// already been streamed is never picked up by this query; it still appears in
// listings and unread counts.
func ListDeliverableAfter(
	ctx context.Context,
	tx *sql.Tx,
	user, cursor string,
	now time.Time,
	limit uint64,
) ([]*model.Notification, error) {
	wrapMsg := "unable to list deliverable notifications"

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"user_id": user}).
		Where(sq.Eq{"seen": false}).
		Where(sq.Eq{"deliverable": true}).
		Where(sq.Gt{"id": cursor}).
		Where(sq.Or{sq.Eq{"deferred_until": nil}, sq.LtOrEq{"deferred_until": now}}).
		OrderBy("id ASC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	// Collect the results.
	var listing []*model.Notification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		listing = append(listing, notification)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return listing, nil
}

// DeleteNotificationsOlderThan permanently removes every notification created
// before the cutoff, returning the number of notifications removed.
func DeleteNotificationsOlderThan(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int64, error) {
	wrapMsg := "unable to delete old notifications"

	// Build the delete statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete("notifications").
		Where(sq.Lt{"time_created": cutoff}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the delete statement.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}
