package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/libraryhq/notifications/model"
)

// applyFilter adds the WHERE clauses for a notification filter to a select
// builder. The same filter semantics back listings, counts, and exports.
func applyFilter(builder sq.SelectBuilder, filter *model.NotificationFilter) sq.SelectBuilder {
	if filter.User != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.User})
	}
	if filter.UnreadOnly {
		builder = builder.Where(sq.Eq{"seen": false})
	}
	if filter.Type != "" {
		builder = builder.Where(sq.Eq{"notification_type": filter.Type})
	}
	if filter.Priority != "" {
		builder = builder.Where(sq.Eq{"priority": filter.Priority})
	}
	if filter.After != nil {
		builder = builder.Where(sq.GtOrEq{"time_created": *filter.After})
	}
	if filter.Before != nil {
		builder = builder.Where(sq.Lt{"time_created": *filter.Before})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		builder = builder.Where(sq.Or{sq.ILike{"subject": pattern}, sq.ILike{"message": pattern}})
	}
	return builder
}

// ListNotifications returns one page of the notifications matching the filter,
// ordered by creation time descending.
func ListNotifications(
	ctx context.Context,
	tx *sql.Tx,
	filter *model.NotificationFilter,
	page model.Page,
) ([]*model.Notification, error) {
	wrapMsg := "unable to list notifications"

	// Build the query.
	builder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(notificationColumns...).
		From("notifications")
	builder = applyFilter(builder, filter)
	statement, args, err := builder.
		OrderBy("time_created DESC", "id DESC").
		Limit(uint64(page.Size)).
		Offset(page.Offset()).
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

// CountNotifications counts the notifications matching the filter.
func CountNotifications(ctx context.Context, tx *sql.Tx, filter *model.NotificationFilter) (int64, error) {
	wrapMsg := "unable to count notifications"
	var total int64

	// Build the query.
	builder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("count(*)").
		From("notifications")
	statement, args, err := applyFilter(builder, filter).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the query.
	err = tx.QueryRowContext(ctx, statement, args...).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return total, nil
}

// BucketCount is one aggregation bucket in a notification statistics report.
type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// countGrouped runs a grouped count over the notifications table.
func countGrouped(
	ctx context.Context,
	tx *sql.Tx,
	groupExpr string,
	from, until time.Time,
) ([]BucketCount, error) {
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(groupExpr+" AS bucket", "count(*)").
		From("notifications").
		Where(sq.GtOrEq{"time_created": from}).
		Where(sq.Lt{"time_created": until}).
		GroupBy("bucket").
		OrderBy("bucket").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []BucketCount
	for rows.Next() {
		var count BucketCount
		if err := rows.Scan(&count.Bucket, &count.Count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

// NotificationStats aggregates notification volume over a reporting range.
type NotificationStats struct {
	From       time.Time     `json:"from"`
	Until      time.Time     `json:"until"`
	Total      int64         `json:"total"`
	ByPeriod   []BucketCount `json:"by_period"`
	ByType     []BucketCount `json:"by_type"`
	ByPriority []BucketCount `json:"by_priority"`
}

// GetNotificationStats computes per-period, per-type, and per-priority
// notification counts over the given range. The period expression must be
// either "day" or "month".
func GetNotificationStats(
	ctx context.Context,
	tx *sql.Tx,
	period string,
	from, until time.Time,
) (*NotificationStats, error) {
	wrapMsg := "unable to compute notification statistics"

	stats := &NotificationStats{From: from, Until: until}

	// Count the notifications in the range.
	filter := &model.NotificationFilter{After: &from, Before: &until}
	total, err := CountNotifications(ctx, tx, filter)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	stats.Total = total

	// Group by reporting period.
	stats.ByPeriod, err = countGrouped(ctx, tx, "to_char(time_created, '"+periodFormat(period)+"')", from, until)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Group by notification type.
	stats.ByType, err = countGrouped(ctx, tx, "notification_type", from, until)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Group by priority.
	stats.ByPriority, err = countGrouped(ctx, tx, "priority", from, until)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return stats, nil
}

// periodFormat maps a reporting period to the timestamp format used for its
// aggregation buckets. Anything other than "month" buckets by day.
func periodFormat(period string) string {
	if period == "month" {
		return "YYYY-MM"
	}
	return "YYYY-MM-DD"
}
