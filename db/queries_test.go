package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/libraryhq/notifications/model"
)

func TestListNotificationsFilters(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations. The filter should produce clauses for the user,
	// the unread flag, and the type, in that order.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM notifications WHERE user_id = .+ AND seen = .+ AND notification_type = .+ ORDER BY time_created DESC, id DESC LIMIT 20 OFFSET 0").
		WithArgs("sarahr", false, "loan").
		WillReturnRows(notificationRows(testNotification()))
	mock.ExpectRollback()

	// List the notifications.
	filter := &model.NotificationFilter{User: "sarahr", UnreadOnly: true, Type: model.TypeLoan}
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	listing, err := ListNotifications(ctx, tx, filter, model.Page{Number: 1, Size: 20})
	assert.NoError(err, "unexpected error occurred while listing notifications")
	assert.Len(listing, 1)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestListNotificationsSearch(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Free-text search matches the subject or the message.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM notifications WHERE \\(subject ILIKE .+ OR message ILIKE .+\\)").
		WithArgs("%overdue%", "%overdue%").
		WillReturnRows(notificationRows())
	mock.ExpectRollback()

	// List the notifications.
	filter := &model.NotificationFilter{Search: "overdue"}
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	listing, err := ListNotifications(ctx, tx, filter, model.Page{Number: 1, Size: 20})
	assert.NoError(err, "unexpected error occurred while listing notifications")
	assert.Empty(listing)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestCountNotifications(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"count"}).AddRow(int64(7))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM notifications WHERE user_id = .+").
		WithArgs("sarahr").
		WillReturnRows(rows)
	mock.ExpectRollback()

	// Count the notifications.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	total, err := CountNotifications(ctx, tx, &model.NotificationFilter{User: "sarahr"})
	assert.NoError(err, "unexpected error occurred while counting notifications")
	assert.Equal(int64(7), total)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestGetNotificationStats(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	from := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

	// Set up the expectations: the total, then one grouped count per breakdown.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM notifications").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))
	mock.ExpectQuery("SELECT to_char\\(time_created, 'YYYY-MM-DD'\\) AS bucket, count\\(\\*\\) FROM notifications").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).
			AddRow("2024-03-05", int64(5)).
			AddRow("2024-03-06", int64(7)))
	mock.ExpectQuery("SELECT notification_type AS bucket, count\\(\\*\\) FROM notifications").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).AddRow("loan", int64(12)))
	mock.ExpectQuery("SELECT priority AS bucket, count\\(\\*\\) FROM notifications").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).AddRow("normal", int64(12)))
	mock.ExpectRollback()

	// Compute the statistics.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	stats, err := GetNotificationStats(ctx, tx, "day", from, until)
	assert.NoError(err, "unexpected error occurred while computing statistics")
	assert.Equal(int64(12), stats.Total)
	assert.Len(stats.ByPeriod, 2)
	assert.Len(stats.ByType, 1)
	assert.Len(stats.ByPriority, 1)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}
