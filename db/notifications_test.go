package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/libraryhq/notifications/model"
)

const testNotificationID = "018e9a7b-1111-7000-8000-0123456789ab"
const testDedupKey = "46ae63be-7030-4cdd-8eb9-66aa49fcf38b"

func testNotification() *model.Notification {
	return &model.Notification{
		ID:          testNotificationID,
		User:        "sarahr",
		Type:        model.TypeBook,
		Subject:     "New arrivals this week",
		Message:     "Five new titles are available for loan.",
		Priority:    model.PriorityNormal,
		Seen:        false,
		Deliverable: true,
		TimeCreated: time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveNotification(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	// Save a notification.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	created, err := SaveNotification(ctx, tx, testNotification(), testDedupKey)
	assert.NoError(err, "unexpected error occurred while saving the notification")
	assert.True(created, "the notification should have been created")
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestSaveNotificationDuplicate(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// A dedup-key conflict affects zero rows.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// Save a notification that was already created by a retried request.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	created, err := SaveNotification(ctx, tx, testNotification(), testDedupKey)
	assert.NoError(err, "a duplicate save should not be an error")
	assert.False(created, "the duplicate should not count as created")
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestMarkAllNotificationsSeen(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE notifications SET seen = .+ WHERE user_id = .+ AND seen = .+").
		WithArgs(true, "sarahr", false).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectRollback()

	// Mark all of the user's notifications as seen.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	updated, err := MarkAllNotificationsSeen(ctx, tx, "sarahr")
	assert.NoError(err, "unexpected error occurred while marking notifications as seen")
	assert.Equal(int64(3), updated)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestCountUnreadNotifications(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations. Suppressed notifications never count.
	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"count"}).AddRow(int64(42))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM notifications WHERE user_id = .+ AND seen = .+ AND deliverable = .+").
		WithArgs("sarahr", false, true).
		WillReturnRows(rows)
	mock.ExpectRollback()

	// Count the unread notifications.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	total, err := CountUnreadNotifications(ctx, tx, "sarahr")
	assert.NoError(err, "unexpected error occurred while counting unread notifications")
	assert.Equal(int64(42), total)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func notificationRows(notifications ...*model.Notification) *sqlmock.Rows {
	rows := sqlmock.NewRows(notificationColumns)
	for _, n := range notifications {
		rows.AddRow(
			n.ID, n.User, string(n.Type), n.Subject, n.Message, string(n.Priority),
			n.Seen, n.Deliverable, nil, n.TimeCreated, nil,
		)
	}
	return rows
}

func TestListDeliverableAfter(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	now := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM notifications WHERE user_id = .+ AND seen = .+ AND deliverable = .+ AND id > .+").
		WillReturnRows(notificationRows(testNotification()))
	mock.ExpectRollback()

	// List the deliverable notifications past the cursor.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	listing, err := ListDeliverableAfter(ctx, tx, "sarahr", "018e9a7b-0000-7000-8000-000000000000", now, 100)
	assert.NoError(err, "unexpected error occurred while listing notifications")
	if assert.Len(listing, 1) {
		assert.Equal(testNotificationID, listing[0].ID)
		assert.Equal("sarahr", listing[0].User)
	}
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestGetNotificationNotFound(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM notifications WHERE id = .+").
		WithArgs(testNotificationID).
		WillReturnRows(sqlmock.NewRows(notificationColumns))
	mock.ExpectRollback()

	// Look up a notification that doesn't exist.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	notification, err := GetNotification(ctx, tx, testNotificationID)
	assert.NoError(err, "a missing notification should not be an error at this layer")
	assert.Nil(notification)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestDeleteNotificationsOlderThan(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	cutoff := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM notifications WHERE time_created < .+").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 17))
	mock.ExpectRollback()

	// Remove the old notifications.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	removed, err := DeleteNotificationsOlderThan(ctx, tx, cutoff)
	assert.NoError(err, "unexpected error occurred while removing old notifications")
	assert.Equal(int64(17), removed)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}
