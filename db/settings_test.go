package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/libraryhq/notifications/model"
)

func TestGetSettingsReturnsDefaultsWhenAbsent(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations: the user has never customized their settings.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM notification_settings WHERE user_id = .+").
		WithArgs("sarahr").
		WillReturnRows(sqlmock.NewRows(settingsColumns))
	mock.ExpectRollback()

	// Look up the settings.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	settings, err := GetSettings(ctx, tx, "sarahr")
	assert.NoError(err, "an absent settings row should yield the defaults, not an error")
	assert.Equal(model.DefaultSettings("sarahr"), settings)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestGetSettings(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	rows := sqlmock.NewRows(settingsColumns).
		AddRow("sarahr", true, true, false, true, true, true, false, "daily", "22:00", "06:00")
	mock.ExpectQuery("SELECT .+ FROM notification_settings WHERE user_id = .+").
		WithArgs("sarahr").
		WillReturnRows(rows)
	mock.ExpectRollback()

	// Look up the settings.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	settings, err := GetSettings(ctx, tx, "sarahr")
	assert.NoError(err, "unexpected error occurred while looking up the settings")
	assert.False(settings.LoanReminders)
	assert.Equal(model.FrequencyDaily, settings.Frequency)
	assert.Equal("22:00", settings.QuietHoursStart)
	assert.Equal("06:00", settings.QuietHoursEnd)
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestSaveSettings(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notification_settings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	// Save the settings.
	settings := model.DefaultSettings("sarahr")
	settings.Frequency = model.FrequencyWeekly
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	err = SaveSettings(ctx, tx, settings)
	assert.NoError(err, "unexpected error occurred while saving the settings")
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}

func TestResetSettings(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	ctx := context.Background()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM notification_settings WHERE user_id = .+").
		WithArgs("sarahr").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	// Reset the settings.
	tx, err := db.Begin()
	assert.NoError(err, "unable to begin a transaction")
	err = ResetSettings(ctx, tx, "sarahr")
	assert.NoError(err, "unexpected error occurred while resetting the settings")
	_ = tx.Rollback()

	// Verify that all mock expectations were met.
	err = mock.ExpectationsWereMet()
	assert.NoError(err, "not all mock expectations were met")
}
