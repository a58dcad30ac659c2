package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/libraryhq/notifications/model"
)

// settingsColumns lists the columns selected when notification settings are
// loaded.
var settingsColumns = []string{
	"user_id",
	"email_enabled",
	"push_enabled",
	"loan_reminders",
	"new_book_alerts",
	"system_announcements",
	"review_responses",
	"marketing",
	"frequency",
	"quiet_hours_start",
	"quiet_hours_end",
}

// GetSettings returns the user's notification settings. A user who has never
// customized their settings gets the defaults; no row is created until the
// settings are first saved.
func GetSettings(ctx context.Context, tx *sql.Tx, user string) (*model.NotificationSettings, error) {
	wrapMsg := "unable to look up the notification settings"

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(settingsColumns...).
		From("notification_settings").
		Where(sq.Eq{"user_id": user}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var (
		settings   model.NotificationSettings
		quietStart sql.NullString
		quietEnd   sql.NullString
	)
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(
		&settings.User,
		&settings.EmailEnabled,
		&settings.PushEnabled,
		&settings.LoanReminders,
		&settings.NewBookAlerts,
		&settings.SystemAnnouncements,
		&settings.ReviewResponses,
		&settings.Marketing,
		&settings.Frequency,
		&quietStart,
		&quietEnd,
	)

	// A missing row means the user gets the defaults.
	if err == sql.ErrNoRows {
		return model.DefaultSettings(user), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	settings.QuietHoursStart = quietStart.String
	settings.QuietHoursEnd = quietEnd.String
	return &settings, nil
}

// SaveSettings stores the user's notification settings, replacing any settings
// that were stored previously.
func SaveSettings(ctx context.Context, tx *sql.Tx, settings *model.NotificationSettings) error {
	wrapMsg := "unable to save the notification settings"

	// Treat empty quiet-hours boundaries as NULL.
	var quietStart, quietEnd interface{}
	if settings.QuietHoursStart != "" {
		quietStart = settings.QuietHoursStart
	}
	if settings.QuietHoursEnd != "" {
		quietEnd = settings.QuietHoursEnd
	}

	// Build the upsert statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("notification_settings").
		Columns(settingsColumns...).
		Values(
			settings.User,
			settings.EmailEnabled,
			settings.PushEnabled,
			settings.LoanReminders,
			settings.NewBookAlerts,
			settings.SystemAnnouncements,
			settings.ReviewResponses,
			settings.Marketing,
			settings.Frequency,
			quietStart,
			quietEnd).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			push_enabled = EXCLUDED.push_enabled,
			loan_reminders = EXCLUDED.loan_reminders,
			new_book_alerts = EXCLUDED.new_book_alerts,
			system_announcements = EXCLUDED.system_announcements,
			review_responses = EXCLUDED.review_responses,
			marketing = EXCLUDED.marketing,
			frequency = EXCLUDED.frequency,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end`).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the upsert statement.
	_, err = tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// ResetSettings removes the user's stored notification settings so that
// subsequent reads return the defaults. Settings rows are never deleted for any
// other reason.
func ResetSettings(ctx context.Context, tx *sql.Tx, user string) error {
	wrapMsg := "unable to reset the notification settings"

	// Build the delete statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete("notification_settings").
		Where(sq.Eq{"user_id": user}).
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
