// Package query builds paginated, filtered views over notification records for
// user listings, admin views, statistics, exports, and retention cleanup.
// Exports reuse the exact listing query path, so a filter always means the same
// thing no matter how the results leave the system.
package query

import (
	"context"
	"time"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/db"
	"github.com/libraryhq/notifications/model"
)

// DatabaseClient describes the database operations used by the query layer.
type DatabaseClient interface {
	ListNotifications(ctx context.Context, filter *model.NotificationFilter, page model.Page) ([]*model.Notification, error)
	CountNotifications(ctx context.Context, filter *model.NotificationFilter) (int64, error)
	GetNotificationStats(ctx context.Context, period string, from, until time.Time) (*db.NotificationStats, error)
	DeleteNotificationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Listing is one page of notifications along with the total number of matches.
type Listing struct {
	Notifications []*model.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	Page          int                   `json:"page"`
	PageSize      int                   `json:"page_size"`
}

// Service answers filtered notification queries.
type Service struct {
	dbClient DatabaseClient
	now      func() time.Time
}

// New returns a new query service.
func New(dbClient DatabaseClient) *Service {
	return &Service{dbClient: dbClient, now: time.Now}
}

// normalizePage validates the pagination parameters, applying the defaults for
// zero values.
func normalizePage(page model.Page) (model.Page, error) {
	if page.Number == 0 {
		page.Number = 1
	}
	if page.Size == 0 {
		page.Size = model.DefaultPageSize
	}
	if page.Number < 1 {
		return page, common.NewValidationError("page", "page numbers start at 1")
	}
	if page.Size < 1 || page.Size > model.MaxPageSize {
		return page, common.NewValidationError("limit", "must be between 1 and %d", model.MaxPageSize)
	}
	return page, nil
}

// validateFilter rejects filter fields that would silently match nothing.
func validateFilter(filter *model.NotificationFilter) error {
	if filter.Type != "" && !model.ValidNotificationType(filter.Type) {
		return common.NewValidationError("type", "unrecognized notification type `%s`", filter.Type)
	}
	if filter.Priority != "" && !model.ValidPriority(filter.Priority) {
		return common.NewValidationError("priority", "unrecognized priority `%s`", filter.Priority)
	}
	return nil
}

// List returns one page of the notifications matching the filter, newest first,
// along with the total match count.
func (s *Service) List(ctx context.Context, filter *model.NotificationFilter, page model.Page) (*Listing, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	page, err := normalizePage(page)
	if err != nil {
		return nil, err
	}

	notifications, err := s.dbClient.ListNotifications(ctx, filter, page)
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to list notifications")
	}
	total, err := s.dbClient.CountNotifications(ctx, filter)
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to count notifications")
	}

	return &Listing{
		Notifications: notifications,
		Total:         total,
		Page:          page.Number,
		PageSize:      page.Size,
	}, nil
}

// Stats computes aggregate notification counts over a reporting range. The
// period selects the aggregation bucket: "day" or "month".
func (s *Service) Stats(ctx context.Context, period string, from, until time.Time) (*db.NotificationStats, error) {
	if period != "day" && period != "month" {
		return nil, common.NewValidationError("period", "must be `day` or `month`")
	}
	if until.IsZero() {
		until = s.now()
	}
	if !from.Before(until) {
		return nil, common.NewValidationError("range", "the start of the range must precede its end")
	}

	stats, err := s.dbClient.GetNotificationStats(ctx, period, from, until)
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to compute notification statistics")
	}
	return stats, nil
}

// Cleanup permanently removes every notification older than the given number of
// days, returning the number of notifications removed.
func (s *Service) Cleanup(ctx context.Context, daysOld int) (int64, error) {
	if daysOld < 1 {
		return 0, common.NewValidationError("days_old", "must be at least 1")
	}

	cutoff := s.now().AddDate(0, 0, -daysOld)
	removed, err := s.dbClient.DeleteNotificationsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, common.NewDependencyError(err, "unable to remove old notifications")
	}
	return removed, nil
}
