// Package fanout implements the fan-out engine: expanding bulk, system-wide,
// and loan-reminder dispatch requests into one notification record per
// recipient, applying the delivery gate, deduplicating retries, and triggering
// outbound notification and email messages for recipients whose settings allow
// immediate delivery.
package fanout

import (
	"context"
	"database/sql"
	"time"

	"github.com/cyverse-de/messaging/v9"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/gate"
	"github.com/libraryhq/notifications/model"
)

var log = logrus.WithFields(logrus.Fields{"package": "fanout"})

// dedupNamespace is the UUID namespace used to derive deterministic record
// identifiers from (request, recipient) pairs. Retrying a dispatch request
// produces the same dedup keys, so duplicate inserts are ignored.
var dedupNamespace = uuid.MustParse("9c9ebd4c-5ff4-4cd9-9b60-ec8fa3e95de4")

// DedupKey returns the deterministic dedup key for one recipient of a dispatch
// request.
func DedupKey(requestID, user string) string {
	return uuid.NewSHA1(dedupNamespace, []byte(requestID+"|"+user)).String()
}

// DatabaseClient describes the database operations used by the fan-out engine.
type DatabaseClient interface {
	Begin() (*sql.Tx, error)
	Commit(*sql.Tx) error
	Rollback(*sql.Tx) error
	GetSettings(ctx context.Context, tx *sql.Tx, user string) (*model.NotificationSettings, error)
	SaveNotification(ctx context.Context, tx *sql.Tx, notification *model.Notification, dedupKey string) (bool, error)
	CountUnreadNotifications(ctx context.Context, tx *sql.Tx, user string) (int64, error)
}

// MessagingClient describes the outbound messaging operations used by the
// fan-out engine. Publication is fire-and-forget: failures are logged and never
// roll back notification creation.
type MessagingClient interface {
	PublishNotificationMessage(msg *messaging.WrappedNotificationMessage) error
	PublishEmailRequest(req *messaging.EmailRequest) error
}

// UserDirectory describes the user directory collaborator. ListActiveUsers
// pages through the identifiers of all active users; implementations apply the
// exclusion list server-side.
type UserDirectory interface {
	ListActiveUsers(ctx context.Context, excluding []string, offset, limit int) ([]string, error)
	LookupEmailAddress(ctx context.Context, user string) (string, error)
}

// directoryPageSize is the number of user identifiers requested from the user
// directory at a time during system-wide fan-out.
const directoryPageSize = 200

// Engine expands dispatch requests into per-recipient notification records.
type Engine struct {
	dbClient        DatabaseClient
	messagingClient MessagingClient
	directory       UserDirectory
	now             func() time.Time
}

// New returns a new fan-out engine.
func New(dbClient DatabaseClient, messagingClient MessagingClient, directory UserDirectory) *Engine {
	return &Engine{
		dbClient:        dbClient,
		messagingClient: messagingClient,
		directory:       directory,
		now:             time.Now,
	}
}

// validateRequestFields checks the notification fields shared by all dispatch
// request types.
func validateRequestFields(t model.NotificationType, subject, message string, priority model.Priority) error {
	var validationErr *common.ValidationError
	addError := func(field, format string, a ...interface{}) {
		if validationErr == nil {
			validationErr = common.NewValidationError(field, format, a...)
		} else {
			validationErr.Add(field, format, a...)
		}
	}

	if !model.ValidNotificationType(t) {
		addError("type", "unrecognized notification type `%s`", t)
	}
	if len(subject) < 1 || len(subject) > model.MaxSubjectLength {
		addError("subject", "must be between 1 and %d characters", model.MaxSubjectLength)
	}
	if len(message) < 1 || len(message) > model.MaxMessageLength {
		addError("message", "must be between 1 and %d characters", model.MaxMessageLength)
	}
	if !model.ValidPriority(priority) {
		addError("priority", "unrecognized priority `%s`", priority)
	}

	if validationErr != nil {
		return validationErr
	}
	return nil
}

// dedupeUsers removes duplicate user identifiers while preserving order.
func dedupeUsers(users []string) []string {
	seen := make(map[string]bool, len(users))
	deduped := make([]string, 0, len(users))
	for _, user := range users {
		if user == "" || seen[user] {
			continue
		}
		seen[user] = true
		deduped = append(deduped, user)
	}
	return deduped
}

// dispatchOne creates the notification record for a single recipient and, when
// the delivery gate allows immediate delivery, publishes the outbound
// notification message and any requested email trigger. The boolean return
// values indicate whether a record was created and whether it was suppressed.
func (e *Engine) dispatchOne(
	ctx context.Context,
	requestID, user string,
	notificationType model.NotificationType,
	subject, message string,
	priority model.Priority,
	sendEmail bool,
	payload map[string]interface{},
) (created, suppressed bool, err error) {
	now := e.now()

	// Begin a database transaction.
	tx, err := e.dbClient.Begin()
	if err != nil {
		return false, false, err
	}
	defer e.dbClient.Rollback(tx) // nolint:errcheck

	// Load the recipient's settings and evaluate the delivery gate. A client
	// may report an absent settings row as a nil pointer; treat it as the
	// defaults.
	settings, err := e.dbClient.GetSettings(ctx, tx, user)
	if err != nil {
		return false, false, err
	}
	if settings == nil {
		settings = model.DefaultSettings(user)
	}
	notification := &model.Notification{
		ID:          uuid.Must(uuid.NewV7()).String(),
		User:        user,
		Type:        notificationType,
		Subject:     subject,
		Message:     message,
		Priority:    priority,
		TimeCreated: now,
		Payload:     payload,
	}
	decision := gate.Evaluate(notification, settings, now)
	notification.Deliverable = decision.Deliver
	notification.DeferredUntil = decision.DeferredUntil

	// Store the record regardless of the gate outcome; history is always
	// retained. A dedup conflict means a retry already created this record.
	created, err = e.dbClient.SaveNotification(ctx, tx, notification, DedupKey(requestID, user))
	if err != nil {
		return false, false, err
	}

	// Count the recipient's unread notifications for the outbound message.
	var total int64
	if created && decision.Immediate() {
		total, err = e.dbClient.CountUnreadNotifications(ctx, tx, user)
		if err != nil {
			return false, false, err
		}
	}

	// Commit the transaction.
	if err = e.dbClient.Commit(tx); err != nil {
		return false, false, err
	}

	// Messaging happens after the commit so that a publication failure never
	// rolls back record creation.
	if created && decision.Immediate() {
		e.publishNotification(notification, total, sendEmail)
		if sendEmail && settings.EmailEnabled {
			e.publishEmailRequest(ctx, notification)
		}
	}

	// A retry that hit a dedup conflict recorded nothing, so it doesn't count
	// as a suppression either.
	return created, created && decision.Suppressed(), nil
}

// publishNotification publishes the outbound message for a newly created,
// immediately deliverable notification.
func (e *Engine) publishNotification(notification *model.Notification, total int64, sendEmail bool) {
	outgoing := &messaging.WrappedNotificationMessage{
		Total: total,
		Message: &messaging.NotificationMessage{
			Deleted:       false,
			Email:         sendEmail,
			EmailTemplate: emailTemplate(notification.Type),
			Message: map[string]interface{}{
				"id":        notification.ID,
				"timestamp": common.FormatTimestamp(notification.TimeCreated),
				"text":      notification.Subject,
			},
			Payload: notification.Payload,
			Seen:    false,
			Subject: notification.Subject,
			Type:    string(notification.Type),
			User:    notification.User,
		},
	}
	if err := e.messagingClient.PublishNotificationMessage(outgoing); err != nil {
		log.Errorf("unable to publish the notification message for %s: %s", notification.ID, err.Error())
	}
}

// publishEmailRequest looks up and validates the recipient's email address and
// publishes an email request for the notification.
func (e *Engine) publishEmailRequest(ctx context.Context, notification *model.Notification) {
	emailAddress, err := e.directory.LookupEmailAddress(ctx, notification.User)
	if err != nil {
		log.Errorf("unable to look up the email address for %s: %s", notification.User, err.Error())
		return
	}
	if err := common.ValidateEmailAddress(emailAddress); err != nil {
		log.Errorf("invalid email address for %s: %s", notification.User, err.Error())
		return
	}

	emailRequest := &messaging.EmailRequest{
		TemplateName: emailTemplate(notification.Type),
		TemplateValues: map[string]interface{}{
			"user":    notification.User,
			"subject": notification.Subject,
			"message": notification.Message,
		},
		Subject:   notification.Subject,
		ToAddress: emailAddress,
	}
	if err := e.messagingClient.PublishEmailRequest(emailRequest); err != nil {
		log.Errorf("unable to publish the email request for %s: %s", notification.ID, err.Error())
	}
}

// emailTemplate maps a notification type to the email template used for it.
func emailTemplate(t model.NotificationType) string {
	switch t {
	case model.TypeLoan:
		return "loan_reminder"
	case model.TypeBook:
		return "new_book_alert"
	case model.TypeReview:
		return "review_response"
	default:
		return "library_announcement"
	}
}

// fanOut dispatches one notification per target user, collecting per-recipient
// failures rather than aborting the remaining work.
func (e *Engine) fanOut(
	ctx context.Context,
	requestID string,
	users []string,
	notificationType model.NotificationType,
	subject, message string,
	priority model.Priority,
	sendEmail bool,
	payload map[string]interface{},
) *model.DispatchSummary {
	summary := &model.DispatchSummary{}
	for _, user := range users {
		created, suppressed, err := e.dispatchOne(
			ctx, requestID, user, notificationType, subject, message, priority, sendEmail, payload,
		)
		if err != nil {
			log.Errorf("unable to dispatch to %s: %s", user, err.Error())
			summary.Failed = append(summary.Failed, user)
			continue
		}
		if created {
			summary.Created++
		}
		if suppressed {
			summary.Suppressed++
		}
	}
	return summary
}

// Dispatch expands a bulk dispatch request into one notification record per
// recipient. The target list is deduplicated and independently checked against
// the recipient ceiling. Per-recipient failures are reported in the summary.
func (e *Engine) Dispatch(ctx context.Context, request *model.BulkDispatchRequest) (*model.DispatchSummary, error) {
	if err := validateRequestFields(request.Type, request.Subject, request.Message, request.Priority); err != nil {
		return nil, err
	}

	users := dedupeUsers(request.Users)
	if len(users) == 0 {
		return nil, common.NewValidationError("users", "at least one target user is required")
	}
	if len(users) > model.MaxDispatchTargets {
		return nil, common.NewValidationError("users", "at most %d target users are allowed", model.MaxDispatchTargets)
	}

	requestID := request.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return e.fanOut(
		ctx, requestID, users, request.Type, request.Subject, request.Message,
		request.Priority, request.SendEmail, request.Payload,
	), nil
}

// DispatchSystemWide expands a system-wide dispatch request into one
// notification record per active user, paging through the user directory so
// that the full user population is never loaded into memory at once.
func (e *Engine) DispatchSystemWide(
	ctx context.Context,
	request *model.SystemWideDispatchRequest,
) (*model.DispatchSummary, error) {
	if err := validateRequestFields(request.Type, request.Subject, request.Message, request.Priority); err != nil {
		return nil, err
	}

	requestID := request.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	// The directory applies the exclusion list, but it costs little to check
	// again here.
	excluded := make(map[string]bool, len(request.ExcludedUsers))
	for _, user := range request.ExcludedUsers {
		excluded[user] = true
	}

	summary := &model.DispatchSummary{}
	for offset := 0; ; offset += directoryPageSize {
		page, err := e.directory.ListActiveUsers(ctx, request.ExcludedUsers, offset, directoryPageSize)
		if err != nil {
			if offset == 0 {
				return nil, common.NewDependencyError(err, "unable to list active users")
			}
			return nil, common.NewDependencyError(err, "user directory failed mid-dispatch at offset %d", offset)
		}

		users := make([]string, 0, len(page))
		for _, user := range page {
			if !excluded[user] {
				users = append(users, user)
			}
		}

		pageSummary := e.fanOut(
			ctx, requestID, users, request.Type, request.Subject, request.Message,
			request.Priority, request.SendEmail, request.Payload,
		)
		summary.Created += pageSummary.Created
		summary.Suppressed += pageSummary.Suppressed
		summary.Failed = append(summary.Failed, pageSummary.Failed...)

		if len(page) < directoryPageSize {
			break
		}
	}

	return summary, nil
}
