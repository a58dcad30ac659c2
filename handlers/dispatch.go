package handlers

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/fanout"
	"github.com/libraryhq/notifications/model"
)

// DispatchRequest represents a deserialized dispatch request published by a
// collaborating service, such as the loan service announcing a returned hold.
type DispatchRequest struct {
	RequestID string                 `json:"request_id"`
	Users     []string               `json:"users"`
	Subject   string                 `json:"subject"`
	Message   string                 `json:"message"`
	Priority  string                 `json:"priority"`
	Email     bool                   `json:"email"`
	Payload   map[string]interface{} `json:"payload"`
}

// Dispatch is a message handler for dispatch requests arriving over AMQP. The
// message category, taken from the routing key, selects the notification type.
type Dispatch struct {
	engine *fanout.Engine
}

// NewDispatch returns a new dispatch event handler.
func NewDispatch(engine *fanout.Engine) *Dispatch {
	return &Dispatch{engine: engine}
}

// HandleMessage handles a single AMQP delivery. Malformed requests are
// unrecoverable; a dispatch that can't start because a collaborator is
// unreachable is recoverable and will be redelivered.
func (dh *Dispatch) HandleMessage(ctx context.Context, category string, delivery amqp.Delivery) error {

	// Parse the message body.
	var request DispatchRequest
	err := json.Unmarshal(delivery.Body, &request)
	if err != nil {
		return NewUnrecoverableError("unable to parse message body: %s", err.Error())
	}

	// Fall back to normal priority when the producer didn't specify one.
	priority := model.Priority(request.Priority)
	if priority == "" {
		priority = model.PriorityNormal
	}

	// Use the request identifier from the delivery when the producer didn't
	// supply one, so redeliveries of the same message stay idempotent.
	requestID := request.RequestID
	if requestID == "" {
		requestID = delivery.MessageId
	}

	// Fan the notification out.
	summary, err := dh.engine.Dispatch(ctx, &model.BulkDispatchRequest{
		RequestID: requestID,
		Users:     request.Users,
		Type:      model.NotificationType(category),
		Subject:   request.Subject,
		Message:   request.Message,
		Priority:  priority,
		SendEmail: request.Email,
		Payload:   request.Payload,
	})
	if err != nil {
		if common.IsValidation(err) {
			return NewUnrecoverableError("invalid dispatch request: %s", err.Error())
		}
		return NewRecoverableError("unable to dispatch the request: %s", err.Error())
	}

	log.Infof(
		"dispatched %s notification to %d users (%d suppressed, %d failed)",
		category, summary.Created, summary.Suppressed, len(summary.Failed),
	)

	// Redeliver when any recipient failed. Deduplication keys make the retry
	// safe for the recipients that already got their notifications.
	if len(summary.Failed) > 0 {
		return NewRecoverableError("dispatch failed for %d of the target users", len(summary.Failed))
	}
	return nil
}
