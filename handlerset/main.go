// Package handlerset owns the AMQP client and routes inbound dispatch
// deliveries to the message handler registered for their category.
package handlerset

import (
	"context"
	"strings"

	"github.com/cyverse-de/messaging/v9"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/handlers"
)

var log = logrus.WithFields(logrus.Fields{"package": "handlerset"})

// HandlerSet represents a set of AMQP message handlers.
type HandlerSet struct {
	amqpClient *messaging.Client
	handlerFor map[string]handlers.MessageHandler
}

// New creates a new handler set.
func New(amqpSettings *common.AMQPSettings, handlerFor map[string]handlers.MessageHandler) (*HandlerSet, error) {
	wrapMsg := "unable to create the message handler set"

	// Create the AMQP client.
	amqpClient, err := messaging.NewClient(amqpSettings.URI, false)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Configure the client for publishing outbound notifications and email
	// requests.
	err = amqpClient.SetupPublishing(amqpSettings.ExchangeName)
	if err != nil {
		amqpClient.Close()
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Build and return the handler set.
	handlerSet := HandlerSet{
		amqpClient: amqpClient,
		handlerFor: handlerFor,
	}
	return &handlerSet, nil
}

// Client returns the AMQP client, which also serves as the outbound messaging
// client for the fan-out engine.
func (hs *HandlerSet) Client() *messaging.Client {
	return hs.amqpClient
}

// messageCategory extracts the category from a delivery's routing key. The
// category is the final component: `notifications.dispatch.loan` maps to the
// handler registered for `loan`.
func messageCategory(routingKey string) string {
	components := strings.Split(routingKey, ".")
	return components[len(components)-1]
}

// handleDelivery routes one delivery to the handler registered for its
// category, acknowledging or rejecting the delivery based on the outcome.
func (hs *HandlerSet) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	category := messageCategory(delivery.RoutingKey)

	handler, ok := hs.handlerFor[category]
	if !ok {
		log.Errorf("no handler registered for message category `%s`", category)
		_ = delivery.Reject(false)
		return
	}

	err := handler.HandleMessage(ctx, category, delivery)
	switch err.(type) {
	case nil:
		_ = delivery.Ack(false)
	case handlers.RecoverableError:
		log.Errorf("requeueing delivery: %s", err.Error())
		_ = delivery.Reject(true)
	default:
		log.Errorf("dropping delivery: %s", err.Error())
		_ = delivery.Reject(false)
	}
}

// Listen registers the consumer for inbound dispatch requests and processes
// deliveries until the AMQP connection closes.
func (hs *HandlerSet) Listen(amqpSettings *common.AMQPSettings, queueName, routingKey string) {
	hs.amqpClient.AddConsumer(
		amqpSettings.ExchangeName,
		amqpSettings.ExchangeType,
		queueName,
		routingKey,
		hs.handleDelivery,
		100,
	)
	hs.amqpClient.Listen()
}

// Close closes a message handler set.
func (hs *HandlerSet) Close() {
	hs.amqpClient.Close()
}
