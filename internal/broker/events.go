package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"apparel-service/internal/models"
	"apparel-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// orderKey keeps all events of one order on one partition
func orderKey(orderID uuid.UUID) string {
	return "order-" + orderID.String()
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onProductionUpdate func(context.Context, *models.ProductionUpdateEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnProductionUpdate registers a handler for ProductionUpdate events
func (eh *EventHandler) OnProductionUpdate(handler func(context.Context, *models.ProductionUpdateEvent) error) {
	eh.onProductionUpdate = handler
}

// eventType prefers the message header and falls back to the body envelope
func eventType(msg kafka.Message, base models.BaseEvent) string {
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return base.EventType
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return Permanent(fmt.Errorf("failed to unmarshal base event: %w", err))
	}
	kind := eventType(msg, baseEvent)

	eh.logger.Debug("Handling event",
		zap.String("event_type", kind),
		zap.String("event_id", baseEvent.EventID))

	switch kind {
	case models.EventTypeProductionUpdate:
		if eh.onProductionUpdate != nil {
			var event models.ProductionUpdateEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return Permanent(fmt.Errorf("failed to unmarshal ProductionUpdate event: %w", err))
			}
			return eh.onProductionUpdate(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", kind))
	}

	return nil
}
