package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeProductionUpdate   = "PRODUCTION_UPDATE"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event envelope
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// OrderCreatedEvent published once an order transaction commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
}

// OrderStatusChangedEvent published after every committed status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID     uuid.UUID  `json:"order_id"`
	OrderItemID *uuid.UUID `json:"order_item_id,omitempty"`
	StatusType  string     `json:"status_type"`
	NewStatus   string     `json:"new_status"`
}

// ProductionUpdateEvent is sent by the print partner
type ProductionUpdateEvent struct {
	BaseEvent
	OrderID        uuid.UUID `json:"order_id"`
	Status         string    `json:"status"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
}
