package service

import (
	"context"

	"apparel-service/internal/models"
	"apparel-service/internal/payment"
)

// PaymentGateway creates and verifies payment authorizations
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*payment.Intent, error)
	ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error)
}

// EventPublisher emits domain events after their transaction commits
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// IdempotencyStore maps client idempotency keys to created orders
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string) (orderID string, claimed bool, err error)
	CompleteIdempotencyKey(ctx context.Context, key, orderID string) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// BlobStore keeps uploaded file bytes
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}
