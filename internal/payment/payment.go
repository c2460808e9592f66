// Package payment talks to the card payment provider. The rest of the
// service only sees Intent and WebhookEvent; provider types stay here.
package payment

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Intent statuses reported by the provider
const (
	StatusSucceeded             = "succeeded"
	StatusProcessing            = "processing"
	StatusRequiresAction        = "requires_action"
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusCanceled              = "canceled"
)

// Webhook event types the service reacts to
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// MetadataOrderID is the intent metadata key carrying the order id
const MetadataOrderID = "order_id"

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// IntentRequest asks the provider to authorize an order total
type IntentRequest struct {
	OrderID     string
	OrderNumber string
	AmountMinor int64
	Currency    string
	Email       string
}

// Intent is the provider's view of a payment authorization
type Intent struct {
	ID           string
	Status       string
	ClientSecret string
	AmountMinor  int64
	Currency     string
	Metadata     map[string]string
}

// Succeeded reports whether the provider considers the intent paid
func (i *Intent) Succeeded() bool {
	return i.Status == StatusSucceeded
}

// WebhookEvent is a verified provider notification about an intent
type WebhookEvent struct {
	ID     string
	Type   string
	Intent Intent
}

// ToMinorUnits converts a decimal amount to integer cents, rounding half
// away from zero
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
