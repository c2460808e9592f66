package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"apparel-service/internal/util"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// StripeGateway creates and retrieves Stripe PaymentIntents
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
	logger        *zap.Logger
}

// NewStripeGateway creates a gateway using the default Stripe backends
func NewStripeGateway(secretKey, webhookSecret string, timeout time.Duration) *StripeGateway {
	return NewStripeGatewayWithBackends(secretKey, webhookSecret, timeout, nil)
}

// NewStripeGatewayWithBackends creates a gateway over custom backends, e.g.
// a local stub server
func NewStripeGatewayWithBackends(secretKey, webhookSecret string, timeout time.Duration, backends *stripe.Backends) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)

	return &StripeGateway{
		api:           api,
		webhookSecret: webhookSecret,
		timeout:       timeout,
		logger:        util.GetLogger(),
	}
}

// CreateIntent opens a PaymentIntent for an order total. The order id is
// used as the Stripe idempotency key so a retried request reuses the intent.
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		util.PaymentGatewayLatency.WithLabelValues("create_intent").Observe(time.Since(start).Seconds())
	}()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + req.OrderID)
	params.AddMetadata(MetadataOrderID, req.OrderID)
	params.AddMetadata("order_number", req.OrderNumber)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	g.logger.Info("Payment intent created",
		zap.String("order_id", req.OrderID),
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", req.AmountMinor))
	return toIntent(pi), nil
}

// RetrieveIntent fetches the current state of an intent from Stripe
func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		util.PaymentGatewayLatency.WithLabelValues("retrieve_intent").Observe(time.Since(start).Seconds())
	}()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent %s: %w", intentID, err)
	}
	return toIntent(pi), nil
}

// ParseWebhook verifies a Stripe-Signature header and decodes intent events.
// Events about other objects come back with an empty Intent.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	switch out.Type {
	case EventIntentSucceeded, EventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		out.Intent = *toIntent(&pi)
	}
	return out, nil
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
