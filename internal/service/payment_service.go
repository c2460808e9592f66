package service

import (
	"context"
	"errors"
	"strings"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"
	"apparel-service/internal/payment"
	"apparel-service/internal/store"
	"apparel-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentService confirms gateway payments against orders
type PaymentService struct {
	store    *store.Store
	gateway  PaymentGateway
	status   *StatusService
	currency string
	logger   *zap.Logger
}

// NewPaymentService creates a new payment service. Intents are only
// accepted in currency.
func NewPaymentService(store *store.Store, gateway PaymentGateway, status *StatusService, currency string) *PaymentService {
	return &PaymentService{
		store:    store,
		gateway:  gateway,
		status:   status,
		currency: currency,
		logger:   util.GetLogger(),
	}
}

// CapturePayment marks an order paid once the gateway reports its intent
// succeeded for this order and amount. Nothing is written otherwise.
func (ps *PaymentService) CapturePayment(ctx context.Context, orderID uuid.UUID, intentID string) (*models.Order, error) {
	return ps.capture(ctx, orderID, intentID, nil)
}

// capture verifies the intent and applies the paid transition. With ev set,
// the event is recorded in the same transaction and a repeat returns nil, nil.
func (ps *PaymentService) capture(ctx context.Context, orderID uuid.UUID, intentID string, ev *eventRef) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CapturePayment",
		attribute.String("order_id", orderID.String()))
	defer span.End()

	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, apperr.Validation("Missing required field: payment_intent_id")
	}

	order, err := ps.store.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal("Failed to load order", err)
	}
	if order == nil {
		return nil, apperr.NotFound("Order not found")
	}

	intent, err := ps.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		util.RecordError(span, err)
		util.PaymentCapturesTotal.WithLabelValues("gateway_error").Inc()
		ps.logger.Error("Failed to retrieve payment intent",
			zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, apperr.Internal("Failed to verify payment", err)
	}

	if !intent.Succeeded() {
		util.PaymentCapturesTotal.WithLabelValues("not_completed").Inc()
		ps.logger.Info("Payment not completed",
			zap.String("order_id", orderID.String()),
			zap.String("intent_status", intent.Status))
		return nil, apperr.PaymentNotCompleted("Payment not completed")
	}

	if !intentMatchesOrder(intent, order, ps.currency) {
		util.PaymentCapturesTotal.WithLabelValues("mismatch").Inc()
		ps.logger.Warn("Payment intent does not match order",
			zap.String("order_id", orderID.String()),
			zap.String("intent_id", intent.ID),
			zap.String("intent_currency", intent.Currency))
		return nil, apperr.PaymentNotCompleted("Payment not completed")
	}

	updated, err := ps.status.updatePaymentStatus(ctx, orderID, models.PaymentStatusPaid, &intent.ID, ev)
	if err != nil {
		util.PaymentCapturesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if updated == nil {
		util.PaymentCapturesTotal.WithLabelValues("duplicate").Inc()
		return nil, nil
	}

	util.PaymentCapturesTotal.WithLabelValues("captured").Inc()
	return updated, nil
}

// intentMatchesOrder accepts only an intent created for this order, in the
// store currency, for the order total
func intentMatchesOrder(intent *payment.Intent, order *models.Order, currency string) bool {
	if intent.Metadata[payment.MetadataOrderID] != order.ID.String() {
		return false
	}
	if !strings.EqualFold(intent.Currency, currency) {
		return false
	}
	return intent.AmountMinor == payment.ToMinorUnits(order.Total)
}

// HandleWebhook verifies and applies a gateway notification. Each provider
// event id is applied at most once: the id is recorded in the transaction
// that applies it.
func (ps *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	event, err := ps.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return apperr.Validation("Invalid webhook signature")
		}
		return apperr.Validation("Invalid webhook payload")
	}

	processed, err := ps.store.IsEventProcessed(ctx, event.ID)
	if err != nil {
		return apperr.Internal("Failed to check webhook event", err)
	}
	if processed {
		ps.logger.Info("Webhook event already processed", zap.String("event_id", event.ID))
		return nil
	}

	switch event.Type {
	case payment.EventIntentSucceeded, payment.EventIntentFailed:
		return ps.applyIntentEvent(ctx, event)
	default:
		ps.logger.Debug("Ignoring webhook event", zap.String("type", event.Type))
		return nil
	}
}

func (ps *PaymentService) applyIntentEvent(ctx context.Context, event *payment.WebhookEvent) error {
	orderID, err := uuid.Parse(event.Intent.Metadata[payment.MetadataOrderID])
	if err != nil {
		// not one of ours
		ps.logger.Warn("Webhook intent has no order id", zap.String("intent_id", event.Intent.ID))
		ps.acknowledge(ctx, event)
		return nil
	}

	ev := &eventRef{id: event.ID, eventType: event.Type}
	if event.Type == payment.EventIntentSucceeded {
		_, err = ps.capture(ctx, orderID, event.Intent.ID, ev)
	} else {
		_, err = ps.status.updatePaymentStatus(ctx, orderID, models.PaymentStatusFailed, &event.Intent.ID, ev)
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindPaymentNotCompleted:
		// a retry can never succeed, so the event is acknowledged
		ps.logger.Warn("Webhook event not applied",
			zap.String("event_type", event.Type),
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		ps.acknowledge(ctx, event)
		return nil
	}
	return err
}

// acknowledge records an event that was rejected without a transition, so
// redeliveries stop at the processed check
func (ps *PaymentService) acknowledge(ctx context.Context, event *payment.WebhookEvent) {
	if err := ps.store.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
		ps.logger.Warn("Failed to mark webhook event processed",
			zap.String("event_id", event.ID), zap.Error(err))
	}
}
