package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"
	"apparel-service/internal/store"
	"apparel-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// paymentTransitions lists the statuses each payment status may move to.
// Refund states are not modelled.
var paymentTransitions = map[string]map[string]bool{
	models.PaymentStatusPending: {models.PaymentStatusPaid: true, models.PaymentStatusFailed: true},
	models.PaymentStatusFailed: {
		models.PaymentStatusPending: true,
		models.PaymentStatusPaid:   true,
		models.PaymentStatusFailed: true,
	},
	models.PaymentStatusPaid: {models.PaymentStatusPaid: true},
}

var productionRank = map[string]int{
	models.ProductionStatusPending:      0,
	models.ProductionStatusInProduction: 1,
	models.ProductionStatusShipped:      2,
	models.ProductionStatusDelivered:    3,
}

func checkPaymentTransition(from, to string) error {
	if _, known := paymentTransitions[to]; !known {
		return apperr.Validation(fmt.Sprintf("Unknown payment status: %s", to))
	}
	if !paymentTransitions[from][to] {
		return apperr.Validation(fmt.Sprintf("Invalid payment status transition: %s -> %s", from, to))
	}
	return nil
}

// checkProductionTransition only lets production move forward. Repeating
// the current status is allowed.
func checkProductionTransition(from, to string) error {
	toRank, known := productionRank[to]
	if !known {
		return apperr.Validation(fmt.Sprintf("Unknown production status: %s", to))
	}
	fromRank, ok := productionRank[from]
	if ok && toRank < fromRank {
		return apperr.Validation(fmt.Sprintf("Invalid production status transition: %s -> %s", from, to))
	}
	return nil
}

// eventRef names an external event whose transition is applied at most once
type eventRef struct {
	id        string
	eventType string
}

// errEventApplied aborts a transaction whose event was recorded earlier
var errEventApplied = errors.New("event already applied")

// claimEvent records ev in the transaction that applies it. The claim and
// the transition commit or roll back together.
func claimEvent(ctx context.Context, tx *store.Tx, ev *eventRef) error {
	if ev == nil || ev.id == "" {
		return nil
	}
	claimed, err := tx.ClaimEvent(ctx, ev.id, ev.eventType)
	if err != nil {
		return fmt.Errorf("failed to record event %s: %w", ev.id, err)
	}
	if !claimed {
		return errEventApplied
	}
	return nil
}

// StatusService applies payment and production transitions to orders
type StatusService struct {
	store   *store.Store
	events  EventPublisher
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatusService creates a new status service. events may be nil.
func NewStatusService(store *store.Store, events EventPublisher, timeout time.Duration) *StatusService {
	return &StatusService{
		store:   store,
		events:  events,
		timeout: timeout,
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// UpdateOrderPaymentStatus moves an order's payment status and records the
// transition. intentID, when set, replaces the stored payment intent.
func (s *StatusService) UpdateOrderPaymentStatus(ctx context.Context, orderID uuid.UUID, status string, intentID *string) (*models.Order, error) {
	return s.updatePaymentStatus(ctx, orderID, status, intentID, nil)
}

// updatePaymentStatus applies a payment transition. With ev set, a
// transition already applied for ev returns nil, nil.
func (s *StatusService) updatePaymentStatus(ctx context.Context, orderID uuid.UUID, status string, intentID *string, ev *eventRef) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StatusService.UpdateOrderPaymentStatus",
		attribute.String("order_id", orderID.String()),
		attribute.String("status", status))
	defer span.End()

	if intentID != nil && strings.TrimSpace(*intentID) == "" {
		intentID = nil
	}

	var updated *models.Order
	err := s.inTx(ctx, func(txCtx context.Context, tx *store.Tx) error {
		if err := claimEvent(txCtx, tx, ev); err != nil {
			return err
		}
		order, err := tx.LockOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.NotFound("Order not found")
		}
		if err := checkPaymentTransition(order.PaymentStatus, status); err != nil {
			return err
		}

		updated, err = tx.UpdateOrder(txCtx, orderID, store.OrderPatch{
			PaymentStatus:   &status,
			PaymentIntentID: intentID,
		})
		if err != nil {
			return err
		}
		return tx.InsertStatusHistory(txCtx, &models.OrderStatusHistory{
			OrderID:    orderID,
			StatusType: models.StatusTypePayment,
			NewStatus:  status,
			Notes:      fmt.Sprintf("Payment status changed from %s to %s", order.PaymentStatus, status),
		})
	})
	if errors.Is(err, errEventApplied) {
		s.logger.Info("Event already applied", zap.String("event_id", ev.id))
		return nil, nil
	}
	if err != nil {
		return nil, s.transitionFailed(span, models.StatusTypePayment, err)
	}

	s.transitionApplied(ctx, orderID, nil, models.StatusTypePayment, status)
	return updated, nil
}

// UpdateOrderProductionStatus advances an order through production.
// shipped_at is stamped on every move to shipped.
func (s *StatusService) UpdateOrderProductionStatus(ctx context.Context, orderID uuid.UUID, status string, trackingNumber *string) (*models.Order, error) {
	return s.updateProductionStatus(ctx, orderID, status, trackingNumber, nil)
}

func (s *StatusService) updateProductionStatus(ctx context.Context, orderID uuid.UUID, status string, trackingNumber *string, ev *eventRef) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StatusService.UpdateOrderProductionStatus",
		attribute.String("order_id", orderID.String()),
		attribute.String("status", status))
	defer span.End()

	if trackingNumber != nil && strings.TrimSpace(*trackingNumber) == "" {
		trackingNumber = nil
	}

	var updated *models.Order
	err := s.inTx(ctx, func(txCtx context.Context, tx *store.Tx) error {
		if err := claimEvent(txCtx, tx, ev); err != nil {
			return err
		}
		order, err := tx.LockOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.NotFound("Order not found")
		}
		if err := checkProductionTransition(order.ProductionStatus, status); err != nil {
			return err
		}

		patch := store.OrderPatch{
			ProductionStatus: &status,
			TrackingNumber:   trackingNumber,
		}
		if status == models.ProductionStatusShipped {
			shippedAt := s.now().UTC()
			patch.ShippedAt = &shippedAt
		}

		updated, err = tx.UpdateOrder(txCtx, orderID, patch)
		if err != nil {
			return err
		}

		notes := fmt.Sprintf("Production status changed from %s to %s", order.ProductionStatus, status)
		if trackingNumber != nil {
			notes += fmt.Sprintf(" (tracking %s)", *trackingNumber)
		}
		return tx.InsertStatusHistory(txCtx, &models.OrderStatusHistory{
			OrderID:    orderID,
			StatusType: models.StatusTypeProduction,
			NewStatus:  status,
			Notes:      notes,
		})
	})
	if errors.Is(err, errEventApplied) {
		s.logger.Info("Event already applied", zap.String("event_id", ev.id))
		return nil, nil
	}
	if err != nil {
		return nil, s.transitionFailed(span, models.StatusTypeProduction, err)
	}

	s.transitionApplied(ctx, orderID, nil, models.StatusTypeProduction, status)
	return updated, nil
}

// UpdateItemProductionStatus advances a single line of an order. The parent
// order is locked first so item and order updates serialize.
func (s *StatusService) UpdateItemProductionStatus(ctx context.Context, orderID, itemID uuid.UUID, status string) (*models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "StatusService.UpdateItemProductionStatus",
		attribute.String("order_id", orderID.String()),
		attribute.String("item_id", itemID.String()),
		attribute.String("status", status))
	defer span.End()

	var updated *models.OrderItem
	err := s.inTx(ctx, func(txCtx context.Context, tx *store.Tx) error {
		order, err := tx.LockOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.NotFound("Order not found")
		}
		item, err := tx.LockOrderItem(txCtx, orderID, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return apperr.NotFound("Order item not found")
		}
		if err := checkProductionTransition(item.ProductionStatus, status); err != nil {
			return err
		}

		updated, err = tx.UpdateOrderItemStatus(txCtx, itemID, status)
		if err != nil {
			return err
		}
		return tx.InsertStatusHistory(txCtx, &models.OrderStatusHistory{
			OrderID:     orderID,
			OrderItemID: &itemID,
			StatusType:  models.StatusTypeProduction,
			NewStatus:   status,
			Notes:       fmt.Sprintf("Item production status changed from %s to %s", item.ProductionStatus, status),
		})
	})
	if err != nil {
		return nil, s.transitionFailed(span, models.StatusTypeProduction, err)
	}

	s.transitionApplied(ctx, orderID, &itemID, models.StatusTypeProduction, status)
	return updated, nil
}

// ApplyProductionUpdate applies a print partner update. An update carrying
// an event id is applied at most once.
func (s *StatusService) ApplyProductionUpdate(ctx context.Context, event *models.ProductionUpdateEvent) error {
	var ev *eventRef
	if event.EventID != "" {
		ev = &eventRef{id: event.EventID, eventType: models.EventTypeProductionUpdate}
	}

	var tracking *string
	if event.TrackingNumber != "" {
		tracking = &event.TrackingNumber
	}
	_, err := s.updateProductionStatus(ctx, event.OrderID, event.Status, tracking, ev)
	return err
}

func (s *StatusService) inTx(ctx context.Context, fn func(context.Context, *store.Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.WithTx(txCtx, func(tx *store.Tx) error {
		return fn(txCtx, tx)
	})
}

// transitionFailed passes typed errors through and wraps everything else
func (s *StatusService) transitionFailed(span trace.Span, statusType string, err error) error {
	util.RecordError(span, err)
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if appErr.Kind == apperr.KindValidation {
			util.StatusTransitionsRejected.WithLabelValues(statusType).Inc()
		}
		return appErr
	}
	s.logger.Error("Status update rolled back", zap.String("status_type", statusType), zap.Error(err))
	return apperr.Internal("Failed to update order status", err)
}

func (s *StatusService) transitionApplied(ctx context.Context, orderID uuid.UUID, itemID *uuid.UUID, statusType, status string) {
	util.StatusTransitionsTotal.WithLabelValues(statusType, status).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID.String()),
		zap.String("status_type", statusType),
		zap.String("status", status))

	if s.events == nil {
		return
	}
	event := &models.OrderStatusChangedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:     orderID,
		OrderItemID: itemID,
		StatusType:  statusType,
		NewStatus:   status,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		util.EventsPublishFailed.WithLabelValues(models.EventTypeOrderStatusChanged).Inc()
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}
