package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"
	"apparel-service/internal/payment"
	"apparel-service/internal/store"
	"apparel-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	orderNumberPrefix   = "RB"
	orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	orderNumberSuffix   = 5
	maxOrderNumberTries = 5
)

// OrderService handles order business logic
type OrderService struct {
	store       *store.Store
	idempotency IdempotencyStore
	events      EventPublisher
	gateway     PaymentGateway
	currency    string
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewOrderService creates a new order service. idempotency and events may
// be nil when Redis or Kafka are not configured.
func NewOrderService(
	store *store.Store,
	idempotency IdempotencyStore,
	events EventPublisher,
	gateway PaymentGateway,
	currency string,
	timeout time.Duration,
) *OrderService {
	return &OrderService{
		store:       store,
		idempotency: idempotency,
		events:      events,
		gateway:     gateway,
		currency:    currency,
		timeout:     timeout,
		logger:      util.GetLogger(),
		now:         time.Now,
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	Customer        *CustomerInput   `json:"customer" binding:"required"`
	Items           []OrderItemInput `json:"items" binding:"required,min=1,dive"`
	ShippingAddress *models.Address  `json:"shipping_address" binding:"required"`
	BillingAddress  *models.Address  `json:"billing_address"`
	Subtotal        *decimal.Decimal `json:"subtotal" binding:"required"`
	Tax             *decimal.Decimal `json:"tax"`
	Shipping        *decimal.Decimal `json:"shipping"`
	Discount        *decimal.Decimal `json:"discount"`
	Total           *decimal.Decimal `json:"total" binding:"required"`
	CustomerNotes   *string          `json:"customer_notes"`
	IdempotencyKey  string           `json:"-"`
}

// CustomerInput identifies the buyer; email is the dedup key
type CustomerInput struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// OrderItemInput is one customized line as quoted to the client
type OrderItemInput struct {
	VariantID     uuid.UUID        `json:"variant_id" binding:"required"`
	Quantity      int              `json:"quantity" binding:"required,min=1"`
	UnitPrice     *decimal.Decimal `json:"unit_price" binding:"required"`
	TotalPrice    *decimal.Decimal `json:"total_price" binding:"required"`
	Customization json.RawMessage  `json:"customization"`
}

// PlaceOrderResult is an order plus the secret the client confirms payment with
type PlaceOrderResult struct {
	Order        *models.Order `json:"order"`
	ClientSecret string        `json:"client_secret"`
}

// OrderDetail is an order with its lines
type OrderDetail struct {
	Order *models.Order      `json:"order"`
	Items []models.OrderItem `json:"items"`
}

// validateCreateOrder checks everything that can be checked without a
// database connection
func validateCreateOrder(req *CreateOrderRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	money := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"subtotal", req.Subtotal},
		{"tax", req.Tax},
		{"shipping", req.Shipping},
		{"discount", req.Discount},
		{"total", req.Total},
	}
	for _, m := range money {
		if m.value == nil {
			continue
		}
		if m.value.IsNegative() {
			return apperr.Validation(fmt.Sprintf("%s must not be negative", m.name))
		}
		if !isCents(*m.value) {
			return apperr.Validation(fmt.Sprintf("%s must have at most 2 decimal places", m.name))
		}
	}

	for i, item := range req.Items {
		if item.UnitPrice.IsNegative() || item.TotalPrice.IsNegative() {
			return apperr.Validation(fmt.Sprintf("items[%d] prices must not be negative", i))
		}
		if !isCents(*item.UnitPrice) || !isCents(*item.TotalPrice) {
			return apperr.Validation(fmt.Sprintf("items[%d] prices must have at most 2 decimal places", i))
		}
		expected := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if !expected.Equal(*item.TotalPrice) {
			return apperr.Validation(fmt.Sprintf("items[%d].total_price must equal unit_price x quantity", i))
		}
		if len(item.Customization) > 0 && !json.Valid(item.Customization) {
			return apperr.Validation(fmt.Sprintf("items[%d].customization must be valid JSON", i))
		}
	}
	return nil
}

// isCents reports whether d fits the two-place money columns exactly
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// newOrderNumber builds RB-<unix millis>-<5 base36 chars>. The suffix comes
// from a random v4 uuid; uniqueness is still enforced by the database.
func newOrderNumber(now time.Time) string {
	random := uuid.New()
	var suffix strings.Builder
	for i := 0; i < orderNumberSuffix; i++ {
		suffix.WriteByte(orderNumberAlphabet[int(random[i])%len(orderNumberAlphabet)])
	}
	return fmt.Sprintf("%s-%d-%s", orderNumberPrefix, now.UnixMilli(), suffix.String())
}

// CreateOrder persists an order, its items and its first history row in a
// single transaction. Nothing is written unless everything is.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.Int("items", len(req.Items)))
	defer span.End()

	if err := validateCreateOrder(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = req.BillingAddress
	}

	order := &models.Order{
		Subtotal:         *req.Subtotal,
		Tax:              orZero(req.Tax),
		Shipping:         orZero(req.Shipping),
		Discount:         orZero(req.Discount),
		Total:            *req.Total,
		PaymentStatus:    models.PaymentStatusPending,
		ProductionStatus: models.ProductionStatusPending,
		ShippingAddress:  *req.ShippingAddress,
		BillingAddress:   *billing,
		CustomerNotes:    req.CustomerNotes,
	}
	items := make([]models.OrderItem, 0, len(req.Items))

	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.store.WithTx(txCtx, func(tx *store.Tx) error {
		customer, err := tx.EnsureCustomer(txCtx, models.Customer{
			Email:     strings.TrimSpace(req.Customer.Email),
			Name:      req.Customer.Name,
			Phone:     req.Customer.Phone,
			Addresses: models.AddressList{*req.ShippingAddress},
		})
		if err != nil {
			return err
		}
		order.CustomerID = customer.ID

		if err := s.insertWithFreshNumber(txCtx, tx, order); err != nil {
			return err
		}

		for i, in := range req.Items {
			spec := types.JSONText(in.Customization)
			if len(spec) == 0 {
				spec = types.JSONText("{}")
			}
			item := models.OrderItem{
				OrderID:          order.ID,
				VariantID:        in.VariantID,
				Quantity:         in.Quantity,
				UnitPrice:        *in.UnitPrice,
				TotalPrice:       *in.TotalPrice,
				CustomSpec:       spec,
				ProductionStatus: models.ProductionStatusPending,
			}
			if err := tx.InsertOrderItem(txCtx, &item); err != nil {
				return fmt.Errorf("failed to insert item %d: %w", i, err)
			}
			items = append(items, item)
		}

		return tx.InsertStatusHistory(txCtx, &models.OrderStatusHistory{
			OrderID:    order.ID,
			StatusType: models.StatusTypeProduction,
			NewStatus:  models.ProductionStatusPending,
			Notes:      "Order created",
		})
	})
	util.OrderTransactionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.RecordError(span, err)
		util.OrdersFailedTotal.WithLabelValues("transaction").Inc()
		s.logger.Error("Order transaction rolled back", zap.Error(err))
		return nil, apperr.Internal("Failed to create order", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int("items", len(items)))

	s.publishOrderCreated(ctx, order, len(items))
	return &OrderDetail{Order: order, Items: items}, nil
}

func (s *OrderService) insertWithFreshNumber(ctx context.Context, tx *store.Tx, order *models.Order) error {
	for attempt := 0; attempt < maxOrderNumberTries; attempt++ {
		order.OrderNumber = newOrderNumber(s.now())
		inserted, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		if inserted {
			return nil
		}
		s.logger.Warn("Order number collision, regenerating", zap.String("order_number", order.OrderNumber))
	}
	return fmt.Errorf("no unique order number after %d attempts", maxOrderNumberTries)
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order, itemCount int) {
	if s.events == nil {
		return
	}
	event := &models.OrderCreatedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Total:       order.Total,
		ItemCount:   itemCount,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		util.EventsPublishFailed.WithLabelValues(models.EventTypeOrderCreated).Inc()
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

// PlaceOrder creates an order and opens a payment intent for its total.
// With an idempotency key, a replay returns the order created first.
func (s *OrderService) PlaceOrder(ctx context.Context, req *CreateOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	// fail fast before any Redis or database work
	if err := validateCreateOrder(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		existing, claimed, err := s.idempotency.ClaimIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, apperr.Internal("Failed to check idempotency key", err)
		}
		if !claimed {
			if existing == "" {
				return nil, apperr.Conflict("A request with this Idempotency-Key is already in progress")
			}
			util.IdempotentReplaysTotal.Inc()
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing))
			return s.resumeOrder(ctx, existing)
		}
	}

	detail, err := s.CreateOrder(ctx, req)
	if err != nil {
		if req.IdempotencyKey != "" && s.idempotency != nil {
			if rerr := s.idempotency.ReleaseIdempotencyKey(ctx, req.IdempotencyKey); rerr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.Error(rerr))
			}
		}
		return nil, err
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CompleteIdempotencyKey(ctx, req.IdempotencyKey, detail.Order.ID.String()); err != nil {
			s.logger.Warn("Failed to record idempotency key", zap.Error(err))
		}
	}

	return s.attachIntent(ctx, detail.Order, req.Customer.Email)
}

// resumeOrder answers a replayed request from the stored order
func (s *OrderService) resumeOrder(ctx context.Context, orderID string) (*PlaceOrderResult, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, apperr.Internal("Corrupt idempotency record", err)
	}
	order, err := s.store.FindOrderByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("Failed to load order", err)
	}
	if order == nil {
		return nil, apperr.NotFound("Order not found")
	}

	if order.PaymentIntentID == nil {
		return s.attachIntent(ctx, order, "")
	}
	intent, err := s.gateway.RetrieveIntent(ctx, *order.PaymentIntentID)
	if err != nil {
		return nil, apperr.Internal("Failed to retrieve payment intent", err)
	}
	return &PlaceOrderResult{Order: order, ClientSecret: intent.ClientSecret}, nil
}

// attachIntent opens the gateway intent for order and records its id. The
// order stays pending when the gateway fails; a retry reuses the same
// provider idempotency key.
func (s *OrderService) attachIntent(ctx context.Context, order *models.Order, email string) (*PlaceOrderResult, error) {
	intent, err := s.gateway.CreateIntent(ctx, payment.IntentRequest{
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		AmountMinor: payment.ToMinorUnits(order.Total),
		Currency:    s.currency,
		Email:       email,
	})
	if err != nil {
		s.logger.Error("Failed to create payment intent",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, apperr.Internal("Failed to create payment intent", err)
	}

	updated, err := s.store.SetPaymentIntentID(ctx, order.ID, intent.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to record payment intent", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("Order not found")
	}

	return &PlaceOrderResult{Order: updated, ClientSecret: intent.ClientSecret}, nil
}

// GetOrder resolves ref as an order id first and as an order number
// otherwise. A ref that parses as neither is simply not found.
func (s *OrderService) GetOrder(ctx context.Context, ref string) (*OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperr.Validation("Order id is required")
	}

	var order *models.Order
	var err error
	if id, perr := uuid.Parse(ref); perr == nil {
		order, err = s.store.FindOrderByID(ctx, id)
	} else {
		order, err = s.store.FindOrderByNumber(ctx, ref)
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load order", err)
	}
	if order == nil {
		return nil, apperr.NotFound("Order not found")
	}

	items, err := s.store.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to load order items", err)
	}
	return &OrderDetail{Order: order, Items: items}, nil
}

// ListOrdersRequest is the admin listing filter
type ListOrdersRequest struct {
	PaymentStatus    string `form:"payment_status" binding:"omitempty,oneof=pending paid failed"`
	ProductionStatus string `form:"production_status" binding:"omitempty,oneof=pending in_production shipped delivered"`
	Limit            string `form:"limit"`
	Offset           string `form:"offset"`
}

// ListOrders returns orders for the admin view, newest first
func (s *OrderService) ListOrders(ctx context.Context, req *ListOrdersRequest) ([]models.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	filter := store.OrderFilter{}
	if req.PaymentStatus != "" {
		filter.PaymentStatus = &req.PaymentStatus
	}
	if req.ProductionStatus != "" {
		filter.ProductionStatus = &req.ProductionStatus
	}
	if req.Limit != "" {
		n, err := strconv.Atoi(req.Limit)
		if err != nil {
			return nil, apperr.Validation("limit must be a number")
		}
		filter.Limit = n
	}
	if req.Offset != "" {
		n, err := strconv.Atoi(req.Offset)
		if err != nil {
			return nil, apperr.Validation("offset must be a number")
		}
		filter.Offset = n
	}

	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("Failed to list orders", err)
	}
	return orders, nil
}

// GetHistory returns the audit trail of an order
func (s *OrderService) GetHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	order, err := s.store.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal("Failed to load order", err)
	}
	if order == nil {
		return nil, apperr.NotFound("Order not found")
	}

	history, err := s.store.ListStatusHistory(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal("Failed to load order history", err)
	}
	return history, nil
}
