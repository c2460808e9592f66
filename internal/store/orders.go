package store

import (
	"context"
	"time"

	"apparel-service/internal/models"

	"github.com/google/uuid"
)

const (
	orderColumns = `id, order_number, customer_id, subtotal, tax, shipping, discount, total,
		payment_status, production_status, shipping_address, billing_address, customer_notes,
		payment_intent_id, tracking_number, shipped_at, created_at, updated_at`
	itemColumns    = `id, order_id, variant_id, quantity, unit_price, total_price, custom_spec, production_status, created_at`
	historyColumns = `id, order_id, order_item_id, status_type, new_status, notes, created_at`
)

// OrderPatch lists the order columns a status change may touch. Nil fields
// keep their stored value.
type OrderPatch struct {
	PaymentStatus    *string
	PaymentIntentID  *string
	ProductionStatus *string
	TrackingNumber   *string
	ShippedAt        *time.Time
}

// OrderFilter narrows the admin order listing. Nil fields match everything.
type OrderFilter struct {
	PaymentStatus    *string
	ProductionStatus *string
	Limit            int
	Offset           int
}

const updateOrderQuery = `
	UPDATE orders SET
		payment_status    = COALESCE($2, payment_status),
		payment_intent_id = COALESCE($3, payment_intent_id),
		production_status = COALESCE($4, production_status),
		tracking_number   = COALESCE($5, tracking_number),
		shipped_at        = COALESCE($6, shipped_at),
		updated_at        = NOW()
	WHERE id = $1
	RETURNING ` + orderColumns

func updateOrder(ctx context.Context, q queryer, orderID uuid.UUID, patch OrderPatch) (*models.Order, error) {
	var order models.Order
	found, err := getOne(ctx, q, &order, updateOrderQuery,
		orderID, patch.PaymentStatus, patch.PaymentIntentID,
		patch.ProductionStatus, patch.TrackingNumber, patch.ShippedAt)
	if err != nil || !found {
		return nil, err
	}
	return &order, nil
}

// InsertOrder inserts order unless its order number is already taken, in
// which case it reports false so the caller can pick another number.
func (t *Tx) InsertOrder(ctx context.Context, order *models.Order) (bool, error) {
	query := `
		INSERT INTO orders (order_number, customer_id, subtotal, tax, shipping, discount, total,
			payment_status, production_status, shipping_address, billing_address, customer_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (order_number) DO NOTHING
		RETURNING id, created_at, updated_at`

	return getOne(ctx, t.tx, order, query,
		order.OrderNumber, order.CustomerID, order.Subtotal, order.Tax, order.Shipping,
		order.Discount, order.Total, order.PaymentStatus, order.ProductionStatus,
		order.ShippingAddress, order.BillingAddress, order.CustomerNotes)
}

// InsertOrderItem creates a new order item
func (t *Tx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, variant_id, quantity, unit_price, total_price, custom_spec, production_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, item, query,
		item.OrderID, item.VariantID, item.Quantity, item.UnitPrice, item.TotalPrice,
		item.CustomSpec, item.ProductionStatus)
}

// InsertStatusHistory appends one audit row
func (t *Tx) InsertStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	query := `
		INSERT INTO order_status_history (order_id, order_item_id, status_type, new_status, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, entry, query,
		entry.OrderID, entry.OrderItemID, entry.StatusType, entry.NewStatus, entry.Notes)
}

// LockOrder retrieves an order and holds its row lock until the transaction ends
func (t *Tx) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	found, err := getOne(ctx, t.tx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil || !found {
		return nil, err
	}
	return &order, nil
}

// LockOrderItem retrieves an item of the given order under a row lock
func (t *Tx) LockOrderItem(ctx context.Context, orderID, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	found, err := getOne(ctx, t.tx, &item,
		"SELECT "+itemColumns+" FROM order_items WHERE id = $1 AND order_id = $2 FOR UPDATE",
		itemID, orderID)
	if err != nil || !found {
		return nil, err
	}
	return &item, nil
}

// UpdateOrder applies patch and returns the updated row
func (t *Tx) UpdateOrder(ctx context.Context, orderID uuid.UUID, patch OrderPatch) (*models.Order, error) {
	return updateOrder(ctx, t.tx, orderID, patch)
}

// UpdateOrderItemStatus sets the production status of one item
func (t *Tx) UpdateOrderItemStatus(ctx context.Context, itemID uuid.UUID, status string) (*models.OrderItem, error) {
	var item models.OrderItem
	found, err := getOne(ctx, t.tx, &item,
		"UPDATE order_items SET production_status = $2 WHERE id = $1 RETURNING "+itemColumns,
		itemID, status)
	if err != nil || !found {
		return nil, err
	}
	return &item, nil
}

// SetPaymentIntentID records the gateway intent created for an order
func (s *Store) SetPaymentIntentID(ctx context.Context, orderID uuid.UUID, intentID string) (*models.Order, error) {
	return updateOrder(ctx, s.db, orderID, OrderPatch{PaymentIntentID: &intentID})
}

// FindOrderByID retrieves an order by ID
func (s *Store) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	found, err := getOne(ctx, s.db, &order,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil || !found {
		return nil, err
	}
	return &order, nil
}

// FindOrderByNumber retrieves an order by its human-readable number
func (s *Store) FindOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	found, err := getOne(ctx, s.db, &order,
		"SELECT "+orderColumns+" FROM orders WHERE order_number = $1", orderNumber)
	if err != nil || !found {
		return nil, err
	}
	return &order, nil
}

// ListOrderItems retrieves all items for an order
func (s *Store) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT "+itemColumns+" FROM order_items WHERE order_id = $1 ORDER BY created_at, id", orderID)
	return items, err
}

// ListStatusHistory retrieves the audit trail of an order, oldest first
func (s *Store) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	history := []models.OrderStatusHistory{}
	err := s.db.SelectContext(ctx, &history,
		"SELECT "+historyColumns+" FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id", orderID)
	return history, err
}

// ListOrders retrieves orders, newest first
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::text IS NULL OR payment_status = $1)
		  AND ($2::text IS NULL OR production_status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		filter.PaymentStatus, filter.ProductionStatus, limit, offset)
	return orders, err
}
