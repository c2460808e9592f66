package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Product represents a garment in the catalog
type Product struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Slug        string    `db:"slug" json:"slug"`
	Description string    `db:"description" json:"description"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Variant is a purchasable color/size combination of a product
type Variant struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	ProductID  uuid.UUID       `db:"product_id" json:"product_id"`
	Color      string          `db:"color" json:"color"`
	Size       string          `db:"size" json:"size"`
	BasePrice  decimal.Decimal `db:"base_price" json:"base_price"`
	StockLevel int             `db:"stock_level" json:"stock_level"`
}

// ProductWithVariants is the catalog read shape
type ProductWithVariants struct {
	Product
	Variants []Variant `json:"variants"`
}

// DecorationMethod is a printing/embroidery technique with its own pricing formula
type DecorationMethod struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	Name         string       `db:"name" json:"name"`
	DisplayName  string       `db:"display_name" json:"display_name"`
	Status       string       `db:"status" json:"status"`
	PricingRules PricingRules `db:"pricing_rules" json:"pricing_rules"`
}

// PricingRules is stored as JSONB on decoration_methods
type PricingRules struct {
	BasePrice      decimal.Decimal  `json:"base_price"`
	PerLocation    *decimal.Decimal `json:"per_location,omitempty"`
	PerColor       *decimal.Decimal `json:"per_color,omitempty"`
	PerSquareInch  *decimal.Decimal `json:"per_square_inch,omitempty"`
	QuantityBreaks []QuantityBreak  `json:"quantity_breaks,omitempty"`
}

// QuantityBreak maps a quantity range to a decoration price multiplier.
// A nil Max means the range is open-ended.
type QuantityBreak struct {
	Min        int             `json:"min"`
	Max        *int            `json:"max"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

// PriceRule is a store-wide discount rule
type PriceRule struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Scope         string          `db:"scope" json:"scope"`
	Active        bool            `db:"active" json:"active"`
	MinQty        int             `db:"min_qty" json:"min_qty"`
	MaxQty        *int            `db:"max_qty" json:"max_qty"`
	DiscountType  string          `db:"discount_type" json:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value" json:"discount_value"`
	Priority      int             `db:"priority" json:"priority"`
}

// Price rule scopes and discount types
const (
	PriceRuleScopeGlobal = "global"

	DiscountTypePercentage  = "percentage"
	DiscountTypeFixedAmount = "fixed_amount"
)

// Placement is a single artwork/text location on a garment. It is never
// persisted on its own, only inside an order item's custom_spec.
type Placement struct {
	Location  string          `json:"location"`
	X         decimal.Decimal `json:"x"`
	Y         decimal.Decimal `json:"y"`
	Width     decimal.Decimal `json:"width"`
	Height    decimal.Decimal `json:"height"`
	Colors    []string        `json:"colors,omitempty"`
	ArtworkID *uuid.UUID      `json:"artwork_id,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// MethodCharge is one named line of the decoration price
type MethodCharge struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// PriceBreakdown explains how a quote was assembled
type PriceBreakdown struct {
	BasePrice          decimal.Decimal `json:"base_price"`
	MethodCharges      []MethodCharge  `json:"method_charges"`
	QuantityMultiplier decimal.Decimal `json:"quantity_multiplier"`
	Total              decimal.Decimal `json:"total"`
}

// PriceQuote is the computed, unpersisted price of a hypothetical order line
type PriceQuote struct {
	VariantPrice     decimal.Decimal `json:"variant_price"`
	DecorationPrice  decimal.Decimal `json:"decoration_price"`
	QuantityDiscount decimal.Decimal `json:"quantity_discount"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Breakdown        PriceBreakdown  `json:"breakdown"`
}

// Customer is identified by email; created on first order
type Customer struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	Email     string      `db:"email" json:"email"`
	Name      string      `db:"name" json:"name"`
	Phone     string      `db:"phone" json:"phone"`
	Addresses AddressList `db:"addresses" json:"addresses"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// Address is copied by value into orders so later edits never touch history
type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
	Phone      string `json:"phone,omitempty"`
}

// Order represents a customer order
type Order struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	OrderNumber      string          `db:"order_number" json:"order_number"`
	CustomerID       uuid.UUID       `db:"customer_id" json:"customer_id"`
	Subtotal         decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax              decimal.Decimal `db:"tax" json:"tax"`
	Shipping         decimal.Decimal `db:"shipping" json:"shipping"`
	Discount         decimal.Decimal `db:"discount" json:"discount"`
	Total            decimal.Decimal `db:"total" json:"total"`
	PaymentStatus    string          `db:"payment_status" json:"payment_status"`
	ProductionStatus string          `db:"production_status" json:"production_status"`
	ShippingAddress  Address         `db:"shipping_address" json:"shipping_address"`
	BillingAddress   Address         `db:"billing_address" json:"billing_address"`
	CustomerNotes    *string         `db:"customer_notes" json:"customer_notes,omitempty"`
	PaymentIntentID  *string         `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	TrackingNumber   *string         `db:"tracking_number" json:"tracking_number,omitempty"`
	ShippedAt        *time.Time      `db:"shipped_at" json:"shipped_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem represents one customized line of an order
type OrderItem struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	OrderID          uuid.UUID       `db:"order_id" json:"order_id"`
	VariantID        uuid.UUID       `db:"variant_id" json:"variant_id"`
	Quantity         int             `db:"quantity" json:"quantity"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice       decimal.Decimal `db:"total_price" json:"total_price"`
	CustomSpec       types.JSONText  `db:"custom_spec" json:"custom_spec"`
	ProductionStatus string          `db:"production_status" json:"production_status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// OrderStatusHistory is one append-only audit row
type OrderStatusHistory struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	OrderID     uuid.UUID  `db:"order_id" json:"order_id"`
	OrderItemID *uuid.UUID `db:"order_item_id" json:"order_item_id,omitempty"`
	StatusType  string     `db:"status_type" json:"status_type"`
	NewStatus   string     `db:"new_status" json:"new_status"`
	Notes       string     `db:"notes" json:"notes"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Asset is an uploaded file, named by the hash of its content
type Asset struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	OwnerType    string     `db:"owner_type" json:"owner_type"`
	OwnerID      *uuid.UUID `db:"owner_id" json:"owner_id,omitempty"`
	FileURL      string     `db:"file_url" json:"file_url"`
	StorageKey   string     `db:"storage_key" json:"-"`
	FileType     string     `db:"file_type" json:"file_type"`
	FileSize     int64      `db:"file_size" json:"file_size"`
	OriginalName string     `db:"original_name" json:"original_name"`
	Hash         string     `db:"hash" json:"hash"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// SavedDesign is a customer's customization of one product, kept for later
type SavedDesign struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	UserID       string         `db:"user_id" json:"user_id"`
	Name         string         `db:"name" json:"name"`
	ProductID    uuid.UUID      `db:"product_id" json:"product_id"`
	VariantID    *uuid.UUID     `db:"variant_id" json:"variant_id,omitempty"`
	DesignData   types.JSONText `db:"design_data" json:"design_data"`
	ArtworkIDs   UUIDList       `db:"artwork_ids" json:"artwork_ids"`
	ThumbnailURL *string        `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	Notes        *string        `db:"notes" json:"notes,omitempty"`
	ProductTitle *string        `db:"product_title" json:"product_title,omitempty"`
	ProductSlug  *string        `db:"product_slug" json:"product_slug,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`

	// ArtworkURLs maps artwork ids to file URLs; filled on single reads
	ArtworkURLs map[string]string `db:"-" json:"artwork_urls,omitempty"`
}

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Production statuses, in the only order they may advance
const (
	ProductionStatusPending      = "pending"
	ProductionStatusInProduction = "in_production"
	ProductionStatusShipped      = "shipped"
	ProductionStatusDelivered    = "delivered"
)

// Status history kinds
const (
	StatusTypePayment    = "payment"
	StatusTypeProduction = "production"
)

// Catalog statuses
const (
	CatalogStatusActive   = "active"
	CatalogStatusArchived = "archived"
)
