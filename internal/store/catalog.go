package store

import (
	"context"

	"apparel-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	productColumns = `id, title, slug, description, status, created_at`
	variantColumns = `id, product_id, color, size, base_price, stock_level`
	methodColumns  = `id, name, display_name, status, pricing_rules`
	ruleColumns    = `id, scope, active, min_qty, max_qty, discount_type, discount_value, priority`
)

// ListActiveProducts retrieves all active products
func (s *Store) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE status = $1 ORDER BY created_at DESC",
		models.CatalogStatusActive)
	return products, err
}

// FindProductBySlug retrieves an active product by slug
func (s *Store) FindProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	found, err := getOne(ctx, s.db, &product,
		"SELECT "+productColumns+" FROM products WHERE slug = $1 AND status = $2",
		slug, models.CatalogStatusActive)
	if err != nil || !found {
		return nil, err
	}
	return &product, nil
}

// FindProductByID retrieves an active product by ID
func (s *Store) FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	found, err := getOne(ctx, s.db, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1 AND status = $2",
		id, models.CatalogStatusActive)
	if err != nil || !found {
		return nil, err
	}
	return &product, nil
}

// ListVariantsByProductIDs retrieves the variants of several products
func (s *Store) ListVariantsByProductIDs(ctx context.Context, productIDs []uuid.UUID) ([]models.Variant, error) {
	if len(productIDs) == 0 {
		return []models.Variant{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+variantColumns+" FROM variants WHERE product_id IN (?) ORDER BY product_id, color, size",
		productIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	variants := []models.Variant{}
	err = s.db.SelectContext(ctx, &variants, query, args...)
	return variants, err
}

// FindVariantByID retrieves a variant by ID
func (s *Store) FindVariantByID(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	found, err := getOne(ctx, s.db, &variant,
		"SELECT "+variantColumns+" FROM variants WHERE id = $1", id)
	if err != nil || !found {
		return nil, err
	}
	return &variant, nil
}

// ListActiveDecorationMethods retrieves every active decoration method
func (s *Store) ListActiveDecorationMethods(ctx context.Context) ([]models.DecorationMethod, error) {
	methods := []models.DecorationMethod{}
	err := s.db.SelectContext(ctx, &methods,
		"SELECT "+methodColumns+" FROM decoration_methods WHERE status = $1 ORDER BY name",
		models.CatalogStatusActive)
	return methods, err
}

// FindDecorationMethodByName retrieves an active decoration method by name
func (s *Store) FindDecorationMethodByName(ctx context.Context, name string) (*models.DecorationMethod, error) {
	var method models.DecorationMethod
	found, err := getOne(ctx, s.db, &method,
		"SELECT "+methodColumns+" FROM decoration_methods WHERE name = $1 AND status = $2",
		name, models.CatalogStatusActive)
	if err != nil || !found {
		return nil, err
	}
	return &method, nil
}

// ListGlobalPriceRules retrieves the active global rules whose quantity
// range contains quantity. Selection among them happens in the pricing engine.
func (s *Store) ListGlobalPriceRules(ctx context.Context, quantity int) ([]models.PriceRule, error) {
	rules := []models.PriceRule{}
	err := s.db.SelectContext(ctx, &rules, `
		SELECT `+ruleColumns+`
		FROM price_rules
		WHERE scope = $1 AND active = TRUE
		  AND min_qty <= $2 AND (max_qty IS NULL OR max_qty >= $2)
		ORDER BY priority DESC, id ASC`,
		models.PriceRuleScopeGlobal, quantity)
	return rules, err
}
