package service

import (
	"context"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"
	"apparel-service/internal/store"
	"apparel-service/internal/util"

	"github.com/google/uuid"
)

// CatalogService serves read-only product data
type CatalogService struct {
	store *store.Store
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store *store.Store) *CatalogService {
	return &CatalogService{store: store}
}

// ProductDetail is a product page: the product, its variants and the
// decoration methods it can be ordered with
type ProductDetail struct {
	Product           models.ProductWithVariants `json:"product"`
	DecorationMethods []models.DecorationMethod  `json:"decoration_methods"`
}

// ListProducts returns every active product with its variants
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.ProductWithVariants, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	products, err := s.store.ListActiveProducts(ctx)
	if err != nil {
		return nil, apperr.Internal("Failed to load products", err)
	}

	ids := make([]uuid.UUID, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	variants, err := s.store.ListVariantsByProductIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("Failed to load variants", err)
	}

	byProduct := make(map[uuid.UUID][]models.Variant, len(products))
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}

	result := make([]models.ProductWithVariants, len(products))
	for i, p := range products {
		vs := byProduct[p.ID]
		if vs == nil {
			vs = []models.Variant{}
		}
		result[i] = models.ProductWithVariants{Product: p, Variants: vs}
	}
	return result, nil
}

// GetProduct returns the product page for slug
func (s *CatalogService) GetProduct(ctx context.Context, slug string) (*ProductDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	product, err := s.store.FindProductBySlug(ctx, slug)
	if err != nil {
		return nil, apperr.Internal("Failed to load product", err)
	}
	if product == nil {
		return nil, apperr.NotFound("Product not found")
	}

	variants, err := s.store.ListVariantsByProductIDs(ctx, []uuid.UUID{product.ID})
	if err != nil {
		return nil, apperr.Internal("Failed to load variants", err)
	}

	methods, err := s.store.ListActiveDecorationMethods(ctx)
	if err != nil {
		return nil, apperr.Internal("Failed to load decoration methods", err)
	}

	return &ProductDetail{
		Product:           models.ProductWithVariants{Product: *product, Variants: variants},
		DecorationMethods: methods,
	}, nil
}

// ListDecorationMethods returns every active decoration method
func (s *CatalogService) ListDecorationMethods(ctx context.Context) ([]models.DecorationMethod, error) {
	methods, err := s.store.ListActiveDecorationMethods(ctx)
	if err != nil {
		return nil, apperr.Internal("Failed to load decoration methods", err)
	}
	return methods, nil
}
