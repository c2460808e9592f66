package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"
	"apparel-service/internal/store"
	"apparel-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SaveDesignRequest is the body of a new saved design
type SaveDesignRequest struct {
	Name         string          `json:"name" binding:"required,max=200"`
	ProductID    *uuid.UUID      `json:"product_id" binding:"required"`
	VariantID    *uuid.UUID      `json:"variant_id"`
	DesignData   json.RawMessage `json:"design_data" binding:"required"`
	ArtworkIDs   []uuid.UUID     `json:"artwork_ids" binding:"max=50"`
	ThumbnailURL *string         `json:"thumbnail_url" binding:"omitempty,max=2048"`
	Notes        *string         `json:"notes" binding:"omitempty,max=2000"`
}

// UpdateDesignRequest changes the fields that are present. The product of
// a design is fixed once saved.
type UpdateDesignRequest struct {
	Name         *string         `json:"name" binding:"omitempty,max=200"`
	VariantID    *uuid.UUID      `json:"variant_id"`
	DesignData   json.RawMessage `json:"design_data"`
	ArtworkIDs   *[]uuid.UUID    `json:"artwork_ids" binding:"omitempty,max=50"`
	ThumbnailURL *string         `json:"thumbnail_url" binding:"omitempty,max=2048"`
	Notes        *string         `json:"notes" binding:"omitempty,max=2000"`
}

// DesignService keeps customers' saved designs. Every operation is scoped
// to the calling user; another user's design reads as missing.
type DesignService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewDesignService creates a new design service
func NewDesignService(store *store.Store) *DesignService {
	return &DesignService{store: store, logger: util.GetLogger()}
}

// SaveDesign stores a new design for userID. Referenced artwork that has no
// owner yet becomes owned by the design.
func (s *DesignService) SaveDesign(ctx context.Context, userID string, req *SaveDesignRequest) (*models.SavedDesign, error) {
	ctx, span := util.StartSpan(ctx, "DesignService.SaveDesign")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("Missing required field: name")
	}
	if !isJSONObject(req.DesignData) {
		return nil, apperr.Validation("design_data must be a JSON object")
	}

	product, err := s.checkProduct(ctx, *req.ProductID, req.VariantID)
	if err != nil {
		return nil, err
	}
	artwork := uniqueIDs(req.ArtworkIDs)
	if err := s.checkArtwork(ctx, artwork); err != nil {
		return nil, err
	}

	design := &models.SavedDesign{
		UserID:       userID,
		Name:         strings.TrimSpace(req.Name),
		ProductID:    product.ID,
		VariantID:    req.VariantID,
		DesignData:   types.JSONText(req.DesignData),
		ArtworkIDs:   models.UUIDList(artwork),
		ThumbnailURL: req.ThumbnailURL,
		Notes:        req.Notes,
		ProductTitle: &product.Title,
		ProductSlug:  &product.Slug,
	}
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertDesign(ctx, design); err != nil {
			return err
		}
		return tx.AttachAssets(ctx, artwork, OwnerTypeDesign, design.ID)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, apperr.Internal("Failed to save design", err)
	}

	span.SetAttributes(attribute.String("design_id", design.ID.String()))
	s.logger.Info("Design saved",
		zap.String("design_id", design.ID.String()),
		zap.String("product_id", design.ProductID.String()),
		zap.Int("artwork", len(artwork)))
	return design, nil
}

// ListDesigns returns the designs of userID, most recently edited first
func (s *DesignService) ListDesigns(ctx context.Context, userID string) ([]models.SavedDesign, error) {
	designs, err := s.store.ListDesignsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("Failed to load designs", err)
	}
	return designs, nil
}

// GetDesign returns one design with its artwork URLs resolved
func (s *DesignService) GetDesign(ctx context.Context, userID string, id uuid.UUID) (*models.SavedDesign, error) {
	ctx, span := util.StartSpan(ctx, "DesignService.GetDesign",
		attribute.String("design_id", id.String()))
	defer span.End()

	design, err := s.store.FindDesign(ctx, id, userID)
	if err != nil {
		return nil, apperr.Internal("Failed to load design", err)
	}
	if design == nil {
		return nil, apperr.NotFound("Design not found")
	}

	if len(design.ArtworkIDs) > 0 {
		assets, err := s.store.ListAssetsByIDs(ctx, design.ArtworkIDs)
		if err != nil {
			return nil, apperr.Internal("Failed to load design artwork", err)
		}
		design.ArtworkURLs = make(map[string]string, len(assets))
		for _, a := range assets {
			design.ArtworkURLs[a.ID.String()] = a.FileURL
		}
	}
	return design, nil
}

// UpdateDesign applies the fields present in req. An empty update returns
// the design unchanged.
func (s *DesignService) UpdateDesign(ctx context.Context, userID string, id uuid.UUID, req *UpdateDesignRequest) (*models.SavedDesign, error) {
	ctx, span := util.StartSpan(ctx, "DesignService.UpdateDesign",
		attribute.String("design_id", id.String()))
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	existing, err := s.store.FindDesign(ctx, id, userID)
	if err != nil {
		return nil, apperr.Internal("Failed to load design", err)
	}
	if existing == nil {
		return nil, apperr.NotFound("Design not found")
	}

	patch := store.DesignPatch{ThumbnailURL: req.ThumbnailURL, Notes: req.Notes}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		patch.Name = &name
	}
	if req.VariantID != nil {
		if err := s.checkVariant(ctx, existing.ProductID, *req.VariantID); err != nil {
			return nil, err
		}
		patch.VariantID = req.VariantID
	}
	if req.DesignData != nil {
		if !isJSONObject(req.DesignData) {
			return nil, apperr.Validation("design_data must be a JSON object")
		}
		data := types.JSONText(req.DesignData)
		patch.DesignData = &data
	}
	var artwork []uuid.UUID
	if req.ArtworkIDs != nil {
		artwork = uniqueIDs(*req.ArtworkIDs)
		if err := s.checkArtwork(ctx, artwork); err != nil {
			return nil, err
		}
		list := models.UUIDList(artwork)
		patch.ArtworkIDs = &list
	}
	if patch.Empty() {
		return existing, nil
	}

	var updated *models.SavedDesign
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		updated, err = tx.UpdateDesign(ctx, id, userID, patch)
		if err != nil {
			return err
		}
		if updated == nil {
			return apperr.NotFound("Design not found")
		}
		return tx.AttachAssets(ctx, artwork, OwnerTypeDesign, id)
	})
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, apperr.Internal("Failed to update design", err)
	}

	updated.ProductTitle = existing.ProductTitle
	updated.ProductSlug = existing.ProductSlug
	s.logger.Info("Design updated", zap.String("design_id", id.String()))
	return updated, nil
}

// DeleteDesign removes a design. Its artwork stays, since stored files may
// be shared with orders and other designs.
func (s *DesignService) DeleteDesign(ctx context.Context, userID string, id uuid.UUID) error {
	deleted, err := s.store.DeleteDesign(ctx, id, userID)
	if err != nil {
		return apperr.Internal("Failed to delete design", err)
	}
	if !deleted {
		return apperr.NotFound("Design not found")
	}
	s.logger.Info("Design deleted", zap.String("design_id", id.String()))
	return nil
}

// checkProduct resolves an active product and, when given, a variant of it
func (s *DesignService) checkProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*models.Product, error) {
	product, err := s.store.FindProductByID(ctx, productID)
	if err != nil {
		return nil, apperr.Internal("Failed to load product", err)
	}
	if product == nil {
		return nil, apperr.Validation("Unknown product")
	}
	if variantID != nil {
		if err := s.checkVariant(ctx, productID, *variantID); err != nil {
			return nil, err
		}
	}
	return product, nil
}

func (s *DesignService) checkVariant(ctx context.Context, productID, variantID uuid.UUID) error {
	variant, err := s.store.FindVariantByID(ctx, variantID)
	if err != nil {
		return apperr.Internal("Failed to load variant", err)
	}
	if variant == nil || variant.ProductID != productID {
		return apperr.Validation("variant_id does not belong to product")
	}
	return nil
}

// checkArtwork requires every id to name an uploaded asset
func (s *DesignService) checkArtwork(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	assets, err := s.store.ListAssetsByIDs(ctx, ids)
	if err != nil {
		return apperr.Internal("Failed to load artwork", err)
	}
	if len(assets) != len(ids) {
		return apperr.Validation("Unknown artwork asset")
	}
	return nil
}

// uniqueIDs drops repeats, keeping first-seen order. The result is never nil.
func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
