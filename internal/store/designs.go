package store

import (
	"context"

	"apparel-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

const designColumns = `d.id, d.user_id, d.name, d.product_id, d.variant_id, d.design_data, d.artwork_ids,
		d.thumbnail_url, d.notes, d.created_at, d.updated_at`

const designSelect = `
	SELECT ` + designColumns + `, p.title AS product_title, p.slug AS product_slug
	FROM saved_designs d
	LEFT JOIN products p ON p.id = d.product_id`

// DesignPatch lists the design fields an update may change. Nil fields keep
// their stored value.
type DesignPatch struct {
	Name         *string
	VariantID    *uuid.UUID
	DesignData   *types.JSONText
	ArtworkIDs   *models.UUIDList
	ThumbnailURL *string
	Notes        *string
}

// Empty reports whether the patch changes nothing
func (p DesignPatch) Empty() bool {
	return p.Name == nil && p.VariantID == nil && p.DesignData == nil &&
		p.ArtworkIDs == nil && p.ThumbnailURL == nil && p.Notes == nil
}

// InsertDesign saves a new design
func (t *Tx) InsertDesign(ctx context.Context, design *models.SavedDesign) error {
	query := `
		INSERT INTO saved_designs (user_id, name, product_id, variant_id, design_data, artwork_ids, thumbnail_url, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return t.tx.GetContext(ctx, design, query,
		design.UserID, design.Name, design.ProductID, design.VariantID,
		design.DesignData, design.ArtworkIDs, design.ThumbnailURL, design.Notes)
}

// UpdateDesign applies patch to a design owned by userID. It returns nil
// when no such design exists.
func (t *Tx) UpdateDesign(ctx context.Context, id uuid.UUID, userID string, patch DesignPatch) (*models.SavedDesign, error) {
	query := `
		UPDATE saved_designs d SET
			name          = COALESCE($3, d.name),
			variant_id    = COALESCE($4, d.variant_id),
			design_data   = COALESCE($5, d.design_data),
			artwork_ids   = COALESCE($6, d.artwork_ids),
			thumbnail_url = COALESCE($7, d.thumbnail_url),
			notes         = COALESCE($8, d.notes),
			updated_at    = NOW()
		WHERE d.id = $1 AND d.user_id = $2
		RETURNING ` + designColumns

	var design models.SavedDesign
	found, err := getOne(ctx, t.tx, &design, query,
		id, userID, patch.Name, patch.VariantID, patch.DesignData,
		patch.ArtworkIDs, patch.ThumbnailURL, patch.Notes)
	if err != nil || !found {
		return nil, err
	}
	return &design, nil
}

// FindDesign retrieves a design owned by userID
func (s *Store) FindDesign(ctx context.Context, id uuid.UUID, userID string) (*models.SavedDesign, error) {
	var design models.SavedDesign
	found, err := getOne(ctx, s.db, &design,
		designSelect+" WHERE d.id = $1 AND d.user_id = $2", id, userID)
	if err != nil || !found {
		return nil, err
	}
	return &design, nil
}

// ListDesignsByUser retrieves a user's designs, most recently edited first
func (s *Store) ListDesignsByUser(ctx context.Context, userID string) ([]models.SavedDesign, error) {
	designs := []models.SavedDesign{}
	err := s.db.SelectContext(ctx, &designs,
		designSelect+" WHERE d.user_id = $1 ORDER BY d.updated_at DESC", userID)
	return designs, err
}

// DeleteDesign removes a design owned by userID and reports whether it existed
func (s *Store) DeleteDesign(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM saved_designs WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListAssetsByIDs retrieves the assets among ids that exist
func (s *Store) ListAssetsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Asset, error) {
	if len(ids) == 0 {
		return []models.Asset{}, nil
	}

	query, args, err := sqlx.In("SELECT "+assetColumns+" FROM assets WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}

	assets := []models.Asset{}
	err = s.db.SelectContext(ctx, &assets, s.db.Rebind(query), args...)
	return assets, err
}

// AttachAssets gives unowned assets among ids to an owner
func (t *Tx) AttachAssets(ctx context.Context, ids []uuid.UUID, ownerType string, ownerID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		"UPDATE assets SET owner_type = ?, owner_id = ? WHERE id IN (?) AND owner_id IS NULL",
		ownerType, ownerID, ids)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	return err
}
