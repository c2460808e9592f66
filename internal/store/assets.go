package store

import (
	"context"

	"apparel-service/internal/models"

	"github.com/google/uuid"
)

const assetColumns = `id, owner_type, owner_id, file_url, storage_key, file_type, file_size, original_name, hash, created_at`

// LockStorageKey serializes uploads and deletes of one stored object until
// the transaction ends
func (t *Tx) LockStorageKey(ctx context.Context, key string) error {
	_, err := t.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key)
	return err
}

// InsertAsset records an uploaded file
func (t *Tx) InsertAsset(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO assets (owner_type, owner_id, file_url, storage_key, file_type, file_size, original_name, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, asset, query,
		asset.OwnerType, asset.OwnerID, asset.FileURL, asset.StorageKey,
		asset.FileType, asset.FileSize, asset.OriginalName, asset.Hash)
}

// FindAssetByID retrieves an asset by ID
func (s *Store) FindAssetByID(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	found, err := getOne(ctx, s.db, &asset,
		"SELECT "+assetColumns+" FROM assets WHERE id = $1", id)
	if err != nil || !found {
		return nil, err
	}
	return &asset, nil
}

// DeleteAsset removes an asset row and returns it, or nil when absent
func (t *Tx) DeleteAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	found, err := getOne(ctx, t.tx, &asset,
		"DELETE FROM assets WHERE id = $1 RETURNING "+assetColumns, id)
	if err != nil || !found {
		return nil, err
	}
	return &asset, nil
}

// CountAssetsByKey counts the rows that point at one stored object
func (t *Tx) CountAssetsByKey(ctx context.Context, key string) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM assets WHERE storage_key = $1", key)
	return n, err
}
