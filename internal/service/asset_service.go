package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"
	"apparel-service/internal/store"
	"apparel-service/internal/util"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const artworkPrefix = "artwork"

// Asset owner types
const (
	OwnerTypeCustomer = "customer"
	OwnerTypeDesign   = "design"
)

var defaultUploadTypes = []string{
	"image/png",
	"image/jpeg",
	"image/svg+xml",
	"application/pdf",
	"application/postscript",
}

// AssetService stores customer artwork
type AssetService struct {
	store        *store.Store
	blobs        BlobStore
	allowedTypes []string
	maxBytes     int64
	logger       *zap.Logger
}

// NewAssetService creates a new asset service. extraTypes extends the
// built-in list of accepted MIME types.
func NewAssetService(store *store.Store, blobs BlobStore, maxBytes int64, extraTypes []string) *AssetService {
	allowed := append([]string{}, defaultUploadTypes...)
	for _, t := range extraTypes {
		if t = strings.TrimSpace(t); t != "" {
			allowed = append(allowed, t)
		}
	}
	return &AssetService{
		store:        store,
		blobs:        blobs,
		allowedTypes: allowed,
		maxBytes:     maxBytes,
		logger:       util.GetLogger(),
	}
}

// UploadRequest is one uploaded file
type UploadRequest struct {
	Data         []byte
	OriginalName string
	OwnerType    string
	OwnerID      *uuid.UUID
}

// detectType sniffs the content and returns the accepted MIME type it
// matches, with the file extension to store it under
func (s *AssetService) detectType(data []byte) (string, string, bool) {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		for _, allowed := range s.allowedTypes {
			if m.Is(allowed) {
				return allowed, m.Extension(), true
			}
		}
	}
	return detected.String(), detected.Extension(), false
}

// Upload validates and stores a file. Objects are keyed by content hash,
// so uploading the same bytes twice reuses one stored object.
func (s *AssetService) Upload(ctx context.Context, req *UploadRequest) (*models.Asset, error) {
	ctx, span := util.StartSpan(ctx, "AssetService.Upload",
		attribute.Int("size", len(req.Data)))
	defer span.End()

	if len(req.Data) == 0 {
		util.AssetUploadsTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.Validation("No file provided")
	}
	if int64(len(req.Data)) > s.maxBytes {
		util.AssetUploadsTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.Validation("File too large")
	}

	fileType, ext, ok := s.detectType(req.Data)
	if !ok {
		util.AssetUploadsTotal.WithLabelValues("rejected").Inc()
		s.logger.Info("Rejected upload", zap.String("detected_type", fileType))
		return nil, apperr.Validation("Invalid file type")
	}
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(req.OriginalName))
	}

	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("%s/%s%s", artworkPrefix, hash, ext)

	ownerType := req.OwnerType
	if ownerType == "" {
		ownerType = OwnerTypeCustomer
	}
	asset := &models.Asset{
		OwnerType:    ownerType,
		OwnerID:      req.OwnerID,
		StorageKey:   key,
		FileType:     fileType,
		FileSize:     int64(len(req.Data)),
		OriginalName: filepath.Base(req.OriginalName),
		Hash:         hash,
	}

	// the key lock keeps a concurrent Delete from removing the object
	// between Put and the insert
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.LockStorageKey(ctx, key); err != nil {
			return err
		}
		url, err := s.blobs.Put(ctx, key, req.Data, fileType)
		if err != nil {
			return apperr.Internal("Failed to store file", err)
		}
		asset.FileURL = url
		return tx.InsertAsset(ctx, asset)
	})
	if err != nil {
		util.RecordError(span, err)
		util.AssetUploadsTotal.WithLabelValues("error").Inc()
		if apperr.Is(err, apperr.KindInternal) {
			return nil, err
		}
		return nil, apperr.Internal("Failed to save asset", err)
	}

	util.AssetUploadsTotal.WithLabelValues("stored").Inc()
	util.AssetUploadBytes.Observe(float64(asset.FileSize))
	s.logger.Info("Asset uploaded",
		zap.String("asset_id", asset.ID.String()),
		zap.String("file_type", fileType),
		zap.Int64("size", asset.FileSize))
	return asset, nil
}

// Get returns an asset by id
func (s *AssetService) Get(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	asset, err := s.store.FindAssetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("Failed to load asset", err)
	}
	if asset == nil {
		return nil, apperr.NotFound("Asset not found")
	}
	return asset, nil
}

// Delete removes an asset. The stored object goes away with the last asset
// that references it.
func (s *AssetService) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "AssetService.Delete",
		attribute.String("asset_id", id.String()))
	defer span.End()

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		asset, err := tx.DeleteAsset(ctx, id)
		if err != nil {
			return err
		}
		if asset == nil {
			return apperr.NotFound("Asset not found")
		}

		if err := tx.LockStorageKey(ctx, asset.StorageKey); err != nil {
			return err
		}
		remaining, err := tx.CountAssetsByKey(ctx, asset.StorageKey)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if err := s.blobs.Delete(ctx, asset.StorageKey); err != nil {
			// the row is gone; an orphaned object is only wasted space
			s.logger.Error("Failed to delete stored file",
				zap.String("storage_key", asset.StorageKey), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return err
		}
		util.RecordError(span, err)
		return apperr.Internal("Failed to delete asset", err)
	}
	return nil
}
