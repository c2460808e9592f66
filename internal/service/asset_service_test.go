package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"apparel-service/internal/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var assetColumnNames = []string{"id", "owner_type", "owner_id", "file_url", "storage_key",
	"file_type", "file_size", "original_name", "hash", "created_at"}

// pngBytes is a PNG signature followed by an IHDR chunk header
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)

func newAssetFixture(t *testing.T, maxBytes int64) (*AssetService, sqlmock.Sqlmock, *memoryBlobs) {
	s, m := newMockStore(t)
	blobs := newMemoryBlobs()
	return NewAssetService(s, blobs, maxBytes, []string{" image/webp "}), m, blobs
}

func TestAssetUpload_StoresByContentHash(t *testing.T) {
	svc, m, blobs := newAssetFixture(t, 1<<20)
	sum := sha256.Sum256(pngBytes)
	hash := hex.EncodeToString(sum[:])
	key := "artwork/" + hash + ".png"

	m.ExpectBegin()
	expectKeyLock(m, key)
	m.ExpectQuery(`INSERT INTO assets`).
		WithArgs(OwnerTypeCustomer, nil, "/uploads/"+key, key, "image/png", int64(len(pngBytes)), "logo.png", hash).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New().String(), time.Now()))
	m.ExpectCommit()

	asset, err := svc.Upload(context.Background(), &UploadRequest{
		Data:         pngBytes,
		OriginalName: "../../logo.png",
	})

	require.NoError(t, err)
	assert.Equal(t, key, asset.StorageKey)
	assert.Equal(t, "image/png", asset.FileType)
	assert.Equal(t, "logo.png", asset.OriginalName)
	assert.Contains(t, blobs.objects, key)
	assert.NoError(t, m.ExpectationsWereMet())
}

func expectKeyLock(m sqlmock.Sqlmock, key string) {
	m.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).WithArgs(key).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestAssetUpload_LockFailureWritesNothing(t *testing.T) {
	svc, m, blobs := newAssetFixture(t, 1<<20)
	sum := sha256.Sum256(pngBytes)
	key := "artwork/" + hex.EncodeToString(sum[:]) + ".png"

	m.ExpectBegin()
	m.ExpectExec(`pg_advisory_xact_lock`).WithArgs(key).WillReturnError(errors.New("lock timeout"))
	m.ExpectRollback()

	_, err := svc.Upload(context.Background(), &UploadRequest{Data: pngBytes, OriginalName: "logo.png"})

	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Empty(t, blobs.objects, "nothing is written without the key lock")
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestAssetUpload_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		message string
	}{
		{"empty", nil, "No file provided"},
		{"too large", bytes.Repeat([]byte{1}, 65), "File too large"},
		{"plain text", []byte("just some notes"), "Invalid file type"},
		{"executable", append([]byte("MZ"), bytes.Repeat([]byte{0}, 30)...), "Invalid file type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m, blobs := newAssetFixture(t, 64)

			_, err := svc.Upload(context.Background(), &UploadRequest{Data: tt.data, OriginalName: "x"})

			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.message, apperr.PublicMessage(err))
			assert.Empty(t, blobs.objects)
			assert.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestAssetUpload_AcceptsSVGAndPDF(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		fileType string
	}{
		{"svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`), "image/svg+xml"},
		{"pdf", []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n"), "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m, _ := newAssetFixture(t, 1<<20)
			m.ExpectBegin()
			m.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectQuery(`INSERT INTO assets`).
				WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New().String(), time.Now()))
			m.ExpectCommit()

			asset, err := svc.Upload(context.Background(), &UploadRequest{Data: tt.data, OriginalName: "art." + tt.name})

			require.NoError(t, err)
			assert.Equal(t, tt.fileType, asset.FileType)
			assert.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestAssetDelete(t *testing.T) {
	assetRow := func(id uuid.UUID) *sqlmock.Rows {
		return sqlmock.NewRows(assetColumnNames).AddRow(id.String(), "customer", nil,
			"/uploads/artwork/abc.png", "artwork/abc.png", "image/png", 10, "a.png", "abc", time.Now())
	}

	t.Run("last reference removes the stored file", func(t *testing.T) {
		svc, m, blobs := newAssetFixture(t, 1<<20)
		id := uuid.New()
		m.ExpectBegin()
		m.ExpectQuery(`DELETE FROM assets WHERE id = \$1`).WithArgs(id).WillReturnRows(assetRow(id))
		expectKeyLock(m, "artwork/abc.png")
		m.ExpectQuery(`SELECT COUNT\(\*\) FROM assets`).WithArgs("artwork/abc.png").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		m.ExpectCommit()

		require.NoError(t, svc.Delete(context.Background(), id))
		assert.Equal(t, []string{"artwork/abc.png"}, blobs.deleted)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("shared file is kept", func(t *testing.T) {
		svc, m, blobs := newAssetFixture(t, 1<<20)
		id := uuid.New()
		m.ExpectBegin()
		m.ExpectQuery(`DELETE FROM assets WHERE id = \$1`).WithArgs(id).WillReturnRows(assetRow(id))
		expectKeyLock(m, "artwork/abc.png")
		m.ExpectQuery(`SELECT COUNT\(\*\) FROM assets`).WithArgs("artwork/abc.png").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		m.ExpectCommit()

		require.NoError(t, svc.Delete(context.Background(), id))
		assert.Empty(t, blobs.deleted)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("count failure keeps the stored file", func(t *testing.T) {
		svc, m, blobs := newAssetFixture(t, 1<<20)
		id := uuid.New()
		m.ExpectBegin()
		m.ExpectQuery(`DELETE FROM assets WHERE id = \$1`).WithArgs(id).WillReturnRows(assetRow(id))
		expectKeyLock(m, "artwork/abc.png")
		m.ExpectQuery(`SELECT COUNT\(\*\) FROM assets`).WillReturnError(errors.New("connection reset"))
		m.ExpectRollback()

		err := svc.Delete(context.Background(), id)

		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
		assert.Empty(t, blobs.deleted)
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("unknown asset", func(t *testing.T) {
		svc, m, _ := newAssetFixture(t, 1<<20)
		id := uuid.New()
		m.ExpectBegin()
		m.ExpectQuery(`DELETE FROM assets WHERE id = \$1`).WithArgs(id).WillReturnRows(sqlmock.NewRows(assetColumnNames))
		m.ExpectRollback()

		err := svc.Delete(context.Background(), id)

		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})
}
