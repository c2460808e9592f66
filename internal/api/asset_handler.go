package api

import (
	"errors"
	"io"
	"net/http"

	"apparel-service/internal/apperr"
	"apparel-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// multipart framing allowance on top of the file itself
const uploadOverheadBytes = 1 << 20

type signedURLRequest struct {
	Filename string `json:"filename" binding:"required"`
	Filetype string `json:"filetype" binding:"required"`
}

// signedUploadURL tells the client where to send the file. Uploads always
// go through this service so their content can be checked.
func (h *Handler) signedUploadURL(c *gin.Context) {
	var req signedURLRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"upload_url": "/api/uploads/file",
		"method":     http.MethodPost,
		"field":      "file",
		"max_bytes":  h.opts.MaxUploadBytes,
	})
}

// uploadFile stores a multipart "file" field as a customer asset
func (h *Handler) uploadFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes+uploadOverheadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperr.Validation("File too large"))
			return
		}
		respondError(c, apperr.Validation("No file provided"))
		return
	}
	if fileHeader.Size > h.opts.MaxUploadBytes {
		respondError(c, apperr.Validation("File too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, apperr.Internal("Failed to read upload", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.opts.MaxUploadBytes+1))
	if err != nil {
		respondError(c, apperr.Internal("Failed to read upload", err))
		return
	}

	asset, err := h.svc.Assets.Upload(c.Request.Context(), &service.UploadRequest{
		Data:         data,
		OriginalName: fileHeader.Filename,
		OwnerType:    service.OwnerTypeCustomer,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, gin.H{"asset": asset})
}

func (h *Handler) getAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.NotFound("Asset not found"))
		return
	}

	asset, err := h.svc.Assets.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"asset": asset})
}
