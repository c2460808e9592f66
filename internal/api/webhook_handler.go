package api

import (
	"io"
	"net/http"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// provider payloads are small; anything larger is not a real event
const maxWebhookBytes = 64 << 10

type productionUpdateRequest struct {
	EventID        string    `json:"event_id"`
	OrderID        uuid.UUID `json:"order_id" binding:"required"`
	Status         string    `json:"status" binding:"required"`
	TrackingNumber string    `json:"tracking_number"`
}

// stripeWebhook verifies and applies a payment provider event
func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		respondError(c, apperr.Validation("Invalid webhook payload"))
		return
	}

	if err := h.svc.Payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// productionUpdate applies a print partner status push
func (h *Handler) productionUpdate(c *gin.Context) {
	var req productionUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	event := &models.ProductionUpdateEvent{
		BaseEvent: models.BaseEvent{
			EventID:   req.EventID,
			EventType: models.EventTypeProductionUpdate,
		},
		OrderID:        req.OrderID,
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
	}
	if err := h.svc.Status.ApplyProductionUpdate(c.Request.Context(), event); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Production update received",
	})
}
