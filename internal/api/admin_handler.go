package api

import (
	"net/http"

	"apparel-service/internal/apperr"
	"apparel-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type productionStatusRequest struct {
	Status         string  `json:"status" binding:"required"`
	TrackingNumber *string `json:"tracking_number"`
}

type paymentStatusRequest struct {
	Status          string  `json:"status" binding:"required"`
	PaymentIntentID *string `json:"payment_intent_id"`
}

type itemStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func parseID(c *gin.Context, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		respondError(c, apperr.Validation(message))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) listOrders(c *gin.Context) {
	var req service.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, asValidation(err))
		return
	}

	orders, err := h.svc.Orders.ListOrders(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) orderHistory(c *gin.Context) {
	orderID, ok := parseID(c, "id", "Invalid order ID")
	if !ok {
		return
	}

	history, err := h.svc.Orders.GetHistory(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"history": history})
}

func (h *Handler) updateProductionStatus(c *gin.Context) {
	orderID, ok := parseID(c, "id", "Invalid order ID")
	if !ok {
		return
	}

	var req productionStatusRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	order, err := h.svc.Status.UpdateOrderProductionStatus(c.Request.Context(), orderID, req.Status, req.TrackingNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"order": order})
}

func (h *Handler) updatePaymentStatus(c *gin.Context) {
	orderID, ok := parseID(c, "id", "Invalid order ID")
	if !ok {
		return
	}

	var req paymentStatusRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	order, err := h.svc.Status.UpdateOrderPaymentStatus(c.Request.Context(), orderID, req.Status, req.PaymentIntentID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"order": order})
}

func (h *Handler) updateItemStatus(c *gin.Context) {
	orderID, ok := parseID(c, "id", "Invalid order ID")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "itemId", "Invalid item ID")
	if !ok {
		return
	}

	var req itemStatusRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	item, err := h.svc.Status.UpdateItemProductionStatus(c.Request.Context(), orderID, itemID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"item": item})
}

func (h *Handler) deleteAsset(c *gin.Context) {
	id, ok := parseID(c, "id", "Invalid asset ID")
	if !ok {
		return
	}

	if err := h.svc.Assets.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Asset deleted",
	})
}
