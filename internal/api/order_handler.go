package api

import (
	"net/http"

	"apparel-service/internal/apperr"
	"apparel-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// capturePaymentRequest is the body of POST /api/orders/:id/capture-payment
type capturePaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	result, err := h.svc.Orders.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, result)
}

// getOrder resolves an order by id or order number
func (h *Handler) getOrder(c *gin.Context) {
	detail, err := h.svc.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, detail)
}

// capturePayment confirms the order's payment with the gateway
func (h *Handler) capturePayment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.Validation("Invalid order ID"))
		return
	}

	var req capturePaymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	order, err := h.svc.Payments.CapturePayment(c.Request.Context(), orderID, req.PaymentIntentID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"order": order})
}

// quotePrice prices a customizer selection
func (h *Handler) quotePrice(c *gin.Context) {
	var req service.QuoteRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	quote, err := h.svc.Quotes.Quote(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, quote)
}
