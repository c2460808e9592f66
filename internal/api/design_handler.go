package api

import (
	"net/http"

	"apparel-service/internal/service"

	"github.com/gin-gonic/gin"
)

// saveDesign and the other design handlers run behind requireAuth, so the
// session claims are always set
func (h *Handler) saveDesign(c *gin.Context) {
	var req service.SaveDesignRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	design, err := h.svc.Designs.SaveDesign(c.Request.Context(), currentClaims(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"design": design})
}

func (h *Handler) listDesigns(c *gin.Context) {
	designs, err := h.svc.Designs.ListDesigns(c.Request.Context(), currentClaims(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"designs": designs})
}

func (h *Handler) getDesign(c *gin.Context) {
	id, ok := parseID(c, "id", "Invalid design ID")
	if !ok {
		return
	}

	design, err := h.svc.Designs.GetDesign(c.Request.Context(), currentClaims(c).UserID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"design": design})
}

func (h *Handler) updateDesign(c *gin.Context) {
	id, ok := parseID(c, "id", "Invalid design ID")
	if !ok {
		return
	}

	var req service.UpdateDesignRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	design, err := h.svc.Designs.UpdateDesign(c.Request.Context(), currentClaims(c).UserID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"design": design})
}

func (h *Handler) deleteDesign(c *gin.Context) {
	id, ok := parseID(c, "id", "Invalid design ID")
	if !ok {
		return
	}

	if err := h.svc.Designs.DeleteDesign(c.Request.Context(), currentClaims(c).UserID, id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "Design deleted successfully"})
}
