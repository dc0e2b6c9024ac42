package api

import (
	"net/http"

	"github.com/Spolkip/AtlasCoreSite/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type applyPromoRequest struct {
	Code        string          `json:"code" binding:"required"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type redeemRequest struct {
	Code string `json:"code" binding:"required"`
}

type applyCreatorRequest struct {
	Code        string           `json:"code" binding:"required"`
	TotalAmount *decimal.Decimal `json:"totalAmount"`
}

func (h *Handler) listPromoCodes(c *gin.Context) {
	codes, err := h.promos.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "promoCodes": codes})
}

func (h *Handler) getPromoCode(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	code, err := h.promos.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "promoCode": code})
}

func (h *Handler) createPromoCode(c *gin.Context) {
	var in service.PromoCodeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	code, err := h.promos.Create(c.Request.Context(), &in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "promoCode": code})
}

func (h *Handler) updatePromoCode(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in service.PromoCodeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	code, err := h.promos.Update(c.Request.Context(), id, &in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "promoCode": code})
}

func (h *Handler) deletePromoCode(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.promos.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Promo code removed"})
}

// previewPromoCode quotes a discount-type code without consuming it
func (h *Handler) previewPromoCode(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req applyPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	d, err := h.promos.Preview(c.Request.Context(), user, req.Code, req.TotalAmount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"discountAmount": d.Amount.StringFixed(2),
		"newTotal":       d.NewTotal.StringFixed(2),
		"code":           d.Code,
	})
}

func (h *Handler) redeemPromoCode(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	report, err := h.promos.Redeem(c.Request.Context(), user, req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Code redeemed successfully! Your rewards have been delivered.",
		"delivery": report,
	})
}

func (h *Handler) listCreatorCodes(c *gin.Context) {
	codes, err := h.creators.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "creatorCodes": codes})
}

func (h *Handler) getCreatorCode(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	code, err := h.creators.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "creatorCode": code})
}

func (h *Handler) getCreatorCodeByUser(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	creatorID, ok := h.uuidParam(c, "userId")
	if !ok {
		return
	}
	code, err := h.creators.GetByCreator(c.Request.Context(), user, creatorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "creatorCode": code})
}

func (h *Handler) createCreatorCode(c *gin.Context) {
	var in service.CreatorCodeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	code, err := h.creators.Create(c.Request.Context(), &in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "creatorCode": code})
}

func (h *Handler) updateCreatorCode(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in service.CreatorCodeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	code, err := h.creators.Update(c.Request.Context(), id, &in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "creatorCode": code})
}

func (h *Handler) deleteCreatorCode(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.creators.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Creator code removed"})
}

func (h *Handler) applyCreatorCode(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req applyCreatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	code, preview, err := h.creators.Apply(c.Request.Context(), user, req.Code, req.TotalAmount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	body := gin.H{
		"success":     true,
		"message":     "Creator code applied successfully.",
		"creatorCode": code.Code,
	}
	if preview != nil {
		body["discountAmount"] = preview.Amount.StringFixed(2)
		body["newTotal"] = preview.NewTotal.StringFixed(2)
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) removeCreatorCode(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.creators.Remove(c.Request.Context(), user); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Creator code removed."})
}
