package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Spolkip/AtlasCoreSite/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), user, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if resp.PaymentURL != "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "paymentUrl": resp.PaymentURL})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  "Order placed and fulfilled successfully.",
		"order":    resp.Order,
		"delivery": resp.Delivery,
	})
}

// executePayment is the gateway return URL. It always answers with a redirect.
func (h *Handler) executePayment(c *gin.Context) {
	paymentID := c.Query("paymentId")
	payerID := c.Query("PayerID")

	order, err := h.orders.ExecutePayment(c.Request.Context(), paymentID, payerID)
	if err != nil {
		fields := []zap.Field{zap.String("payment_id", paymentID), zap.Error(err)}
		if order != nil {
			fields = append(fields, zap.String("order_id", order.ID.String()))
		}
		if errors.Is(err, service.ErrAmountMismatch) {
			h.logger.Warn("Payment rejected", fields...)
		} else {
			h.logger.Error("Payment execution failed", fields...)
		}
		c.Redirect(http.StatusFound, h.redirects.CancelURL)
		return
	}

	c.Redirect(http.StatusFound, h.redirects.SuccessURL)
}

func (h *Handler) listMyOrders(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	result, err := h.orders.ListMyOrders(c.Request.Context(), user, page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   result.Count,
		"page":    result.Page,
		"pages":   result.Pages,
		"orders":  result.Orders,
	})
}

type cancelOrderRequest struct {
	OrderID uuid.UUID `json:"orderId" binding:"required"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), user, req.OrderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order cancelled successfully.", "order": order})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), user, orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}
