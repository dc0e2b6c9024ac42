package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/auth"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/service"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService is the order lifecycle the handlers drive
type OrderService interface {
	CreateOrder(ctx context.Context, user *models.User, req *service.CreateOrderRequest) (*service.CreateOrderResponse, error)
	ExecutePayment(ctx context.Context, paymentID, payerID string) (*models.Order, error)
	CancelOrder(ctx context.Context, user *models.User, orderID uuid.UUID) (*models.Order, error)
	GetOrder(ctx context.Context, user *models.User, orderID uuid.UUID) (*models.Order, error)
	ListMyOrders(ctx context.Context, user *models.User, page, limit int) (*service.OrderPage, error)
}

// ProductCatalog lists the storefront
type ProductCatalog interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// PromoCodeService administers and redeems promo codes
type PromoCodeService interface {
	List(ctx context.Context) ([]models.PromoCode, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PromoCode, error)
	Create(ctx context.Context, in *service.PromoCodeInput) (*models.PromoCode, error)
	Update(ctx context.Context, id uuid.UUID, in *service.PromoCodeInput) (*models.PromoCode, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Preview(ctx context.Context, user *models.User, code string, total decimal.Decimal) (*service.Discount, error)
	Redeem(ctx context.Context, user *models.User, code string) (*models.DeliveryReport, error)
}

// CreatorCodeService administers and applies creator codes
type CreatorCodeService interface {
	List(ctx context.Context) ([]models.CreatorCode, error)
	Get(ctx context.Context, id uuid.UUID) (*models.CreatorCode, error)
	Create(ctx context.Context, in *service.CreatorCodeInput) (*models.CreatorCode, error)
	Update(ctx context.Context, id uuid.UUID, in *service.CreatorCodeInput) (*models.CreatorCode, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByCreator(ctx context.Context, requester *models.User, creatorID uuid.UUID) (*models.CreatorCode, error)
	Apply(ctx context.Context, user *models.User, code string, total *decimal.Decimal) (*models.CreatorCode, *service.Discount, error)
	Remove(ctx context.Context, user *models.User) error
}

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Redirects are the buyer landing pages after the gateway callback
type Redirects struct {
	SuccessURL string
	CancelURL  string
}

// Handler contains HTTP handlers
type Handler struct {
	orders    OrderService
	catalog   ProductCatalog
	promos    PromoCodeService
	creators  CreatorCodeService
	auth      *auth.Middleware
	redirects Redirects
	checks    map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders OrderService,
	catalog ProductCatalog,
	promos PromoCodeService,
	creators CreatorCodeService,
	authMW *auth.Middleware,
	redirects Redirects,
	checks map[string]Pinger,
) *Handler {
	return &Handler{
		orders:    orders,
		catalog:   catalog,
		promos:    promos,
		creators:  creators,
		auth:      authMW,
		redirects: redirects,
		checks:    checks,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/products", h.listProducts)
	// the gateway redirects the buyer's browser here without a bearer token
	v1.GET("/orders/execute", h.executePayment)

	authed := v1.Group("", h.auth.Authenticate())
	admin := h.auth.RequireSuperAdmin()
	{
		authed.POST("/orders", h.createOrder)
		authed.GET("/orders/my-orders", h.listMyOrders)
		authed.POST("/orders/cancel", h.cancelOrder)
		authed.GET("/orders/:id", h.getOrder)

		authed.GET("/promocodes", admin, h.listPromoCodes)
		authed.POST("/promocodes", admin, h.createPromoCode)
		authed.POST("/promocodes/apply", h.previewPromoCode)
		authed.POST("/promocodes/redeem", h.redeemPromoCode)
		authed.GET("/promocodes/:id", admin, h.getPromoCode)
		authed.PUT("/promocodes/:id", admin, h.updatePromoCode)
		authed.DELETE("/promocodes/:id", admin, h.deletePromoCode)

		authed.GET("/creatorcodes", admin, h.listCreatorCodes)
		authed.POST("/creatorcodes", admin, h.createCreatorCode)
		authed.POST("/creatorcodes/apply", h.applyCreatorCode)
		authed.DELETE("/creatorcodes/apply", h.removeCreatorCode)
		authed.GET("/creatorcodes/user/:userId", h.getCreatorCodeByUser)
		authed.GET("/creatorcodes/:id", admin, h.getCreatorCode)
		authed.PUT("/creatorcodes/:id", admin, h.updateCreatorCode)
		authed.DELETE("/creatorcodes/:id", admin, h.deleteCreatorCode)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing store
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "products": products})
}

// writeError maps an error to its HTTP status and renders {success:false, message}
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Server error"

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperror.KindNotFound:
			status = http.StatusNotFound
		case apperror.KindValidation, apperror.KindConflict:
			status = http.StatusBadRequest
		case apperror.KindUnauthorized:
			status = http.StatusUnauthorized
		case apperror.KindForbidden:
			status = http.StatusForbidden
		}
		if status != http.StatusInternalServerError {
			message = appErr.Error()
		}
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(status, gin.H{"success": false, "message": message})
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

func (h *Handler) currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized"})
	}
	return user, ok
}

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.badRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
