package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100

	paymentDescription = "Store Purchase"
	reasonMismatch     = "Payment amount mismatch."
	reasonGateway      = "Payment could not be created."
)

// OrderService handles the order lifecycle: create, execute, cancel and list
type OrderService struct {
	repo        Repository
	catalog     *Catalog
	discounts   *DiscountResolver
	converter   CurrencyConverter
	gateway     PaymentGateway
	fulfillment *FulfillmentEngine
	events      EventPublisher
	settlement  string
	logger      *zap.Logger
}

// NewOrderService creates a new order service. gateway may be nil when no
// payment provider is configured.
func NewOrderService(
	repo Repository,
	catalog *Catalog,
	discounts *DiscountResolver,
	converter CurrencyConverter,
	gateway PaymentGateway,
	fulfillment *FulfillmentEngine,
	events EventPublisher,
	settlementCurrency string,
) *OrderService {
	return &OrderService{
		repo:        repo,
		catalog:     catalog,
		discounts:   discounts,
		converter:   converter,
		gateway:     gateway,
		fulfillment: fulfillment,
		events:      events,
		settlement:  strings.ToUpper(settlementCurrency),
		logger:      util.GetLogger(),
	}
}

// CreateOrderRequest represents a checkout submission
type CreateOrderRequest struct {
	Products      []CartItem `json:"products" binding:"required,min=1,dive"`
	PaymentMethod string     `json:"paymentMethod" binding:"required"`
	Currency      string     `json:"currency"`
	PromoCode     string     `json:"promoCode,omitempty"`
}

// CreateOrderResponse carries either the completed order or a gateway approval URL
type CreateOrderResponse struct {
	Order      *models.Order          `json:"order,omitempty"`
	PaymentURL string                 `json:"paymentUrl,omitempty"`
	Delivery   *models.DeliveryReport `json:"delivery,omitempty"`
}

// CreateOrder prices the cart, resolves the discount, converts to the
// settlement currency and persists a pending order. Gateway orders return an
// approval URL; any other payment method is fulfilled immediately.
func (s *OrderService) CreateOrder(ctx context.Context, user *models.User, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if len(req.Products) == 0 || strings.TrimSpace(req.PaymentMethod) == "" {
		return nil, ErrEmptyCart
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.settlement
	}

	lines, err := s.catalog.PriceCart(ctx, req.Products)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	discount, err := s.discounts.Resolve(ctx, user, req.PromoCode, lines.Total())
	if err != nil {
		return nil, err
	}

	processed, err := s.converter.Convert(ctx, discount.NewTotal, currency, s.settlement)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("conversion").Inc()
		return nil, err
	}

	order := &models.Order{
		ID:                uuid.New(),
		UserID:            user.ID,
		Products:          lines,
		TotalAmount:       discount.NewTotal,
		DiscountAmount:    discount.Amount,
		Status:            models.OrderStatusPending,
		PaymentMethod:     req.PaymentMethod,
		Currency:          currency,
		ProcessedAmount:   processed,
		ProcessedCurrency: s.settlement,
		PromoCode:         discount.PromoCode(),
		CreatorCode:       discount.CreatorCode(),
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.WithLabelValues(order.PaymentMethod).Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.String("processed", order.ProcessedAmount.StringFixed(2)))

	created := &models.OrderCreatedEvent{
		BaseEvent:       models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:         order.ID,
		UserID:          order.UserID,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		ProcessedAmount: order.ProcessedAmount,
		PaymentMethod:   order.PaymentMethod,
		Items:           order.Products,
	}
	if err := s.events.PublishOrderCreated(ctx, created); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	if order.PaymentMethod == models.PaymentMethodPayPal {
		return s.startGatewayPayment(ctx, order)
	}

	report, err := s.fulfillment.Fulfill(ctx, order)
	if err != nil {
		return nil, err
	}
	return &CreateOrderResponse{Order: order, Delivery: report}, nil
}

func (s *OrderService) startGatewayPayment(ctx context.Context, order *models.Order) (*CreateOrderResponse, error) {
	if s.gateway == nil {
		s.markFailed(ctx, order, reasonGateway, "gateway_error")
		return nil, apperror.Upstream("payment provider is not configured", nil)
	}

	payment, err := s.gateway.CreatePayment(ctx, order.ProcessedAmount, order.ProcessedCurrency, paymentDescription, order.ID.String())
	if err != nil {
		s.logger.Error("Failed to create gateway payment", zap.String("order_id", order.ID.String()), zap.Error(err))
		s.markFailed(ctx, order, reasonGateway, "gateway_error")
		return nil, apperror.Upstream("could not start payment", err)
	}

	if err := s.repo.SetPaymentIntent(ctx, order.ID, payment.ID); err != nil {
		s.logger.Error("Failed to link gateway payment",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_id", payment.ID),
			zap.Error(err))
		s.markFailed(ctx, order, reasonGateway, "db_error")
		return nil, fmt.Errorf("failed to link payment to order: %w", err)
	}
	order.PaymentIntentID = models.StringPtr(payment.ID)

	return &CreateOrderResponse{PaymentURL: payment.ApprovalURL}, nil
}

// ExecutePayment completes a gateway payment after buyer approval. It returns
// ErrAmountMismatch when the captured amount differs from the settlement amount.
func (s *OrderService) ExecutePayment(ctx context.Context, paymentID, payerID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ExecutePayment")
	defer span.End()

	if paymentID == "" || payerID == "" {
		return nil, apperror.Validation("paymentId and PayerID are required", nil)
	}
	if s.gateway == nil {
		return nil, apperror.Upstream("payment provider is not configured", nil)
	}

	order, err := s.repo.GetOrderByPaymentIntentID(ctx, paymentID)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, apperror.Wrap(ErrOrderNotFound, err)
	}
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderStatusPending:
	case models.OrderStatusCompleted:
		s.logger.Info("Payment already executed", zap.String("order_id", order.ID.String()))
		return order, nil
	default:
		return order, apperror.Wrap(ErrInvalidState, fmt.Errorf("order %s is %s", order.ID, order.Status))
	}

	executed, err := s.gateway.ExecutePayment(ctx, paymentID, payerID)
	if err != nil {
		return order, apperror.Upstream("could not execute payment", err)
	}

	if !executed.PaidAmount.Round(2).Equal(order.ProcessedAmount.Round(2)) {
		s.logger.Error("Payment amount mismatch",
			zap.String("order_id", order.ID.String()),
			zap.String("paid", executed.PaidAmount.StringFixed(2)),
			zap.String("expected", order.ProcessedAmount.StringFixed(2)))
		s.markFailed(ctx, order, reasonMismatch, "amount_mismatch")
		return order, ErrAmountMismatch
	}

	if _, err := s.fulfillment.Fulfill(ctx, order); err != nil {
		if errors.Is(err, ErrFulfillmentInProgress) {
			return order, nil
		}
		return order, err
	}
	return order, nil
}

func (s *OrderService) markFailed(ctx context.Context, order *models.Order, reason, label string) {
	ok, err := s.repo.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusFailed, &reason)
	if err != nil || !ok {
		s.logger.Error("Failed to mark order failed",
			zap.String("order_id", order.ID.String()),
			zap.Bool("transitioned", ok),
			zap.Error(err))
		return
	}
	order.Status = models.OrderStatusFailed
	order.FailureReason = models.StringPtr(reason)

	util.OrdersFailedTotal.WithLabelValues(label).Inc()
	event := &models.OrderFailedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderFailed),
		OrderID:   order.ID,
		Reason:    reason,
	}
	if err := s.events.PublishOrderFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderFailed event", zap.Error(err))
	}
}

// CancelOrder cancels a pending order owned by the user
func (s *OrderService) CancelOrder(ctx context.Context, user *models.User, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.ownedOrder(ctx, user, orderID, false)
	if err != nil {
		return nil, err
	}
	if order.IsTerminal() {
		return nil, ErrInvalidState
	}

	ok, err := s.repo.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}
	order.Status = models.OrderStatusCancelled

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled", zap.String("order_id", order.ID.String()))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   order.ID,
		UserID:    order.UserID,
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	return order, nil
}

// GetOrder returns an order to its owner or an admin
func (s *OrderService) GetOrder(ctx context.Context, user *models.User, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	return s.ownedOrder(ctx, user, orderID, true)
}

func (s *OrderService) ownedOrder(ctx context.Context, user *models.User, orderID uuid.UUID, adminMayRead bool) (*models.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, apperror.Wrap(ErrOrderNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	if order.UserID != user.ID && !(adminMayRead && user.IsSuperAdmin()) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// OrderPage is one page of a user's order history
type OrderPage struct {
	Count  int            `json:"count"`
	Page   int            `json:"page"`
	Pages  int            `json:"pages"`
	Orders []models.Order `json:"orders"`
}

// ListMyOrders pages through the user's orders, newest first
func (s *OrderService) ListMyOrders(ctx context.Context, user *models.User, page, limit int) (*OrderPage, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListMyOrders")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	count, err := s.repo.CountOrdersByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	orders, err := s.repo.ListOrdersByUser(ctx, user.ID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return &OrderPage{
		Count:  count,
		Page:   page,
		Pages:  (count + limit - 1) / limit,
		Orders: orders,
	}, nil
}
