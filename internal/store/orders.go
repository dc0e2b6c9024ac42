package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"

	"github.com/google/uuid"
)

const orderColumns = `id, user_id, products, total_amount, discount_amount, status, payment_method,
	currency, processed_amount, processed_currency, promo_code, creator_code, payment_intent_id,
	failure_reason, created_at, updated_at`

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, user_id, products, total_amount, discount_amount, status, payment_method,
			currency, processed_amount, processed_currency, promo_code, creator_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		order.ID, order.UserID, order.Products, order.TotalAmount, order.DiscountAmount, order.Status,
		order.PaymentMethod, order.Currency, order.ProcessedAmount, order.ProcessedCurrency,
		order.PromoCode, order.CreatorCode).Scan(&order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.getOrder(ctx, "id = $1", id)
}

// GetOrderByPaymentIntentID retrieves an order by its gateway payment reference
func (s *Store) GetOrderByPaymentIntentID(ctx context.Context, paymentID string) (*models.Order, error) {
	return s.getOrder(ctx, "payment_intent_id = $1", paymentID)
}

func (s *Store) getOrder(ctx context.Context, where string, arg interface{}) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("order not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SetPaymentIntent links an order to a gateway payment
func (s *Store) SetPaymentIntent(ctx context.Context, orderID uuid.UUID, paymentID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_intent_id = $1, updated_at = NOW() WHERE id = $2",
		paymentID, orderID)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}
	return nil
}

// TransitionOrderStatus moves an order from one status to another.
// It reports false when the order was not in the expected status.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID uuid.UUID, from, to string, reason *string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, failure_reason = COALESCE($2, failure_reason), updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		to, reason, orderID, from)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return affected(res)
}

// ListOrdersByUser returns a page of a user's orders, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	return orders, err
}

// CountOrdersByUser counts a user's orders
func (s *Store) CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders WHERE user_id = $1", userID)
	return n, err
}
