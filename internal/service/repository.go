package service

import (
	"context"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/gateway"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductRepository is the catalog persistence used by the store services
type ProductRepository interface {
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) (bool, error)
}

// UserRepository exposes the user fields the order flow mutates
type UserRepository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AddPoints(ctx context.Context, userID uuid.UUID, points int) error
	AppendUsedPromoCode(ctx context.Context, userID, promoID uuid.UUID) error
	SetAppliedCreatorCode(ctx context.Context, userID uuid.UUID, code *string) error
}

type PromoCodeRepository interface {
	CreatePromoCode(ctx context.Context, p *models.PromoCode) error
	UpdatePromoCode(ctx context.Context, p *models.PromoCode) error
	DeletePromoCode(ctx context.Context, id uuid.UUID) error
	GetPromoCodeByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error)
	GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error)
	ListPromoCodes(ctx context.Context) ([]models.PromoCode, error)
	IncrementPromoUses(ctx context.Context, id uuid.UUID) error
	ClaimPromoUse(ctx context.Context, id uuid.UUID) (bool, error)
}

type CreatorCodeRepository interface {
	CreateCreatorCode(ctx context.Context, c *models.CreatorCode) error
	UpdateCreatorCode(ctx context.Context, c *models.CreatorCode, previousOwner *uuid.UUID, previousCode string) error
	DeleteCreatorCode(ctx context.Context, c *models.CreatorCode) error
	GetCreatorCodeByID(ctx context.Context, id uuid.UUID) (*models.CreatorCode, error)
	GetCreatorCodeByCode(ctx context.Context, code string) (*models.CreatorCode, error)
	GetCreatorCodeByCreator(ctx context.Context, creatorID uuid.UUID) (*models.CreatorCode, error)
	ListCreatorCodes(ctx context.Context) ([]models.CreatorCode, error)
	IncrementReferralCount(ctx context.Context, id uuid.UUID) (bool, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByPaymentIntentID(ctx context.Context, paymentID string) (*models.Order, error)
	SetPaymentIntent(ctx context.Context, orderID uuid.UUID, paymentID string) error
	TransitionOrderStatus(ctx context.Context, orderID uuid.UUID, from, to string, reason *string) (bool, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error)
	CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// Repository is everything the services need from persistence
type Repository interface {
	ProductRepository
	UserRepository
	PromoCodeRepository
	CreatorCodeRepository
	OrderRepository
}

var _ Repository = (*store.Store)(nil)

// CommandDispatcher sends one rendered command to the game server
type CommandDispatcher interface {
	ExecuteCommand(ctx context.Context, command string, player models.PlayerContext) error
}

type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

type PaymentGateway interface {
	CreatePayment(ctx context.Context, total decimal.Decimal, currency, description, orderID string) (*gateway.Payment, error)
	ExecutePayment(ctx context.Context, paymentID, payerID string) (*gateway.ExecutedPayment, error)
}

// FulfillmentGuard makes sure an order's side effects run at most once
type FulfillmentGuard interface {
	ClaimFulfillment(ctx context.Context, orderID uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseFulfillment(ctx context.Context, orderID uuid.UUID) error
}

type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// EventPublisher publishes store domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishPromoRedeemed(ctx context.Context, event *models.PromoRedeemedEvent) error
	PublishDeliveryFailed(ctx context.Context, event *models.DeliveryFailedEvent) error
}
