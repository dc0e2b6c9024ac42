package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderCompleted = "ORDER_COMPLETED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypeOrderFailed    = "ORDER_FAILED"
	EventTypePromoRedeemed  = "PROMO_REDEEMED"
	EventTypeDeliveryFailed = "DELIVERY_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// OrderCreatedEvent published when an order is persisted
type OrderCreatedEvent struct {
	BaseEvent
	OrderID         uuid.UUID       `json:"order_id"`
	UserID          uuid.UUID       `json:"user_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	ProcessedAmount decimal.Decimal `json:"processed_amount"`
	PaymentMethod   string          `json:"payment_method"`
	Items           []OrderLine     `json:"items"`
}

// OrderCompletedEvent published after fulfillment
type OrderCompletedEvent struct {
	BaseEvent
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	PromoCode   *string   `json:"promo_code,omitempty"`
	CreatorCode *string   `json:"creator_code,omitempty"`
	Sent        int       `json:"commands_sent"`
	Failed      int       `json:"commands_failed"`
}

// OrderFailedEvent published when gateway verification fails
type OrderFailedEvent struct {
	BaseEvent
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

// OrderCancelledEvent published when the buyer cancels a pending order
type OrderCancelledEvent struct {
	BaseEvent
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}

// PromoRedeemedEvent published after a reward code redemption
type PromoRedeemedEvent struct {
	BaseEvent
	PromoCodeID uuid.UUID `json:"promo_code_id"`
	Code        string    `json:"code"`
	UserID      uuid.UUID `json:"user_id"`
}

// DeliveryFailedEvent carries one failed in-game command for retry
type DeliveryFailedEvent struct {
	BaseEvent
	OrderID *uuid.UUID    `json:"order_id,omitempty"`
	Source  string        `json:"source"`
	Command string        `json:"command"`
	Player  PlayerContext `json:"player"`
	Attempt int           `json:"attempt"`
}
