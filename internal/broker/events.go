package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing store domain events. Order and promo
// events go to the order topic; failed deliveries go to the delivery topic.
// A publisher built with nil producers drops every event.
type EventPublisher struct {
	orders   *Producer
	delivery *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(orders, delivery *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, delivery: delivery}
}

func publish(ctx context.Context, p *Producer, key string, event interface{}) error {
	if p == nil {
		return nil
	}
	return p.PublishEvent(ctx, key, event)
}

func orderKey(id fmt.Stringer) string {
	return "order-" + id.String()
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return publish(ctx, ep.orders, orderKey(event.OrderID), event)
}

// PublishOrderCompleted publishes OrderCompleted event
func (ep *EventPublisher) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	return publish(ctx, ep.orders, orderKey(event.OrderID), event)
}

// PublishOrderFailed publishes OrderFailed event
func (ep *EventPublisher) PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	return publish(ctx, ep.orders, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return publish(ctx, ep.orders, orderKey(event.OrderID), event)
}

// PublishPromoRedeemed publishes PromoRedeemed event
func (ep *EventPublisher) PublishPromoRedeemed(ctx context.Context, event *models.PromoRedeemedEvent) error {
	return publish(ctx, ep.orders, "promo-"+event.PromoCodeID.String(), event)
}

// PublishDeliveryFailed publishes DeliveryFailed event
func (ep *EventPublisher) PublishDeliveryFailed(ctx context.Context, event *models.DeliveryFailedEvent) error {
	key := "player-" + event.Player.Username
	if event.OrderID != nil {
		key = orderKey(event.OrderID)
	}
	return publish(ctx, ep.delivery, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onDeliveryFailed func(context.Context, *models.DeliveryFailedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnDeliveryFailed registers a handler for DeliveryFailed events
func (eh *EventHandler) OnDeliveryFailed(handler func(context.Context, *models.DeliveryFailedEvent) error) {
	eh.onDeliveryFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeDeliveryFailed:
		if eh.onDeliveryFailed != nil {
			var event models.DeliveryFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DeliveryFailed event: %w", err)
			}
			return eh.onDeliveryFailed(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
