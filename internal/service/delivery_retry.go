package service

import (
	"context"
	"strings"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"go.uber.org/zap"
)

const maxDeliveryAttempts = 2

// ProcessedMarker records handled event ids
type ProcessedMarker interface {
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// DeliveryRetrier replays failed in-game commands once
type DeliveryRetrier struct {
	dispatcher CommandDispatcher
	marker     ProcessedMarker
	ttl        time.Duration
	logger     *zap.Logger
}

// NewDeliveryRetrier creates a new delivery retrier
func NewDeliveryRetrier(dispatcher CommandDispatcher, marker ProcessedMarker, ttl time.Duration) *DeliveryRetrier {
	return &DeliveryRetrier{
		dispatcher: dispatcher,
		marker:     marker,
		ttl:        ttl,
		logger:     util.GetLogger(),
	}
}

// HandleDeliveryFailed retries one failed command. A second failure is
// logged and dropped; order status is never touched.
func (r *DeliveryRetrier) HandleDeliveryFailed(ctx context.Context, event *models.DeliveryFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "DeliveryRetrier.HandleDeliveryFailed")
	defer span.End()

	if strings.TrimSpace(event.Command) == "" || event.Attempt >= maxDeliveryAttempts {
		return nil
	}

	first, err := r.marker.MarkProcessed(ctx, event.EventID, r.ttl)
	if err != nil {
		return err
	}
	if !first {
		r.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	fields := []zap.Field{
		zap.String("event_id", event.EventID),
		zap.String("command", event.Command),
		zap.String("player", event.Player.PlayerName),
	}
	if event.OrderID != nil {
		fields = append(fields, zap.String("order_id", event.OrderID.String()))
	}

	if err := r.dispatcher.ExecuteCommand(ctx, event.Command, event.Player); err != nil {
		util.DeliveryCommandsTotal.WithLabelValues("retry_failed").Inc()
		r.logger.Error("Delivery retry failed, manual reconciliation needed", append(fields, zap.Error(err))...)
		return nil
	}

	util.DeliveryCommandsTotal.WithLabelValues("retried").Inc()
	r.logger.Info("Delivery retry succeeded", fields...)
	return nil
}
