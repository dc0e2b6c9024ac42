package worker

import (
	"context"

	"github.com/Spolkip/AtlasCoreSite/internal/broker"
	"github.com/Spolkip/AtlasCoreSite/internal/service"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"go.uber.org/zap"
)

// DeliveryRetryWorker consumes failed in-game deliveries and retries them once
type DeliveryRetryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewDeliveryRetryWorker creates a new delivery retry worker
func NewDeliveryRetryWorker(consumer *broker.Consumer, retrier *service.DeliveryRetrier) *DeliveryRetryWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnDeliveryFailed(retrier.HandleDeliveryFailed)

	return &DeliveryRetryWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming until ctx is cancelled
func (w *DeliveryRetryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting delivery retry worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DeliveryRetryWorker) Stop() error {
	w.logger.Info("Stopping delivery retry worker")
	return w.consumer.Close()
}
