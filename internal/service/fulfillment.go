package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"go.uber.org/zap"
)

const (
	completionAttempts = 3
	completionBackoff  = 50 * time.Millisecond
)

// FulfillmentConfig tunes the fulfillment engine
type FulfillmentConfig struct {
	ReferralPoints  int
	ClaimTTL        time.Duration
	PublishFailures bool
}

// FulfillmentEngine delivers a paid order and settles its code side effects
type FulfillmentEngine struct {
	repo   Repository
	runner commandRunner
	guard  FulfillmentGuard
	events EventPublisher
	cfg    FulfillmentConfig
	logger *zap.Logger
}

// NewFulfillmentEngine creates a new fulfillment engine. guard may be nil.
func NewFulfillmentEngine(
	repo Repository,
	dispatcher CommandDispatcher,
	guard FulfillmentGuard,
	events EventPublisher,
	cfg FulfillmentConfig,
) *FulfillmentEngine {
	logger := util.GetLogger()
	return &FulfillmentEngine{
		repo:   repo,
		runner: commandRunner{dispatcher: dispatcher, logger: logger},
		guard:  guard,
		events: events,
		cfg:    cfg,
		logger: logger,
	}
}

// Fulfill runs every post-payment side effect of a pending order exactly once
// and marks it completed. Per-command delivery failures are collected in the
// returned report rather than failing the order.
func (f *FulfillmentEngine) Fulfill(ctx context.Context, order *models.Order) (*models.DeliveryReport, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentEngine.Fulfill")
	defer span.End()

	start := time.Now()
	defer func() {
		util.FulfillmentLatency.Observe(time.Since(start).Seconds())
	}()

	if order.IsTerminal() {
		return nil, apperror.Wrap(ErrInvalidState, fmt.Errorf("order %s is %s", order.ID, order.Status))
	}

	if f.guard != nil {
		claimed, err := f.guard.ClaimFulfillment(ctx, order.ID, f.cfg.ClaimTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to claim fulfillment: %w", err)
		}
		if !claimed {
			f.logger.Info("Fulfillment already claimed", zap.String("order_id", order.ID.String()))
			return nil, ErrFulfillmentInProgress
		}
	}

	user, err := f.loadPurchaser(ctx, order)
	if err != nil {
		f.release(ctx, order)
		return nil, err
	}

	// side effects start here; the claim is kept from now on
	report := f.deliver(ctx, order, user)

	if err := f.complete(ctx, order); err != nil {
		f.logger.Error("Order fulfilled but not marked completed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		return report, err
	}

	f.finish(ctx, order, report)
	return report, nil
}

func (f *FulfillmentEngine) release(ctx context.Context, order *models.Order) {
	if f.guard == nil {
		return
	}
	if err := f.guard.ReleaseFulfillment(ctx, order.ID); err != nil {
		f.logger.Error("Failed to release fulfillment claim", zap.Error(err))
	}
}

func (f *FulfillmentEngine) loadPurchaser(ctx context.Context, order *models.Order) (*models.User, error) {
	user, err := f.repo.GetUserByID(ctx, order.UserID)
	if apperror.Is(err, apperror.KindNotFound) {
		f.logger.Warn("Purchaser not found, skipping delivery", zap.String("order_id", order.ID.String()))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load purchaser: %w", err)
	}
	return user, nil
}

func (f *FulfillmentEngine) deliver(ctx context.Context, order *models.Order, user *models.User) *models.DeliveryReport {
	report := newReport(user)
	report.OrderID = &order.ID

	for _, line := range order.Products {
		f.deliverLine(ctx, report, user, line)
	}

	if order.PromoCode != nil {
		f.settlePromo(ctx, order, user)
	}
	if order.CreatorCode != nil {
		f.settleCreator(ctx, order)
	}
	return report
}

// complete moves the order to completed, retrying transient store errors so
// that delivered side effects are never repeated.
func (f *FulfillmentEngine) complete(ctx context.Context, order *models.Order) error {
	var err error
	for attempt := 1; attempt <= completionAttempts; attempt++ {
		var ok bool
		ok, err = f.repo.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCompleted, nil)
		if err == nil {
			if !ok {
				f.logger.Warn("Order left pending before completion", zap.String("order_id", order.ID.String()))
			}
			order.Status = models.OrderStatusCompleted
			return nil
		}

		f.logger.Warn("Failed to mark order completed",
			zap.String("order_id", order.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == completionAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to complete order: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * completionBackoff):
		}
	}
	return fmt.Errorf("failed to complete order: %w", err)
}

func (f *FulfillmentEngine) finish(ctx context.Context, order *models.Order, report *models.DeliveryReport) {
	util.OrdersCompletedTotal.Inc()
	f.logger.Info("Order fulfilled",
		zap.String("order_id", order.ID.String()),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))

	completed := &models.OrderCompletedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderCompleted),
		OrderID:     order.ID,
		UserID:      order.UserID,
		PromoCode:   order.PromoCode,
		CreatorCode: order.CreatorCode,
		Sent:        report.Sent,
		Failed:      report.Failed,
	}
	if err := f.events.PublishOrderCompleted(ctx, completed); err != nil {
		f.logger.Error("Failed to publish OrderCompleted event", zap.Error(err))
	}
	if f.cfg.PublishFailures && report.HasFailures() {
		publishFailures(ctx, f.events, f.logger, report)
	}
}

func (f *FulfillmentEngine) deliverLine(ctx context.Context, report *models.DeliveryReport, user *models.User, line models.OrderLine) {
	product, err := f.repo.GetProductByID(ctx, line.ProductID)
	if err != nil {
		f.logger.Error("Failed to load purchased product",
			zap.String("product_id", line.ProductID.String()),
			zap.Error(err))
		report.Add(models.CommandResult{
			Source:   models.SourceProduct,
			SourceID: line.ProductID.String(),
			Status:   models.DeliverySkipped,
			Error:    "product unavailable",
		})
		return
	}

	if product.Stock != nil {
		ok, err := f.repo.DecrementStock(ctx, product.ID, line.Quantity)
		switch {
		case err != nil:
			f.logger.Error("Failed to decrement stock", zap.String("product_id", product.ID.String()), zap.Error(err))
		case !ok:
			f.logger.Warn("Stock ran out before fulfillment",
				zap.String("product_id", product.ID.String()),
				zap.Int("quantity", line.Quantity))
		}
	}

	f.runner.run(ctx, report, user, models.SourceProduct, product.ID.String(), product.Commands)
}

// settlePromo counts the use of the order's promo code and records it against
// the purchaser. Discount codes carry no commands.
func (f *FulfillmentEngine) settlePromo(ctx context.Context, order *models.Order, user *models.User) {
	promo, err := f.repo.GetPromoCodeByCode(ctx, *order.PromoCode)
	if err != nil {
		f.logger.Warn("Applied promo code not found",
			zap.String("order_id", order.ID.String()),
			zap.String("code", *order.PromoCode),
			zap.Error(err))
		return
	}

	if err := f.repo.IncrementPromoUses(ctx, promo.ID); err != nil {
		f.logger.Error("Failed to increment promo uses", zap.String("code", promo.Code), zap.Error(err))
	}

	if user == nil || user.IsSuperAdmin() {
		return
	}
	if err := f.repo.AppendUsedPromoCode(ctx, user.ID, promo.ID); err != nil {
		f.logger.Error("Failed to record used promo code", zap.String("code", promo.Code), zap.Error(err))
	}
}

func (f *FulfillmentEngine) settleCreator(ctx context.Context, order *models.Order) {
	code, err := f.repo.GetCreatorCodeByCode(ctx, *order.CreatorCode)
	if err != nil {
		f.logger.Warn("Creator code not found, points not awarded",
			zap.String("order_id", order.ID.String()),
			zap.String("code", *order.CreatorCode),
			zap.Error(err))
		return
	}

	counted, err := f.repo.IncrementReferralCount(ctx, code.ID)
	if err != nil {
		f.logger.Error("Failed to increment referral count", zap.String("code", code.Code), zap.Error(err))
		return
	}
	if !counted {
		f.logger.Warn("Creator code is not active, points not awarded", zap.String("code", code.Code))
		return
	}

	switch {
	case code.CreatorID == nil:
		f.logger.Warn("Creator code has no owner, points not awarded", zap.String("code", code.Code))
	case code.OwnedBy(order.UserID):
		f.logger.Info("Self-referral detected, points not awarded", zap.String("code", code.Code))
	default:
		if err := f.repo.AddPoints(ctx, *code.CreatorID, f.cfg.ReferralPoints); err != nil {
			f.logger.Warn("Failed to award referral points",
				zap.String("code", code.Code),
				zap.String("creator_id", code.CreatorID.String()),
				zap.Error(err))
			return
		}
		f.logger.Info("Referral points awarded",
			zap.String("code", code.Code),
			zap.String("creator_id", code.CreatorID.String()),
			zap.Int("points", f.cfg.ReferralPoints))
	}
}
