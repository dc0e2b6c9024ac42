package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DiscountSource names which mechanism produced an order's discount
type DiscountSource string

const (
	DiscountNone    DiscountSource = "none"
	DiscountCreator DiscountSource = "creator"
	DiscountPromo   DiscountSource = "promo"
)

// Discount is the outcome of resolving codes against a total
type Discount struct {
	Source   DiscountSource  `json:"source"`
	Code     string          `json:"code,omitempty"`
	Original decimal.Decimal `json:"originalTotal"`
	Amount   decimal.Decimal `json:"discountAmount"`
	NewTotal decimal.Decimal `json:"newTotal"`
}

// PromoCode is the code to persist on the order, if a promo code applied
func (d *Discount) PromoCode() *string {
	if d.Source != DiscountPromo {
		return nil
	}
	return models.StringPtr(d.Code)
}

// CreatorCode is the code to persist on the order, if a creator code applied
func (d *Discount) CreatorCode() *string {
	if d.Source != DiscountCreator {
		return nil
	}
	return models.StringPtr(d.Code)
}

func noDiscount(total decimal.Decimal) *Discount {
	return &Discount{Source: DiscountNone, Original: total, Amount: decimal.Zero, NewTotal: total}
}

func applyRule(source DiscountSource, code string, rule models.DiscountRule, total decimal.Decimal) *Discount {
	amount, newTotal := rule.Apply(total)
	return &Discount{Source: source, Code: code, Original: total, Amount: amount, NewTotal: newTotal}
}

type discountStep struct {
	source  DiscountSource
	resolve func(r *DiscountResolver, ctx context.Context, user *models.User, promoCode string, total decimal.Decimal) (*Discount, error)
}

// discountPrecedence is evaluated top to bottom and the first step that
// yields a discount wins. Discounts never stack.
var discountPrecedence = []discountStep{
	{source: DiscountCreator, resolve: (*DiscountResolver).fromAppliedCreatorCode},
	{source: DiscountPromo, resolve: (*DiscountResolver).fromPromoCode},
}

// DiscountResolver decides which single discount applies to an order
type DiscountResolver struct {
	promos   PromoCodeRepository
	creators CreatorCodeRepository
	now      func() time.Time
	logger   *zap.Logger
}

// NewDiscountResolver creates a new discount resolver
func NewDiscountResolver(promos PromoCodeRepository, creators CreatorCodeRepository) *DiscountResolver {
	return &DiscountResolver{
		promos:   promos,
		creators: creators,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Resolve picks the discount for an order total. The only error a buyer can
// see from an unusable code is ErrAlreadyUsed; other unusable codes yield no discount.
func (r *DiscountResolver) Resolve(ctx context.Context, user *models.User, promoCode string, total decimal.Decimal) (*Discount, error) {
	ctx, span := util.StartSpan(ctx, "DiscountResolver.Resolve")
	defer span.End()

	for _, step := range discountPrecedence {
		d, err := step.resolve(r, ctx, user, promoCode, total)
		if err != nil {
			return nil, err
		}
		if d != nil {
			util.DiscountsAppliedTotal.WithLabelValues(string(step.source)).Inc()
			r.logger.Info("Discount applied",
				zap.String("user_id", user.ID.String()),
				zap.String("source", string(step.source)),
				zap.String("code", d.Code),
				zap.String("amount", d.Amount.StringFixed(2)))
			return d, nil
		}
	}

	return noDiscount(total), nil
}

func (r *DiscountResolver) fromAppliedCreatorCode(ctx context.Context, user *models.User, _ string, total decimal.Decimal) (*Discount, error) {
	if user.AppliedCreatorCode == nil || *user.AppliedCreatorCode == "" {
		return nil, nil
	}

	code, err := r.creators.GetCreatorCodeByCode(ctx, *user.AppliedCreatorCode)
	if apperror.Is(err, apperror.KindNotFound) {
		r.logger.Warn("Applied creator code no longer exists",
			zap.String("user_id", user.ID.String()),
			zap.String("code", *user.AppliedCreatorCode))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up creator code: %w", err)
	}

	if !code.Usable(r.now()) {
		return nil, nil
	}
	if code.OwnedBy(user.ID) {
		r.logger.Info("Skipping self-applied creator code",
			zap.String("user_id", user.ID.String()),
			zap.String("code", code.Code))
		return nil, nil
	}

	return applyRule(DiscountCreator, code.Code, code.Rule(), total), nil
}

func (r *DiscountResolver) fromPromoCode(ctx context.Context, user *models.User, promoCode string, total decimal.Decimal) (*Discount, error) {
	if models.NormalizeCode(promoCode) == "" {
		return nil, nil
	}

	promo, err := r.promos.GetPromoCodeByCode(ctx, promoCode)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up promo code: %w", err)
	}

	rule, ok := promo.Rule()
	if !ok || !promo.IsActive {
		return nil, nil
	}
	if !user.IsSuperAdmin() && user.HasUsedPromo(promo.ID) {
		return nil, ErrAlreadyUsed
	}
	if !promo.Usable(r.now()) {
		return nil, nil
	}

	return applyRule(DiscountPromo, promo.Code, rule, total), nil
}

// PreviewPromoCode computes the discount a discount-type promo code would give
// without touching any counters.
func (r *DiscountResolver) PreviewPromoCode(ctx context.Context, user *models.User, code string, total decimal.Decimal) (*Discount, error) {
	ctx, span := util.StartSpan(ctx, "DiscountResolver.PreviewPromoCode")
	defer span.End()

	if total.IsNegative() {
		return nil, apperror.Validation("totalAmount must not be negative", nil)
	}

	promo, err := r.promos.GetPromoCodeByCode(ctx, code)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up promo code: %w", err)
	}

	rule, ok := promo.Rule()
	if !ok || !promo.IsActive {
		return nil, ErrCodeNotFound
	}
	if promo.Expired(r.now()) {
		return nil, ErrCodeExpired
	}
	if promo.Exhausted() {
		return nil, ErrCodeExhausted
	}
	if !user.IsSuperAdmin() && user.HasUsedPromo(promo.ID) {
		return nil, ErrAlreadyUsed
	}

	return applyRule(DiscountPromo, promo.Code, rule, total), nil
}

// CheckCreatorCode validates a creator code for the given user
func (r *DiscountResolver) CheckCreatorCode(ctx context.Context, user *models.User, code string) (*models.CreatorCode, error) {
	creator, err := r.creators.GetCreatorCodeByCode(ctx, code)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up creator code: %w", err)
	}

	switch {
	case !creator.IsActive:
		return nil, ErrCodeNotFound
	case creator.Expired(r.now()):
		return nil, ErrCodeExpired
	case creator.Exhausted():
		return nil, ErrCodeExhausted
	case creator.OwnedBy(user.ID):
		return nil, ErrSelfReferral
	}
	return creator, nil
}

// PreviewCreatorCode computes the discount a creator code would give
func (r *DiscountResolver) PreviewCreatorCode(ctx context.Context, user *models.User, code string, total decimal.Decimal) (*Discount, error) {
	if total.IsNegative() {
		return nil, apperror.Validation("totalAmount must not be negative", nil)
	}
	creator, err := r.CheckCreatorCode(ctx, user, code)
	if err != nil {
		return nil, err
	}
	return applyRule(DiscountCreator, creator.Code, creator.Rule(), total), nil
}
