package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/redisclient"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const redeemLockTTL = 30 * time.Second

// PromoCodeInput carries admin-supplied promo code fields. Nil fields are
// left unchanged on update.
type PromoCodeInput struct {
	Code           *string              `json:"code"`
	CodeType       *models.CodeType     `json:"codeType"`
	DiscountType   *models.DiscountType `json:"discountType"`
	DiscountValue  *decimal.Decimal     `json:"discountValue"`
	RewardCommands *[]string            `json:"rewardCommands"`
	MaxUses        *int                 `json:"maxUses"`
	ExpiryDate     *time.Time           `json:"expiryDate"`
	IsActive       *bool                `json:"isActive"`
}

func (in *PromoCodeInput) applyTo(p *models.PromoCode) {
	if in.Code != nil {
		p.Code = models.NormalizeCode(*in.Code)
	}
	if in.CodeType != nil {
		p.CodeType = *in.CodeType
	}
	if in.DiscountType != nil {
		p.DiscountType = in.DiscountType
	}
	if in.DiscountValue != nil {
		p.DiscountValue = in.DiscountValue
	}
	if in.RewardCommands != nil {
		p.RewardCommands = pq.StringArray(*in.RewardCommands)
	}
	if in.MaxUses != nil {
		p.MaxUses = in.MaxUses
	}
	if in.ExpiryDate != nil {
		p.ExpiryDate = in.ExpiryDate
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

func validatePromoCode(p *models.PromoCode) error {
	if p.Code == "" {
		return apperror.Validation("code is required", nil)
	}
	if p.MaxUses != nil && *p.MaxUses < 0 {
		return apperror.Validation("maxUses must not be negative", nil)
	}

	switch p.CodeType {
	case models.CodeTypeDiscount:
		if p.DiscountType == nil || !p.DiscountType.Valid() {
			return apperror.Validation("discountType must be percentage or fixed", nil)
		}
		if p.DiscountValue == nil || !p.DiscountValue.IsPositive() {
			return apperror.Validation("discountValue must be positive", nil)
		}
		if *p.DiscountType == models.DiscountPercentage && p.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return apperror.Validation("percentage discount cannot exceed 100", nil)
		}
		if len(p.RewardCommands) > 0 {
			return apperror.Validation("discount codes cannot carry in-game commands", nil)
		}
	case models.CodeTypeReward:
		commands := p.RewardCommands[:0:0]
		for _, c := range p.RewardCommands {
			if strings.TrimSpace(c) != "" {
				commands = append(commands, c)
			}
		}
		if len(commands) == 0 {
			return apperror.Validation("reward codes need at least one command", nil)
		}
		p.RewardCommands = commands
		p.DiscountType = nil
		p.DiscountValue = nil
	default:
		return apperror.Validation("codeType must be discount or reward", nil)
	}
	return nil
}

// PromoService administers promo codes and redeems reward codes
type PromoService struct {
	repo      Repository
	discounts *DiscountResolver
	runner    commandRunner
	locker    Locker
	events    EventPublisher
	retry     bool
	now       func() time.Time
	logger    *zap.Logger
}

// NewPromoService creates a new promo service
func NewPromoService(
	repo Repository,
	discounts *DiscountResolver,
	dispatcher CommandDispatcher,
	locker Locker,
	events EventPublisher,
	publishFailures bool,
) *PromoService {
	logger := util.GetLogger()
	return &PromoService{
		repo:      repo,
		discounts: discounts,
		runner:    commandRunner{dispatcher: dispatcher, logger: logger},
		locker:    locker,
		events:    events,
		retry:     publishFailures,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *PromoService) List(ctx context.Context) ([]models.PromoCode, error) {
	return s.repo.ListPromoCodes(ctx)
}

func (s *PromoService) Get(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	return s.repo.GetPromoCodeByID(ctx, id)
}

// Create validates and stores a new promo code
func (s *PromoService) Create(ctx context.Context, in *PromoCodeInput) (*models.PromoCode, error) {
	ctx, span := util.StartSpan(ctx, "PromoService.Create")
	defer span.End()

	promo := &models.PromoCode{
		ID:             uuid.New(),
		CodeType:       models.CodeTypeDiscount,
		RewardCommands: pq.StringArray{},
		IsActive:       true,
	}
	in.applyTo(promo)
	if promo.RewardCommands == nil {
		promo.RewardCommands = pq.StringArray{}
	}
	if err := validatePromoCode(promo); err != nil {
		return nil, err
	}

	if err := s.repo.CreatePromoCode(ctx, promo); err != nil {
		return nil, err
	}
	s.logger.Info("Promo code created", zap.String("code", promo.Code), zap.String("type", string(promo.CodeType)))
	return promo, nil
}

// Update applies a partial update to a promo code
func (s *PromoService) Update(ctx context.Context, id uuid.UUID, in *PromoCodeInput) (*models.PromoCode, error) {
	ctx, span := util.StartSpan(ctx, "PromoService.Update")
	defer span.End()

	promo, err := s.repo.GetPromoCodeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.applyTo(promo)
	if promo.RewardCommands == nil {
		promo.RewardCommands = pq.StringArray{}
	}
	if err := validatePromoCode(promo); err != nil {
		return nil, err
	}

	if err := s.repo.UpdatePromoCode(ctx, promo); err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *PromoService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeletePromoCode(ctx, id)
}

// Preview returns what a discount-type code would take off a total
func (s *PromoService) Preview(ctx context.Context, user *models.User, code string, total decimal.Decimal) (*Discount, error) {
	return s.discounts.PreviewPromoCode(ctx, user, code, total)
}

// Redeem consumes a reward-type code for the user and delivers its commands
// to their linked in-game account.
func (s *PromoService) Redeem(ctx context.Context, user *models.User, code string) (*models.DeliveryReport, error) {
	ctx, span := util.StartSpan(ctx, "PromoService.Redeem")
	defer span.End()

	if models.NormalizeCode(code) == "" {
		return nil, apperror.Validation("code is required", nil)
	}

	promo, err := s.repo.GetPromoCodeByCode(ctx, code)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up reward code: %w", err)
	}

	switch {
	case !promo.IsActive || promo.CodeType != models.CodeTypeReward:
		return nil, ErrCodeNotFound
	case promo.Expired(s.now()):
		return nil, ErrCodeExpired
	case promo.Exhausted():
		return nil, ErrCodeExhausted
	case !user.HasLinkedAccount():
		return nil, ErrNoLinkedAccount
	}

	lockKey := fmt.Sprintf("redeem:%s:%s", user.ID, promo.ID)
	token, err := s.locker.AcquireLock(ctx, lockKey, redeemLockTTL)
	if errors.Is(err, redisclient.ErrLockHeld) {
		return nil, ErrRedeemInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire redeem lock: %w", err)
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
			s.logger.Warn("Failed to release redeem lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	// Reload under the lock so a concurrent redemption is visible.
	fresh, err := s.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	admin := fresh.IsSuperAdmin()
	if !admin && fresh.HasUsedPromo(promo.ID) {
		return nil, ErrAlreadyUsed
	}

	claimed, err := s.repo.ClaimPromoUse(ctx, promo.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrCodeExhausted
	}
	if !admin {
		if err := s.repo.AppendUsedPromoCode(ctx, fresh.ID, promo.ID); err != nil {
			return nil, err
		}
	}

	report := newReport(fresh)
	s.runner.run(ctx, report, fresh, models.SourcePromo, promo.ID.String(), promo.RewardCommands)

	util.PromoRedemptionsTotal.Inc()
	s.logger.Info("Reward code redeemed",
		zap.String("code", promo.Code),
		zap.String("user_id", fresh.ID.String()),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed))

	event := &models.PromoRedeemedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypePromoRedeemed),
		PromoCodeID: promo.ID,
		Code:        promo.Code,
		UserID:      fresh.ID,
	}
	if err := s.events.PublishPromoRedeemed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PromoRedeemed event", zap.Error(err))
	}
	if s.retry && report.HasFailures() {
		publishFailures(ctx, s.events, s.logger, report)
	}

	return report, nil
}
