package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreatorCodeInput carries admin-supplied creator code fields. Nil fields are
// left unchanged on update.
type CreatorCodeInput struct {
	Code          *string              `json:"code"`
	CreatorID     *uuid.UUID           `json:"creatorId"`
	DiscountType  *models.DiscountType `json:"discountType"`
	DiscountValue *decimal.Decimal     `json:"discountValue"`
	MaxUses       *int                 `json:"maxUses"`
	ExpiryDate    *time.Time           `json:"expiryDate"`
	IsActive      *bool                `json:"isActive"`
}

func (in *CreatorCodeInput) applyTo(c *models.CreatorCode) {
	if in.Code != nil {
		c.Code = models.NormalizeCode(*in.Code)
	}
	if in.CreatorID != nil {
		c.CreatorID = in.CreatorID
	}
	if in.DiscountType != nil {
		c.DiscountType = *in.DiscountType
	}
	if in.DiscountValue != nil {
		c.DiscountValue = *in.DiscountValue
	}
	if in.MaxUses != nil {
		c.MaxUses = in.MaxUses
	}
	if in.ExpiryDate != nil {
		c.ExpiryDate = in.ExpiryDate
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
}

func validateCreatorCode(c *models.CreatorCode) error {
	switch {
	case c.Code == "" || c.CreatorID == nil:
		return apperror.Validation("code and creator ID are required", nil)
	case !c.DiscountType.Valid():
		return apperror.Validation("discountType must be percentage or fixed", nil)
	case !c.DiscountValue.IsPositive():
		return apperror.Validation("discountValue must be positive", nil)
	case c.DiscountType == models.DiscountPercentage && c.DiscountValue.GreaterThan(decimal.NewFromInt(100)):
		return apperror.Validation("percentage discount cannot exceed 100", nil)
	case c.MaxUses != nil && *c.MaxUses < 0:
		return apperror.Validation("maxUses must not be negative", nil)
	}
	return nil
}

// CreatorService administers creator codes and lets users support a creator
type CreatorService struct {
	repo      Repository
	discounts *DiscountResolver
	logger    *zap.Logger
}

// NewCreatorService creates a new creator code service
func NewCreatorService(repo Repository, discounts *DiscountResolver) *CreatorService {
	return &CreatorService{
		repo:      repo,
		discounts: discounts,
		logger:    util.GetLogger(),
	}
}

func (s *CreatorService) List(ctx context.Context) ([]models.CreatorCode, error) {
	return s.repo.ListCreatorCodes(ctx)
}

func (s *CreatorService) Get(ctx context.Context, id uuid.UUID) (*models.CreatorCode, error) {
	return s.repo.GetCreatorCodeByID(ctx, id)
}

// freeCreator loads a user that is about to own a code
func (s *CreatorService) freeCreator(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, apperror.NotFound("creator user not found", err)
	}
	if err != nil {
		return nil, err
	}
	if user.CreatorCode != nil && *user.CreatorCode != "" {
		return nil, apperror.Conflict(fmt.Sprintf("this user already has a creator code assigned: %s", *user.CreatorCode), nil)
	}
	return user, nil
}

// Create assigns a new creator code to a user who owns none
func (s *CreatorService) Create(ctx context.Context, in *CreatorCodeInput) (*models.CreatorCode, error) {
	ctx, span := util.StartSpan(ctx, "CreatorService.Create")
	defer span.End()

	code := &models.CreatorCode{
		ID:            uuid.New(),
		DiscountType:  models.DefaultCreatorDiscountType,
		DiscountValue: models.DefaultCreatorDiscountValue,
		IsActive:      true,
	}
	in.applyTo(code)
	if err := validateCreatorCode(code); err != nil {
		return nil, err
	}

	if _, err := s.freeCreator(ctx, *code.CreatorID); err != nil {
		return nil, err
	}

	if err := s.repo.CreateCreatorCode(ctx, code); err != nil {
		return nil, err
	}
	s.logger.Info("Creator code created",
		zap.String("code", code.Code),
		zap.String("creator_id", code.CreatorID.String()))
	return code, nil
}

// Update changes a creator code, moving it to a new owner when creatorId changes
func (s *CreatorService) Update(ctx context.Context, id uuid.UUID, in *CreatorCodeInput) (*models.CreatorCode, error) {
	ctx, span := util.StartSpan(ctx, "CreatorService.Update")
	defer span.End()

	code, err := s.repo.GetCreatorCodeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previous, previousCode := code.CreatorID, code.Code

	in.applyTo(code)
	if err := validateCreatorCode(code); err != nil {
		return nil, err
	}

	if previous == nil || *previous != *code.CreatorID {
		if _, err := s.freeCreator(ctx, *code.CreatorID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateCreatorCode(ctx, code, previous, previousCode); err != nil {
		return nil, err
	}
	return code, nil
}

// Delete removes a creator code and clears it from its owner
func (s *CreatorService) Delete(ctx context.Context, id uuid.UUID) error {
	code, err := s.repo.GetCreatorCodeByID(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.DeleteCreatorCode(ctx, code)
}

// GetByCreator returns the code owned by a user, visible to that user or an admin
func (s *CreatorService) GetByCreator(ctx context.Context, requester *models.User, creatorID uuid.UUID) (*models.CreatorCode, error) {
	if requester.ID != creatorID && !requester.IsSuperAdmin() {
		return nil, apperror.Forbidden("not authorized to view this creator code", nil)
	}

	code, err := s.repo.GetCreatorCodeByCreator(ctx, creatorID)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, apperror.NotFound("no creator code found for this user", err)
	}
	return code, err
}

// Apply stores a creator code as the one the user supports. When total is
// given the discount it would produce is returned as well.
func (s *CreatorService) Apply(ctx context.Context, user *models.User, code string, total *decimal.Decimal) (*models.CreatorCode, *Discount, error) {
	ctx, span := util.StartSpan(ctx, "CreatorService.Apply")
	defer span.End()

	creator, err := s.discounts.CheckCreatorCode(ctx, user, code)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.SetAppliedCreatorCode(ctx, user.ID, models.StringPtr(creator.Code)); err != nil {
		return nil, nil, err
	}
	user.AppliedCreatorCode = models.StringPtr(creator.Code)

	var preview *Discount
	if total != nil && !total.IsNegative() {
		preview = applyRule(DiscountCreator, creator.Code, creator.Rule(), *total)
	}
	return creator, preview, nil
}

// Remove clears the creator code the user supports
func (s *CreatorService) Remove(ctx context.Context, user *models.User) error {
	if err := s.repo.SetAppliedCreatorCode(ctx, user.ID, nil); err != nil {
		return err
	}
	user.AppliedCreatorCode = nil
	return nil
}
