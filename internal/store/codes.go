package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const promoColumns = `id, code, code_type, discount_type, discount_value, reward_commands, is_active,
	uses, max_uses, expiry_date, created_at, updated_at`

const creatorColumns = `id, code, creator_id, discount_type, discount_value, is_active, referral_count,
	max_uses, expiry_date, created_at, updated_at`

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreatePromoCode inserts a promo code
func (s *Store) CreatePromoCode(ctx context.Context, p *models.PromoCode) error {
	query := `
		INSERT INTO promo_codes (id, code, code_type, discount_type, discount_value, reward_commands,
			is_active, uses, max_uses, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		p.ID, p.Code, p.CodeType, p.DiscountType, p.DiscountValue, p.RewardCommands,
		p.IsActive, p.MaxUses, p.ExpiryDate).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperror.Conflict("promo code already exists", err)
	}
	if err != nil {
		return fmt.Errorf("failed to create promo code: %w", err)
	}
	return nil
}

// UpdatePromoCode overwrites the mutable fields of a promo code
func (s *Store) UpdatePromoCode(ctx context.Context, p *models.PromoCode) error {
	query := `
		UPDATE promo_codes
		SET code = $1, code_type = $2, discount_type = $3, discount_value = $4, reward_commands = $5,
			is_active = $6, max_uses = $7, expiry_date = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		p.Code, p.CodeType, p.DiscountType, p.DiscountValue, p.RewardCommands,
		p.IsActive, p.MaxUses, p.ExpiryDate, p.ID).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("promo code not found", err)
	}
	if isUniqueViolation(err) {
		return apperror.Conflict("promo code already exists", err)
	}
	if err != nil {
		return fmt.Errorf("failed to update promo code: %w", err)
	}
	return nil
}

// DeletePromoCode removes a promo code
func (s *Store) DeletePromoCode(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM promo_codes WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete promo code: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("promo code not found", nil)
	}
	return nil
}

// GetPromoCodeByID retrieves a promo code by ID
func (s *Store) GetPromoCodeByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	return s.getPromoCode(ctx, "id = $1", id)
}

// GetPromoCodeByCode retrieves a promo code by its normalized code
func (s *Store) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	return s.getPromoCode(ctx, "code = $1", models.NormalizeCode(code))
}

func (s *Store) getPromoCode(ctx context.Context, where string, arg interface{}) (*models.PromoCode, error) {
	var p models.PromoCode
	err := s.db.GetContext(ctx, &p, "SELECT "+promoColumns+" FROM promo_codes WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("promo code not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPromoCodes returns all promo codes, newest first
func (s *Store) ListPromoCodes(ctx context.Context) ([]models.PromoCode, error) {
	var codes []models.PromoCode
	err := s.db.SelectContext(ctx, &codes, "SELECT "+promoColumns+" FROM promo_codes ORDER BY created_at DESC")
	return codes, err
}

// IncrementPromoUses atomically counts one more use of a promo code
func (s *Store) IncrementPromoUses(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE promo_codes SET uses = uses + 1, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to increment promo uses: %w", err)
	}
	return nil
}

// ClaimPromoUse increments uses only while the code is still redeemable.
// It reports false when the code became inactive, expired or exhausted.
func (s *Store) ClaimPromoUse(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE promo_codes SET uses = uses + 1, updated_at = NOW()
		 WHERE id = $1 AND is_active
		   AND (max_uses IS NULL OR uses < max_uses)
		   AND (expiry_date IS NULL OR expiry_date > NOW())`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim promo use: %w", err)
	}
	return affected(res)
}

// CreateCreatorCode inserts a creator code and links it to its owner
func (s *Store) CreateCreatorCode(ctx context.Context, c *models.CreatorCode) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO creator_codes (id, code, creator_id, discount_type, discount_value, is_active,
				referral_count, max_uses, expiry_date)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
			RETURNING created_at, updated_at`

		err := tx.QueryRowxContext(ctx, query,
			c.ID, c.Code, c.CreatorID, c.DiscountType, c.DiscountValue, c.IsActive,
			c.MaxUses, c.ExpiryDate).Scan(&c.CreatedAt, &c.UpdatedAt)
		if isUniqueViolation(err) {
			return apperror.Conflict("creator code already exists", err)
		}
		if err != nil {
			return fmt.Errorf("failed to create creator code: %w", err)
		}

		return setOwnerCode(ctx, tx, c.CreatorID, &c.Code)
	})
}

// UpdateCreatorCode overwrites a creator code and moves ownership when the creator changed.
// A renamed code stays applied for the users who supported it under its previous text.
func (s *Store) UpdateCreatorCode(ctx context.Context, c *models.CreatorCode, previousOwner *uuid.UUID, previousCode string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE creator_codes
			SET code = $1, creator_id = $2, discount_type = $3, discount_value = $4, is_active = $5,
				max_uses = $6, expiry_date = $7, updated_at = NOW()
			WHERE id = $8
			RETURNING updated_at`

		err := tx.QueryRowxContext(ctx, query,
			c.Code, c.CreatorID, c.DiscountType, c.DiscountValue, c.IsActive,
			c.MaxUses, c.ExpiryDate, c.ID).Scan(&c.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("creator code not found", err)
		}
		if isUniqueViolation(err) {
			return apperror.Conflict("creator code already exists", err)
		}
		if err != nil {
			return fmt.Errorf("failed to update creator code: %w", err)
		}

		if previousCode != "" && previousCode != c.Code {
			_, err := tx.ExecContext(ctx,
				"UPDATE users SET applied_creator_code = $1, updated_at = NOW() WHERE applied_creator_code = $2",
				c.Code, previousCode)
			if err != nil {
				return fmt.Errorf("failed to move supporters to renamed creator code: %w", err)
			}
		}

		if previousOwner != nil && (c.CreatorID == nil || *previousOwner != *c.CreatorID) {
			if err := setOwnerCode(ctx, tx, previousOwner, nil); err != nil {
				return err
			}
		}
		return setOwnerCode(ctx, tx, c.CreatorID, &c.Code)
	})
}

// DeleteCreatorCode removes a creator code and clears it from its owner
func (s *Store) DeleteCreatorCode(ctx context.Context, c *models.CreatorCode) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM creator_codes WHERE id = $1", c.ID)
		if err != nil {
			return fmt.Errorf("failed to delete creator code: %w", err)
		}
		ok, err := affected(res)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("creator code not found", nil)
		}
		return setOwnerCode(ctx, tx, c.CreatorID, nil)
	})
}

func setOwnerCode(ctx context.Context, tx *sqlx.Tx, owner *uuid.UUID, code *string) error {
	if owner == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		"UPDATE users SET creator_code = $1, updated_at = NOW() WHERE id = $2", code, *owner)
	if err != nil {
		return fmt.Errorf("failed to update creator code owner: %w", err)
	}
	return nil
}

// GetCreatorCodeByID retrieves a creator code by ID
func (s *Store) GetCreatorCodeByID(ctx context.Context, id uuid.UUID) (*models.CreatorCode, error) {
	return s.getCreatorCode(ctx, "id = $1", id)
}

// GetCreatorCodeByCode retrieves a creator code by its normalized code
func (s *Store) GetCreatorCodeByCode(ctx context.Context, code string) (*models.CreatorCode, error) {
	return s.getCreatorCode(ctx, "code = $1", models.NormalizeCode(code))
}

// GetCreatorCodeByCreator retrieves the code owned by a user
func (s *Store) GetCreatorCodeByCreator(ctx context.Context, creatorID uuid.UUID) (*models.CreatorCode, error) {
	return s.getCreatorCode(ctx, "creator_id = $1", creatorID)
}

func (s *Store) getCreatorCode(ctx context.Context, where string, arg interface{}) (*models.CreatorCode, error) {
	var c models.CreatorCode
	err := s.db.GetContext(ctx, &c, "SELECT "+creatorColumns+" FROM creator_codes WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("creator code not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCreatorCodes returns all creator codes, newest first
func (s *Store) ListCreatorCodes(ctx context.Context) ([]models.CreatorCode, error) {
	var codes []models.CreatorCode
	err := s.db.SelectContext(ctx, &codes, "SELECT "+creatorColumns+" FROM creator_codes ORDER BY created_at DESC")
	return codes, err
}

// IncrementReferralCount atomically counts a referral on an active creator code.
// It reports false when the code is no longer active.
func (s *Store) IncrementReferralCount(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE creator_codes SET referral_count = referral_count + 1, updated_at = NOW() WHERE id = $1 AND is_active",
		id)
	if err != nil {
		return false, fmt.Errorf("failed to increment referral count: %w", err)
	}
	return affected(res)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
