package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/models"

	"github.com/google/uuid"
)

const userColumns = `id, username, email, minecraft_uuid, minecraft_username, roles, creator_code,
	applied_creator_code, points, used_promo_codes, created_at, updated_at`

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AddPoints atomically credits points to a user
func (s *Store) AddPoints(ctx context.Context, userID uuid.UUID, points int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET points = points + $1, updated_at = NOW() WHERE id = $2",
		points, userID)
	if err != nil {
		return fmt.Errorf("failed to add points: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("user not found", nil)
	}
	return nil
}

// AppendUsedPromoCode records a consumed promo code in the user's history
func (s *Store) AppendUsedPromoCode(ctx context.Context, userID, promoID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET used_promo_codes = array_append(used_promo_codes, $1), updated_at = NOW() WHERE id = $2",
		promoID.String(), userID)
	if err != nil {
		return fmt.Errorf("failed to record used promo code: %w", err)
	}
	return nil
}

// SetAppliedCreatorCode stores (or clears, when code is nil) the creator code a user supports
func (s *Store) SetAppliedCreatorCode(ctx context.Context, userID uuid.UUID, code *string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET applied_creator_code = $1, updated_at = NOW() WHERE id = $2",
		code, userID)
	if err != nil {
		return fmt.Errorf("failed to set applied creator code: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("user not found", nil)
	}
	return nil
}
