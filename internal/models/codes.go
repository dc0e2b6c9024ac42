package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CodeType distinguishes order discounts from in-game rewards
type CodeType string

const (
	CodeTypeDiscount CodeType = "discount"
	CodeTypeReward   CodeType = "reward"
)

// DiscountType selects how a discount value is applied
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var hundred = decimal.NewFromInt(100)

// DiscountRule is a discount type paired with its value
type DiscountRule struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Apply computes the discount for total and the clamped new total.
// The reported discount is always total minus newTotal.
func (r DiscountRule) Apply(total decimal.Decimal) (discount, newTotal decimal.Decimal) {
	switch r.Type {
	case DiscountPercentage:
		discount = total.Mul(r.Value).Div(hundred)
	case DiscountFixed:
		discount = r.Value
	default:
		return decimal.Zero, total
	}
	newTotal = total.Sub(discount).Round(2)
	if newTotal.IsNegative() {
		newTotal = decimal.Zero
	}
	return total.Sub(newTotal), newTotal
}

// NormalizeCode upper-cases and trims a code for storage and lookup
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PromoCode is an admin-issued discount or reward code
type PromoCode struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	Code           string           `db:"code" json:"code"`
	CodeType       CodeType         `db:"code_type" json:"codeType"`
	DiscountType   *DiscountType    `db:"discount_type" json:"discountType"`
	DiscountValue  *decimal.Decimal `db:"discount_value" json:"discountValue"`
	RewardCommands pq.StringArray   `db:"reward_commands" json:"rewardCommands"`
	IsActive       bool             `db:"is_active" json:"isActive"`
	Uses           int              `db:"uses" json:"uses"`
	MaxUses        *int             `db:"max_uses" json:"maxUses"`
	ExpiryDate     *time.Time       `db:"expiry_date" json:"expiryDate"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

// Expired reports whether the code is past its expiry date
func (p *PromoCode) Expired(now time.Time) bool {
	return p.ExpiryDate != nil && p.ExpiryDate.Before(now)
}

// Exhausted reports whether the usage cap has been reached
func (p *PromoCode) Exhausted() bool {
	return p.MaxUses != nil && p.Uses >= *p.MaxUses
}

// Usable reports whether the code is active, unexpired and under its cap
func (p *PromoCode) Usable(now time.Time) bool {
	return p.IsActive && !p.Expired(now) && !p.Exhausted()
}

// Rule returns the discount rule of a discount-type code
func (p *PromoCode) Rule() (DiscountRule, bool) {
	if p.CodeType != CodeTypeDiscount || p.DiscountType == nil || p.DiscountValue == nil {
		return DiscountRule{}, false
	}
	return DiscountRule{Type: *p.DiscountType, Value: *p.DiscountValue}, true
}

// CreatorCode is a referral code owned by one user
type CreatorCode struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Code          string          `db:"code" json:"code"`
	CreatorID     *uuid.UUID      `db:"creator_id" json:"creatorId"`
	DiscountType  DiscountType    `db:"discount_type" json:"discountType"`
	DiscountValue decimal.Decimal `db:"discount_value" json:"discountValue"`
	IsActive      bool            `db:"is_active" json:"isActive"`
	ReferralCount int             `db:"referral_count" json:"referralCount"`
	MaxUses       *int            `db:"max_uses" json:"maxUses"`
	ExpiryDate    *time.Time      `db:"expiry_date" json:"expiryDate"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// Default creator code discount
var (
	DefaultCreatorDiscountType  = DiscountPercentage
	DefaultCreatorDiscountValue = decimal.NewFromInt(10)
)

// OwnedBy reports whether userID owns the code
func (c *CreatorCode) OwnedBy(userID uuid.UUID) bool {
	return c.CreatorID != nil && *c.CreatorID == userID
}

// Expired reports whether the code is past its expiry date
func (c *CreatorCode) Expired(now time.Time) bool {
	return c.ExpiryDate != nil && c.ExpiryDate.Before(now)
}

// Exhausted reports whether the referral cap has been reached
func (c *CreatorCode) Exhausted() bool {
	return c.MaxUses != nil && c.ReferralCount >= *c.MaxUses
}

// Usable reports whether the code is active, unexpired and under its cap
func (c *CreatorCode) Usable(now time.Time) bool {
	return c.IsActive && !c.Expired(now) && !c.Exhausted()
}

// Rule returns the code's discount rule
func (c *CreatorCode) Rule() DiscountRule {
	return DiscountRule{Type: c.DiscountType, Value: c.DiscountValue}
}
