package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product represents a store item and the in-game commands that deliver it
type Product struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	Name          string           `db:"name" json:"name"`
	Description   *string          `db:"description" json:"description"`
	Price         decimal.Decimal  `db:"price" json:"price"`
	DiscountPrice *decimal.Decimal `db:"discount_price" json:"discountPrice"`
	Stock         *int             `db:"stock" json:"stock"` // nil means unlimited
	Category      *string          `db:"category" json:"category"`
	ImageURL      *string          `db:"image_url" json:"imageUrl"`
	Commands      pq.StringArray   `db:"in_game_commands" json:"in_game_commands"`
	CreatedAt     time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updatedAt"`
}

// EffectivePrice returns the discount price when it undercuts the base price
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.LessThan(p.Price) {
		return *p.DiscountPrice
	}
	return p.Price
}

// HasStock reports whether quantity units can be sold
func (p *Product) HasStock(quantity int) bool {
	return p.Stock == nil || *p.Stock >= quantity
}

// OrderLine is a purchased product snapshot
type OrderLine struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal returns price times quantity
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderLines is stored as a JSONB column
type OrderLines []OrderLine

// Value implements driver.Valuer
func (l OrderLines) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *OrderLines) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = OrderLines{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for order lines: %T", src)
	}
	return json.Unmarshal(data, l)
}

// Total sums line subtotals
func (l OrderLines) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range l {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Order represents a customer order
type Order struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	UserID            uuid.UUID       `db:"user_id" json:"userId"`
	Products          OrderLines      `db:"products" json:"products"`
	TotalAmount       decimal.Decimal `db:"total_amount" json:"totalAmount"`
	DiscountAmount    decimal.Decimal `db:"discount_amount" json:"discountAmount"`
	Status            string          `db:"status" json:"status"`
	PaymentMethod     string          `db:"payment_method" json:"paymentMethod"`
	Currency          string          `db:"currency" json:"currency"`
	ProcessedAmount   decimal.Decimal `db:"processed_amount" json:"processedAmount"`
	ProcessedCurrency string          `db:"processed_currency" json:"processedCurrency"`
	PromoCode         *string         `db:"promo_code" json:"promoCode"`
	CreatorCode       *string         `db:"creator_code" json:"creatorCode"`
	PaymentIntentID   *string         `db:"payment_intent_id" json:"paymentIntentId"`
	FailureReason     *string         `db:"failure_reason" json:"failure_reason"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

// OriginalAmount is the pre-discount total
func (o *Order) OriginalAmount() decimal.Decimal {
	return o.TotalAmount.Add(o.DiscountAmount)
}

// IsTerminal reports whether the order can no longer change status
func (o *Order) IsTerminal() bool {
	return o.Status != OrderStatusPending
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusFailed    = "failed"
)

// Payment methods
const (
	PaymentMethodPayPal = "paypal"
)

// Role is a named permission granted to a user
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// RoleSet is the authoritative set of roles held by a user
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports membership
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

// IsSuperAdmin reports whether the set grants full administrative access
func (s RoleSet) IsSuperAdmin() bool {
	return s.Has(RoleAdmin)
}

// Strings returns the roles sorted by name
func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}

// Value implements driver.Valuer as a Postgres text[]
func (s RoleSet) Value() (driver.Value, error) {
	return pq.StringArray(s.Strings()).Value()
}

// Scan implements sql.Scanner from a Postgres text[]
func (s *RoleSet) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	set := make(RoleSet, len(arr))
	for _, r := range arr {
		set[Role(r)] = struct{}{}
	}
	*s = set
	return nil
}

// MarshalJSON renders the set as a sorted array
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON reads an array of role names
func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var roles []string
	if err := json.Unmarshal(data, &roles); err != nil {
		return err
	}
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[Role(r)] = struct{}{}
	}
	*s = set
	return nil
}

// User is the purchaser or code owner
type User struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	Username           string         `db:"username" json:"username"`
	Email              string         `db:"email" json:"email"`
	MinecraftUUID      *string        `db:"minecraft_uuid" json:"minecraft_uuid"`
	MinecraftUsername  *string        `db:"minecraft_username" json:"minecraft_username"`
	Roles              RoleSet        `db:"roles" json:"roles"`
	CreatorCode        *string        `db:"creator_code" json:"creatorCode"`
	AppliedCreatorCode *string        `db:"applied_creator_code" json:"appliedCreatorCode"`
	Points             int            `db:"points" json:"points"`
	UsedPromoCodes     pq.StringArray `db:"used_promo_codes" json:"used_promo_codes"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updatedAt"`
}

// IsSuperAdmin reports whether the user holds the admin role
func (u *User) IsSuperAdmin() bool {
	return u.Roles.IsSuperAdmin()
}

// HasUsedPromo reports whether the promo code id is in the user's history
func (u *User) HasUsedPromo(promoID uuid.UUID) bool {
	id := promoID.String()
	for _, used := range u.UsedPromoCodes {
		if used == id {
			return true
		}
	}
	return false
}

// HasLinkedAccount reports whether the user linked an in-game identity
func (u *User) HasLinkedAccount() bool {
	return u.MinecraftUUID != nil && *u.MinecraftUUID != ""
}

// PlayerName is the in-game name, falling back to the site username
func (u *User) PlayerName() string {
	if u.MinecraftUsername != nil && *u.MinecraftUsername != "" {
		return *u.MinecraftUsername
	}
	return u.Username
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
