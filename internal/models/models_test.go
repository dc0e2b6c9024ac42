package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDiscountRule_Apply(t *testing.T) {
	tests := []struct {
		name         string
		rule         DiscountRule
		total        string
		wantDiscount string
		wantTotal    string
	}{
		{"percentage", DiscountRule{DiscountPercentage, d("10")}, "50", "5", "45"},
		{"percentage rounds new total", DiscountRule{DiscountPercentage, d("10")}, "33.33", "3.33", "30"},
		{"fixed", DiscountRule{DiscountFixed, d("7.5")}, "20", "7.5", "12.5"},
		{"fixed clamps at zero", DiscountRule{DiscountFixed, d("60")}, "50", "50", "0"},
		{"unknown type", DiscountRule{"bogus", d("10")}, "50", "0", "50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			discount, newTotal := tt.rule.Apply(d(tt.total))
			assert.True(t, d(tt.wantDiscount).Equal(discount), "discount %s", discount)
			assert.True(t, d(tt.wantTotal).Equal(newTotal), "new total %s", newTotal)
			assert.True(t, d(tt.total).Equal(discount.Add(newTotal)))
		})
	}
}

func TestRoleSet(t *testing.T) {
	roles := NewRoleSet(RoleUser)
	assert.False(t, roles.IsSuperAdmin())
	assert.True(t, roles.Has(RoleUser))

	roles = NewRoleSet(RoleUser, RoleAdmin, RoleAdmin)
	assert.True(t, roles.IsSuperAdmin())
	assert.Equal(t, []string{"admin", "user"}, roles.Strings())

	raw, err := json.Marshal(roles)
	require.NoError(t, err)
	assert.JSONEq(t, `["admin","user"]`, string(raw))

	var back RoleSet
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, roles, back)

	var scanned RoleSet
	require.NoError(t, scanned.Scan([]byte(`{admin,user}`)))
	assert.True(t, scanned.IsSuperAdmin())
}

func TestProduct_EffectivePriceAndStock(t *testing.T) {
	sale := d("7.99")
	p := Product{Price: d("9.99"), DiscountPrice: &sale}
	assert.Equal(t, "7.99", p.EffectivePrice().String())

	higher := d("12")
	p.DiscountPrice = &higher
	assert.Equal(t, "9.99", p.EffectivePrice().String())

	assert.True(t, p.HasStock(1000))
	stock := 2
	p.Stock = &stock
	assert.True(t, p.HasStock(2))
	assert.False(t, p.HasStock(3))
}

func TestOrder_IsTerminal(t *testing.T) {
	assert.False(t, (&Order{Status: OrderStatusPending}).IsTerminal())
	for _, status := range []string{OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed} {
		assert.True(t, (&Order{Status: status}).IsTerminal(), status)
	}
}

func TestOrderLines_TotalAndScan(t *testing.T) {
	lines := OrderLines{
		{ProductID: uuid.New(), Quantity: 2, Price: d("10")},
		{ProductID: uuid.New(), Quantity: 1, Price: d("4.50")},
	}
	assert.Equal(t, "24.5", lines.Total().String())

	raw, err := lines.Value()
	require.NoError(t, err)

	var back OrderLines
	require.NoError(t, back.Scan(raw))
	assert.Len(t, back, 2)
	assert.True(t, lines.Total().Equal(back.Total()))

	require.NoError(t, back.Scan(nil))
	assert.Empty(t, back)
}

func TestUser_PlayerNameAndHistory(t *testing.T) {
	promo := uuid.New()
	u := User{Username: "steve", UsedPromoCodes: []string{promo.String()}}

	assert.Equal(t, "steve", u.PlayerName())
	assert.False(t, u.HasLinkedAccount())
	assert.True(t, u.HasUsedPromo(promo))
	assert.False(t, u.HasUsedPromo(uuid.New()))

	u.MinecraftUsername = StringPtr("Notch")
	u.MinecraftUUID = StringPtr("069a79f4")
	assert.Equal(t, "Notch", u.PlayerName())
	assert.True(t, u.HasLinkedAccount())
}

func TestPromoCode_Usable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	limit := 1

	p := PromoCode{IsActive: true}
	assert.True(t, p.Usable(now))

	p.ExpiryDate = &past
	assert.True(t, p.Expired(now))
	assert.False(t, p.Usable(now))

	p.ExpiryDate = nil
	p.MaxUses = &limit
	p.Uses = 1
	assert.True(t, p.Exhausted())

	_, ok := (&PromoCode{CodeType: CodeTypeReward}).Rule()
	assert.False(t, ok)
}

func TestDeliveryReport_Add(t *testing.T) {
	var r DeliveryReport
	r.Add(CommandResult{Command: "a", Status: DeliverySent})
	r.Add(CommandResult{Command: "b", Status: DeliveryFailed})
	r.Add(CommandResult{Command: "c", Status: DeliverySkipped})

	assert.Equal(t, 1, r.Sent)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Skipped)
	assert.True(t, r.HasFailures())
	require.Len(t, r.FailedResults(), 1)
	assert.Equal(t, "b", r.FailedResults()[0].Command)
}
