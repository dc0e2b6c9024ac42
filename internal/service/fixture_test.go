package service

import (
	"testing"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type fixture struct {
	repo        *memRepo
	dispatcher  *fakeDispatcher
	events      *fakePublisher
	guard       *fakeGuard
	locker      *fakeLocker
	converter   *fakeConverter
	gateway     *fakeGateway
	discounts   *DiscountResolver
	fulfillment *FulfillmentEngine
	orders      *OrderService
	promos      *PromoService
	creators    *CreatorService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:       newMemRepo(),
		dispatcher: &fakeDispatcher{fail: map[string]bool{}},
		events:     &fakePublisher{},
		guard:      &fakeGuard{claimed: map[uuid.UUID]bool{}},
		locker:     &fakeLocker{held: map[string]string{}},
		converter:  &fakeConverter{rates: map[string]decimal.Decimal{"EUR": decimal.RequireFromString("1.10")}},
		gateway:    &fakeGateway{created: map[string]decimal.Decimal{}, paid: map[string]decimal.Decimal{}},
	}

	f.discounts = NewDiscountResolver(f.repo, f.repo)
	f.fulfillment = NewFulfillmentEngine(f.repo, f.dispatcher, f.guard, f.events, FulfillmentConfig{
		ReferralPoints:  10,
		ClaimTTL:        time.Hour,
		PublishFailures: true,
	})
	f.orders = NewOrderService(f.repo, NewCatalog(f.repo), f.discounts, f.converter, f.gateway, f.fulfillment, f.events, "usd")
	f.promos = NewPromoService(f.repo, f.discounts, f.dispatcher, f.locker, f.events, true)
	f.creators = NewCreatorService(f.repo, f.discounts)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(n int) *int {
	return &n
}

func (f *fixture) addProduct(price string, stock *int, commands ...string) *models.Product {
	p := &models.Product{
		ID:       uuid.New(),
		Name:     "Rank " + price,
		Price:    dec(price),
		Stock:    stock,
		Commands: pq.StringArray(commands),
	}
	f.repo.products[p.ID] = p
	return p
}

// addUser creates a user; linked users have a minecraft identity
func (f *fixture) addUser(name string, linked bool, roles ...models.Role) *models.User {
	if len(roles) == 0 {
		roles = []models.Role{models.RoleUser}
	}
	u := &models.User{
		ID:             uuid.New(),
		Username:       name,
		Email:          name + "@example.com",
		Roles:          models.NewRoleSet(roles...),
		UsedPromoCodes: pq.StringArray{},
	}
	if linked {
		u.MinecraftUUID = models.StringPtr(uuid.NewString())
		u.MinecraftUsername = models.StringPtr("mc_" + name)
	}
	f.repo.users[u.ID] = u
	return copyUser(u)
}

func (f *fixture) addDiscountPromo(code string, kind models.DiscountType, value string) *models.PromoCode {
	v := dec(value)
	p := &models.PromoCode{
		ID:             uuid.New(),
		Code:           models.NormalizeCode(code),
		CodeType:       models.CodeTypeDiscount,
		DiscountType:   &kind,
		DiscountValue:  &v,
		RewardCommands: pq.StringArray{},
		IsActive:       true,
	}
	f.repo.promos[p.ID] = p
	return p
}

func (f *fixture) addRewardPromo(code string, commands ...string) *models.PromoCode {
	p := &models.PromoCode{
		ID:             uuid.New(),
		Code:           models.NormalizeCode(code),
		CodeType:       models.CodeTypeReward,
		RewardCommands: pq.StringArray(commands),
		IsActive:       true,
	}
	f.repo.promos[p.ID] = p
	return p
}

func (f *fixture) addCreatorCode(code string, owner *models.User, kind models.DiscountType, value string) *models.CreatorCode {
	c := &models.CreatorCode{
		ID:            uuid.New(),
		Code:          models.NormalizeCode(code),
		CreatorID:     &owner.ID,
		DiscountType:  kind,
		DiscountValue: dec(value),
		IsActive:      true,
	}
	f.repo.creators[c.ID] = c
	f.repo.users[owner.ID].CreatorCode = &c.Code
	return c
}

// applyCreator makes the user support a creator code
func (f *fixture) applyCreator(u *models.User, code string) *models.User {
	f.repo.users[u.ID].AppliedCreatorCode = models.StringPtr(code)
	return copyUser(f.repo.users[u.ID])
}
