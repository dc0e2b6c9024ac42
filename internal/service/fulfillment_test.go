package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Spolkip/AtlasCoreSite/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder(t *testing.T, f *fixture, buyer *models.User, product *models.Product, qty int) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:                uuid.New(),
		UserID:            buyer.ID,
		Products:          models.OrderLines{{ProductID: product.ID, Name: product.Name, Quantity: qty, Price: product.Price}},
		Status:            models.OrderStatusPending,
		PaymentMethod:     "card",
		Currency:          "USD",
		ProcessedCurrency: "USD",
	}
	order.TotalAmount = order.Products.Total()
	order.ProcessedAmount = order.TotalAmount
	order.DiscountAmount = decimal.Zero
	require.NoError(t, f.repo.CreateOrder(context.Background(), order))
	return order
}

func TestFulfill_DeliveryReport(t *testing.T) {
	f := newFixture(t)
	product := f.addProduct("5.00", nil, "give {player} diamond 1", "  ", "broadcast {user} bought a rank")
	f.dispatcher.fail["broadcast mc_steve bought a rank"] = true
	buyer := f.addUser("steve", true)
	order := pendingOrder(t, f, buyer, product, 1)

	report, err := f.fulfillment.Fulfill(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	assert.True(t, report.HasFailures())
	require.Len(t, report.Results, 3)
	assert.Equal(t, models.DeliverySent, report.Results[0].Status)
	assert.Equal(t, "give mc_steve diamond 1", report.Results[0].Command)
	assert.Equal(t, models.DeliverySkipped, report.Results[1].Status)
	assert.Equal(t, models.DeliveryFailed, report.Results[2].Status)
	assert.Equal(t, "mc_steve", report.Player.PlayerName)
	assert.Equal(t, "steve", report.Player.Username)
	assert.Equal(t, order.ID, *report.OrderID)

	assert.Equal(t, models.OrderStatusCompleted, f.repo.order(order.ID).Status)
	require.Len(t, f.events.failed, 1)
	assert.Equal(t, "broadcast mc_steve bought a rank", f.events.failed[0].Command)
	assert.Equal(t, order.ID, *f.events.failed[0].OrderID)
}

func TestFulfill_UnlinkedAccountSkipsDelivery(t *testing.T) {
	f := newFixture(t)
	product := f.addProduct("5.00", intPtr(2), "give {player} diamond 1")
	buyer := f.addUser("webonly", false)
	order := pendingOrder(t, f, buyer, product, 1)

	report, err := f.fulfillment.Fulfill(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, reasonNoLinkedAccount, report.Results[0].Error)
	assert.Equal(t, "N/A", report.Player.UUID)
	assert.Empty(t, f.dispatcher.commands())
	assert.Equal(t, 1, *f.repo.product(product.ID).Stock)
	assert.Equal(t, models.OrderStatusCompleted, f.repo.order(order.ID).Status)
}

func TestFulfill_RunsOnce(t *testing.T) {
	f := newFixture(t)
	product := f.addProduct("5.00", intPtr(10), "give {player} diamond 1")
	buyer := f.addUser("steve", true)
	order := pendingOrder(t, f, buyer, product, 1)
	replay := *order

	_, err := f.fulfillment.Fulfill(context.Background(), order)
	require.NoError(t, err)

	_, err = f.fulfillment.Fulfill(context.Background(), &replay)
	assert.ErrorIs(t, err, ErrFulfillmentInProgress)
	assert.Equal(t, 9, *f.repo.product(product.ID).Stock)
	assert.Len(t, f.dispatcher.commands(), 1)

	_, err = f.fulfillment.Fulfill(context.Background(), order)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFulfill_SelfReferralEarnsNoPoints(t *testing.T) {
	f := newFixture(t)
	product := f.addProduct("5.00", nil)
	owner := f.addUser("streamer", true)
	code := f.addCreatorCode("SELF", owner, models.DiscountPercentage, "10")

	order := pendingOrder(t, f, owner, product, 1)
	order.CreatorCode = models.StringPtr("SELF")

	_, err := f.fulfillment.Fulfill(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, 0, f.repo.user(owner.ID).Points)
	assert.Equal(t, 1, f.repo.creator(code.ID).ReferralCount)
}

func TestFulfill_InactiveCreatorCodeEarnsNothing(t *testing.T) {
	f := newFixture(t)
	product := f.addProduct("5.00", nil)
	owner := f.addUser("streamer", true)
	code := f.addCreatorCode("GONE", owner, models.DiscountPercentage, "10")
	code.IsActive = false
	buyer := f.addUser("fan", true)

	order := pendingOrder(t, f, buyer, product, 1)
	order.CreatorCode = models.StringPtr("GONE")

	_, err := f.fulfillment.Fulfill(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, 0, f.repo.user(owner.ID).Points)
	assert.Equal(t, 0, f.repo.creator(code.ID).ReferralCount)
	assert.Equal(t, models.OrderStatusCompleted, f.repo.order(order.ID).Status)
}

func TestFulfill_ConcurrentOrdersDoNotLoseUpdates(t *testing.T) {
	const buyers = 20

	f := newFixture(t)
	product := f.addProduct("3.00", intPtr(100), "give {player} emerald 1")
	owner := f.addUser("streamer", true)
	code := f.addCreatorCode("CREW", owner, models.DiscountPercentage, "10")
	promo := f.addDiscountPromo("RUSH", models.DiscountFixed, "1")

	orders := make([]*models.Order, 0, buyers)
	for i := 0; i < buyers; i++ {
		buyer := f.addUser("buyer", true)
		order := pendingOrder(t, f, buyer, product, 2)
		if i%2 == 0 {
			order.CreatorCode = models.StringPtr(code.Code)
		} else {
			order.PromoCode = models.StringPtr(promo.Code)
		}
		orders = append(orders, order)
	}

	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	start := make(chan struct{})
	for _, order := range orders {
		wg.Add(1)
		go func(o *models.Order) {
			defer wg.Done()
			<-start
			_, err := f.fulfillment.Fulfill(context.Background(), o)
			errs <- err
		}(order)
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 100-2*buyers, *f.repo.product(product.ID).Stock)
	assert.Equal(t, buyers/2, f.repo.creator(code.ID).ReferralCount)
	assert.Equal(t, 10*buyers/2, f.repo.user(owner.ID).Points)
	assert.Equal(t, buyers/2, f.repo.promo(promo.ID).Uses)
	assert.Len(t, f.dispatcher.commands(), buyers)
	for _, o := range orders {
		assert.Equal(t, models.OrderStatusCompleted, f.repo.order(o.ID).Status)
	}
}

func TestFulfill_RetriesCompletionWithoutRepeatingDelivery(t *testing.T) {
	f := newFixture(t)
	product := f.addProduct("10.00", intPtr(5), "give {player} diamond 1")
	buyer := f.addUser("steve", true)
	order := pendingOrder(t, f, buyer, product, 2)
	f.repo.failCompletions = 1

	_, err := f.fulfillment.Fulfill(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, f.repo.order(order.ID).Status)
	assert.Equal(t, 3, *f.repo.product(product.ID).Stock)
	assert.Len(t, f.dispatcher.commands(), 1)
}

func TestFulfill_KeepsClaimWhenCompletionFails(t *testing.T) {
	f := newFixture(t)
	product := f.addProduct("10.00", intPtr(5), "give {player} diamond 1")
	buyer := f.addUser("steve", true)
	order := pendingOrder(t, f, buyer, product, 2)
	f.repo.failCompletions = completionAttempts

	first := *order
	_, err := f.fulfillment.Fulfill(context.Background(), &first)
	require.Error(t, err)
	assert.Equal(t, models.OrderStatusPending, f.repo.order(order.ID).Status)

	second := f.repo.order(order.ID)
	_, err = f.fulfillment.Fulfill(context.Background(), &second)
	assert.ErrorIs(t, err, ErrFulfillmentInProgress)

	assert.Equal(t, 3, *f.repo.product(product.ID).Stock)
	assert.Len(t, f.dispatcher.commands(), 1)
	assert.NotContains(t, f.events.events, models.EventTypeOrderCompleted)
}
