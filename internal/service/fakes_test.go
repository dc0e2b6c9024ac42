package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/apperror"
	"github.com/Spolkip/AtlasCoreSite/internal/gateway"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/redisclient"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// memRepo is an in-memory Repository. Reads hand out copies and counters
// only change through delta operations, like the SQL store.
type memRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*models.Product
	users    map[uuid.UUID]*models.User
	promos   map[uuid.UUID]*models.PromoCode
	creators map[uuid.UUID]*models.CreatorCode
	orders   map[uuid.UUID]*models.Order
	clock    time.Time

	// failCompletions makes the next n pending->completed transitions error
	failCompletions int
	setIntentErr    error
}

func newMemRepo() *memRepo {
	return &memRepo{
		products: map[uuid.UUID]*models.Product{},
		users:    map[uuid.UUID]*models.User{},
		promos:   map[uuid.UUID]*models.PromoCode{},
		creators: map[uuid.UUID]*models.CreatorCode{},
		orders:   map[uuid.UUID]*models.Order{},
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func copyUser(u *models.User) *models.User {
	cp := *u
	cp.UsedPromoCodes = append(pq.StringArray{}, u.UsedPromoCodes...)
	return &cp
}

func (r *memRepo) GetProductByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, apperror.NotFound("product not found", nil)
	}
	cp := *p
	if p.Stock != nil {
		stock := *p.Stock
		cp.Stock = &stock
	}
	return &cp, nil
}

func (r *memRepo) GetProducts(_ context.Context) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memRepo) DecrementStock(_ context.Context, id uuid.UUID, qty int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok || p.Stock == nil || *p.Stock < qty {
		return false, nil
	}
	stock := *p.Stock - qty
	p.Stock = &stock
	return true, nil
}

func (r *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NotFound("user not found", nil)
	}
	return copyUser(u), nil
}

func (r *memRepo) AddPoints(_ context.Context, id uuid.UUID, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperror.NotFound("user not found", nil)
	}
	u.Points += points
	return nil
}

func (r *memRepo) AppendUsedPromoCode(_ context.Context, userID, promoID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.UsedPromoCodes = append(u.UsedPromoCodes, promoID.String())
	}
	return nil
}

func (r *memRepo) SetAppliedCreatorCode(_ context.Context, userID uuid.UUID, code *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return apperror.NotFound("user not found", nil)
	}
	u.AppliedCreatorCode = code
	return nil
}

func (r *memRepo) CreatePromoCode(_ context.Context, p *models.PromoCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.promos {
		if existing.Code == p.Code {
			return apperror.Conflict("promo code already exists", nil)
		}
	}
	cp := *p
	r.promos[p.ID] = &cp
	return nil
}

func (r *memRepo) UpdatePromoCode(_ context.Context, p *models.PromoCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.promos[p.ID]
	if !ok {
		return apperror.NotFound("promo code not found", nil)
	}
	cp := *p
	cp.Uses = existing.Uses
	r.promos[p.ID] = &cp
	return nil
}

func (r *memRepo) DeletePromoCode(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.promos[id]; !ok {
		return apperror.NotFound("promo code not found", nil)
	}
	delete(r.promos, id)
	return nil
}

func (r *memRepo) GetPromoCodeByID(_ context.Context, id uuid.UUID) (*models.PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.promos[id]
	if !ok {
		return nil, apperror.NotFound("promo code not found", nil)
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetPromoCodeByCode(_ context.Context, code string) (*models.PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.promos {
		if p.Code == models.NormalizeCode(code) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("promo code not found", nil)
}

func (r *memRepo) ListPromoCodes(_ context.Context) ([]models.PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.PromoCode{}
	for _, p := range r.promos {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memRepo) IncrementPromoUses(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.promos[id]; ok {
		p.Uses++
	}
	return nil
}

func (r *memRepo) ClaimPromoUse(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.promos[id]
	if !ok || !p.Usable(time.Now()) {
		return false, nil
	}
	p.Uses++
	return true, nil
}

func (r *memRepo) setOwner(owner *uuid.UUID, code *string) {
	if owner == nil {
		return
	}
	if u, ok := r.users[*owner]; ok {
		u.CreatorCode = code
	}
}

func (r *memRepo) CreateCreatorCode(_ context.Context, c *models.CreatorCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.creators {
		if existing.Code == c.Code {
			return apperror.Conflict("creator code already exists", nil)
		}
	}
	cp := *c
	r.creators[c.ID] = &cp
	r.setOwner(c.CreatorID, &cp.Code)
	return nil
}

func (r *memRepo) UpdateCreatorCode(_ context.Context, c *models.CreatorCode, previousOwner *uuid.UUID, previousCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.creators[c.ID]
	if !ok {
		return apperror.NotFound("creator code not found", nil)
	}
	cp := *c
	cp.ReferralCount = existing.ReferralCount
	r.creators[c.ID] = &cp
	if previousCode != "" && previousCode != cp.Code {
		for _, u := range r.users {
			if u.AppliedCreatorCode != nil && *u.AppliedCreatorCode == previousCode {
				u.AppliedCreatorCode = models.StringPtr(cp.Code)
			}
		}
	}
	if previousOwner != nil && (c.CreatorID == nil || *previousOwner != *c.CreatorID) {
		r.setOwner(previousOwner, nil)
	}
	r.setOwner(c.CreatorID, &cp.Code)
	return nil
}

func (r *memRepo) DeleteCreatorCode(_ context.Context, c *models.CreatorCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creators[c.ID]; !ok {
		return apperror.NotFound("creator code not found", nil)
	}
	delete(r.creators, c.ID)
	r.setOwner(c.CreatorID, nil)
	return nil
}

func (r *memRepo) findCreator(match func(*models.CreatorCode) bool) (*models.CreatorCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creators {
		if match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("creator code not found", nil)
}

func (r *memRepo) GetCreatorCodeByID(_ context.Context, id uuid.UUID) (*models.CreatorCode, error) {
	return r.findCreator(func(c *models.CreatorCode) bool { return c.ID == id })
}

func (r *memRepo) GetCreatorCodeByCode(_ context.Context, code string) (*models.CreatorCode, error) {
	return r.findCreator(func(c *models.CreatorCode) bool { return c.Code == models.NormalizeCode(code) })
}

func (r *memRepo) GetCreatorCodeByCreator(_ context.Context, creatorID uuid.UUID) (*models.CreatorCode, error) {
	return r.findCreator(func(c *models.CreatorCode) bool { return c.OwnedBy(creatorID) })
}

func (r *memRepo) ListCreatorCodes(_ context.Context) ([]models.CreatorCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.CreatorCode{}
	for _, c := range r.creators {
		out = append(out, *c)
	}
	return out, nil
}

func (r *memRepo) IncrementReferralCount(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creators[id]
	if !ok || !c.IsActive {
		return false, nil
	}
	c.ReferralCount++
	return true, nil
}

func (r *memRepo) CreateOrder(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = r.clock.Add(time.Minute)
	order.CreatedAt = r.clock
	order.UpdatedAt = r.clock
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *memRepo) GetOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, apperror.NotFound("order not found", nil)
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) GetOrderByPaymentIntentID(_ context.Context, paymentID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.PaymentIntentID != nil && *o.PaymentIntentID == paymentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("order not found", nil)
}

func (r *memRepo) SetPaymentIntent(_ context.Context, orderID uuid.UUID, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setIntentErr != nil {
		return r.setIntentErr
	}
	if o, ok := r.orders[orderID]; ok {
		o.PaymentIntentID = &paymentID
	}
	return nil
}

func (r *memRepo) TransitionOrderStatus(_ context.Context, orderID uuid.UUID, from, to string, reason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if to == models.OrderStatusCompleted && r.failCompletions > 0 {
		r.failCompletions--
		return false, errors.New("db blip")
	}
	o, ok := r.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if reason != nil {
		o.FailureReason = reason
	}
	return true, nil
}

func (r *memRepo) ListOrdersByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := []models.Order{}
	for _, o := range r.orders {
		if o.UserID == userID {
			all = append(all, *o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []models.Order{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memRepo) CountOrdersByUser(_ context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.orders {
		if o.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) product(id uuid.UUID) models.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.products[id]
}

func (r *memRepo) user(id uuid.UUID) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *copyUser(r.users[id])
}

func (r *memRepo) promo(id uuid.UUID) models.PromoCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.promos[id]
}

func (r *memRepo) creator(id uuid.UUID) models.CreatorCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.creators[id]
}

func (r *memRepo) order(id uuid.UUID) models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.orders[id]
}

func (r *memRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type sentCommand struct {
	Command string
	Player  models.PlayerContext
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []sentCommand
	fail map[string]bool
}

func (d *fakeDispatcher) ExecuteCommand(_ context.Context, command string, player models.PlayerContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[command] {
		return errors.New("plugin returned 500")
	}
	d.sent = append(d.sent, sentCommand{Command: command, Player: player})
	return nil
}

func (d *fakeDispatcher) commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.sent))
	for i, s := range d.sent {
		out[i] = s.Command
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
	failed []*models.DeliveryFailedEvent
}

func (p *fakePublisher) record(t string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, t)
	return nil
}

func (p *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	return p.record(e.EventType)
}

func (p *fakePublisher) PublishOrderCompleted(_ context.Context, e *models.OrderCompletedEvent) error {
	return p.record(e.EventType)
}

func (p *fakePublisher) PublishOrderFailed(_ context.Context, e *models.OrderFailedEvent) error {
	return p.record(e.EventType)
}

func (p *fakePublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	return p.record(e.EventType)
}

func (p *fakePublisher) PublishPromoRedeemed(_ context.Context, e *models.PromoRedeemedEvent) error {
	return p.record(e.EventType)
}

func (p *fakePublisher) PublishDeliveryFailed(_ context.Context, e *models.DeliveryFailedEvent) error {
	p.mu.Lock()
	p.failed = append(p.failed, e)
	p.mu.Unlock()
	return p.record(e.EventType)
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fakeGuard struct {
	mu      sync.Mutex
	claimed map[uuid.UUID]bool
}

func (g *fakeGuard) ClaimFulfillment(_ context.Context, orderID uuid.UUID, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed[orderID] {
		return false, nil
	}
	g.claimed[orderID] = true
	return true, nil
}

func (g *fakeGuard) ReleaseFulfillment(_ context.Context, orderID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, orderID)
	return nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", redisclient.ErrLockHeld
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// fakeConverter converts with fixed rates into USD
type fakeConverter struct {
	rates map[string]decimal.Decimal
	err   error
}

func (c *fakeConverter) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if c.err != nil {
		return decimal.Zero, c.err
	}
	if from == to {
		return amount, nil
	}
	rate, ok := c.rates[from]
	if !ok {
		return decimal.Zero, apperror.Upstream("could not process currency conversion", nil)
	}
	return amount.Mul(rate).Round(2), nil
}

type fakeGateway struct {
	mu        sync.Mutex
	created   map[string]decimal.Decimal
	paid      map[string]decimal.Decimal
	executed  int
	createErr error
}

func (g *fakeGateway) CreatePayment(_ context.Context, total decimal.Decimal, _, _, orderID string) (*gateway.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	id := "PAY-" + orderID
	g.created[id] = total
	return &gateway.Payment{ID: id, ApprovalURL: "https://paypal.test/approve/" + id}, nil
}

func (g *fakeGateway) ExecutePayment(_ context.Context, paymentID, _ string) (*gateway.ExecutedPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.executed++
	amount, ok := g.paid[paymentID]
	if !ok {
		amount, ok = g.created[paymentID]
	}
	if !ok {
		return nil, errors.New("unknown payment")
	}
	return &gateway.ExecutedPayment{ID: paymentID, State: "approved", PaidAmount: amount, Currency: "USD"}, nil
}
