package service

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/payment"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/google/uuid"
)

const (
	userA    = "64b7f0c2a1b2c3d4e5f60001"
	userB    = "64b7f0c2a1b2c3d4e5f60002"
	product1 = "64b7f0c2a1b2c3d4e5f6aa01"
	product2 = "64b7f0c2a1b2c3d4e5f6aa02"
	missing  = "64b7f0c2a1b2c3d4e5f6aaff"
)

// mockCartRepository keeps carts in memory with the same merge rules as the Mongo store.
type mockCartRepository struct {
	m     sync.Mutex
	carts map[string]*domain.Cart
	err   error
	calls int

	// afterGet runs once, after the next GetCart has read its result.
	afterGet func()
}

func newMockCartRepository() *mockCartRepository {
	return &mockCartRepository{carts: map[string]*domain.Cart{}}
}

func (m *mockCartRepository) copyOf(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = append([]domain.CartItem{}, c.Items...)
	return &out
}

func (m *mockCartRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	cart, err := m.getCart(userID)

	m.m.Lock()
	hook := m.afterGet
	m.afterGet = nil
	m.m.Unlock()
	if hook != nil {
		hook()
	}
	return cart, err
}

func (m *mockCartRepository) getCart(userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return m.copyOf(c), nil
}

func (m *mockCartRepository) UpsertCart(_ context.Context, cart *domain.Cart) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	now := time.Now().UTC()
	existing, ok := m.carts[cart.UserID]
	stored := &domain.Cart{UserID: cart.UserID, Items: append([]domain.CartItem{}, cart.Items...), CreatedAt: now, UpdatedAt: now}
	if ok {
		stored.CreatedAt = existing.CreatedAt
	}
	m.carts[cart.UserID] = stored
	return m.copyOf(stored), nil
}

func (m *mockCartRepository) AddItem(_ context.Context, userID string, item domain.CartItem) (bool, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return false, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		c = &domain.Cart{UserID: userID, CreatedAt: time.Now().UTC()}
		m.carts[userID] = c
	}
	c.UpdatedAt = time.Now().UTC()
	if i := c.FindItem(item.ProductID); i >= 0 {
		c.Items[i].Quantity += item.Quantity
		return !ok, nil
	}
	c.Items = append(c.Items, item)
	return !ok, nil
}

func (m *mockCartRepository) UpdateItemQuantity(_ context.Context, userID, productID string, quantity int) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return repository.ErrCartNotFound
	}
	i := c.FindItem(productID)
	if i < 0 {
		return repository.ErrItemNotFound
	}
	c.Items[i].Quantity = quantity
	return nil
}

func (m *mockCartRepository) RemoveItem(_ context.Context, userID, productID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return repository.ErrCartNotFound
	}
	if i := c.FindItem(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
	return nil
}

func (m *mockCartRepository) DeleteCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	delete(m.carts, userID)
	return c, nil
}

type mockProductRepository struct {
	m        sync.RWMutex
	products map[string]*domain.Product
	err      error
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: map[string]*domain.Product{
		product1: {ID: product1, SKU: "TOP-001", Name: "Linen shirt", Price: 1000, Category: "tops"},
		product2: {ID: product2, SKU: "BTM-002", Name: "Wide pants", Price: 2500, Category: "bottoms"},
	}}
}

func (m *mockProductRepository) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (m *mockProductRepository) GetProducts(_ context.Context, ids []string) (map[string]*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := map[string]*domain.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	err     error
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[string]*domain.Cart{}}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c, nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.carts[userID] = cart
	return nil
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	delete(m.carts, userID)
	return m.err
}

func (m *mockCache) cached(userID string) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.carts[userID]
	return ok
}

// mockOrderRepository enforces order_number uniqueness like the unique index does.
type mockOrderRepository struct {
	m        sync.Mutex
	byID     map[uuid.UUID]*domain.Order
	byNumber map[string]uuid.UUID
	err      error
	creates  int
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{
		byID:     map[uuid.UUID]*domain.Order{},
		byNumber: map[string]uuid.UUID{},
	}
}

func (m *mockOrderRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.creates++
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byNumber[order.OrderNumber]; ok {
		return repository.ErrDuplicateOrder
	}
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	stored := *order
	stored.Items = append([]domain.OrderItem{}, order.Items...)
	m.byID[order.ID] = &stored
	m.byNumber[order.OrderNumber] = order.ID
	return nil
}

func (m *mockOrderRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	out := *o
	return &out, nil
}

func (m *mockOrderRepository) GetOrderByNumber(_ context.Context, number string) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	id, ok := m.byNumber[number]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	out := *m.byID[id]
	return &out, nil
}

func (m *mockOrderRepository) ListOrders(_ context.Context, userID string) ([]*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	out := []*domain.Order{}
	for _, o := range m.byID {
		if userID == "" || o.UserID == userID {
			c := *o
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockOrderRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus, p domain.PaymentStatus) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if o.Status != from {
		return nil, repository.ErrStatusConflict
	}
	o.Status = to
	o.Payment.Status = p
	o.UpdatedAt = time.Now().UTC()
	out := *o
	return &out, nil
}

func (m *mockOrderRepository) count() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.byID)
}

type mockVerifier struct {
	m      sync.Mutex
	amount map[string]int64
	err    error
	calls  int
}

func (v *mockVerifier) Verify(_ context.Context, claimID string, expected int64) (*payment.ProviderRecord, error) {
	v.m.Lock()
	defer v.m.Unlock()
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	amount, ok := v.amount[claimID]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	if amount != expected {
		return nil, payment.ErrAmountMismatch
	}
	return &payment.ProviderRecord{ClaimID: claimID, Amount: amount, Status: "paid"}, nil
}

type mockPublisher struct {
	m      sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *mockPublisher) Publish(_ context.Context, e events.OrderEvent) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) types() []string {
	p.m.Lock()
	defer p.m.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type mockClearer struct {
	m       sync.Mutex
	cleared []string
	err     error
}

func (c *mockClearer) Clear(_ context.Context, userID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.cleared = append(c.cleared, userID)
	return c.err
}
