package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "test-secret"
	customerID = "64b7f0c2a1b2c3d4e5f60001"
	otherID    = "64b7f0c2a1b2c3d4e5f60002"
	adminID    = "64b7f0c2a1b2c3d4e5f600ff"
	productID  = "64b7f0c2a1b2c3d4e5f6aa01"
)

// --- Fakes ---

type fakeCarts struct {
	mu      sync.Mutex
	cart    *service.PopulatedCart
	created bool
	err     error

	lastUser     string
	lastProduct  string
	lastQuantity int
	lastItems    []domain.CartItem
}

func (f *fakeCarts) record(userID, productID string, quantity int) (*service.PopulatedCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUser, f.lastProduct, f.lastQuantity = userID, productID, quantity
	if f.err != nil {
		return nil, f.err
	}
	if f.cart != nil {
		return f.cart, nil
	}
	return &service.PopulatedCart{UserID: userID, Items: []service.PopulatedCartItem{}}, nil
}

func (f *fakeCarts) GetOrCreate(_ context.Context, userID string) (*service.PopulatedCart, error) {
	return f.record(userID, "", 0)
}

func (f *fakeCarts) AddItem(_ context.Context, userID, productID string, quantity int) (*service.PopulatedCart, bool, error) {
	cart, err := f.record(userID, productID, quantity)
	return cart, f.created, err
}

func (f *fakeCarts) SetItemQuantity(_ context.Context, userID, productID string, quantity int) (*service.PopulatedCart, error) {
	return f.record(userID, productID, quantity)
}

func (f *fakeCarts) RemoveItem(_ context.Context, userID, productID string) (*service.PopulatedCart, error) {
	return f.record(userID, productID, 0)
}

func (f *fakeCarts) ReplaceAll(_ context.Context, userID string, items []domain.CartItem) (*service.PopulatedCart, error) {
	f.mu.Lock()
	f.lastItems = items
	f.mu.Unlock()
	return f.record(userID, "", 0)
}

func (f *fakeCarts) DeleteCart(_ context.Context, userID string) (*service.PopulatedCart, error) {
	return f.record(userID, "", 0)
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*service.PopulatedOrder
	err    error

	lastInput  service.CreateOrderInput
	listedFor  *string
	cancelled  int
	transition error
}

func newFakeOrders(orders ...*service.PopulatedOrder) *fakeOrders {
	f := &fakeOrders{orders: make(map[uuid.UUID]*service.PopulatedOrder)}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrders) CreateOrder(_ context.Context, in service.CreateOrderInput) (*service.PopulatedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	order := &service.PopulatedOrder{
		ID:          uuid.New(),
		OrderNumber: in.OrderNumber,
		UserID:      in.UserID,
		OrderStatus: domain.OrderStatusCreated,
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id uuid.UUID) (*service.PopulatedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	order, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, userID string) ([]*service.PopulatedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedFor = &userID
	if f.err != nil {
		return nil, f.err
	}
	var out []*service.PopulatedOrder
	for _, o := range f.orders {
		if userID == "" || o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) move(id uuid.UUID, to domain.OrderStatus) (*service.PopulatedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transition != nil {
		return nil, f.transition
	}
	order, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	order.OrderStatus = to
	return order, nil
}

func (f *fakeOrders) StartShipping(_ context.Context, id uuid.UUID) (*service.PopulatedOrder, error) {
	return f.move(id, domain.OrderStatusShipped)
}

func (f *fakeOrders) CancelOrder(_ context.Context, id uuid.UUID) (*service.PopulatedOrder, error) {
	f.mu.Lock()
	f.cancelled++
	f.mu.Unlock()
	return f.move(id, domain.OrderStatusCancelled)
}

func (f *fakeOrders) MarkDelivered(_ context.Context, id uuid.UUID) (*service.PopulatedOrder, error) {
	return f.move(id, domain.OrderStatusDelivered)
}

// --- helpers ---

func newTestRouter(carts CartStore, orders OrderStore, checks ...HealthChecker) http.Handler {
	return NewRouter(
		RouterConfig{RequestTimeout: 5 * time.Second, MaxRequestBodySize: 1 << 20},
		carts,
		orders,
		NewAuthenticator(testSecret),
		metrics.NewServerMetrics("storefront_test"),
		zap.NewNop(),
		checks...,
	)
}

func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := NewAuthenticator(testSecret).Sign(Identity{UserID: userID, Role: role}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	return resp
}
