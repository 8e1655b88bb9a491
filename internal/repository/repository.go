package repository

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrCartNotFound      = fmt.Errorf("cart %w", domain.ErrNotFound)
	ErrItemNotFound      = fmt.Errorf("item %w in cart", domain.ErrNotFound)
	ErrProductNotFound   = fmt.Errorf("product %w", domain.ErrNotFound)
	ErrOrderNotFound     = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrDuplicateOrder    = fmt.Errorf("%w: order with this order_number already exists", domain.ErrDuplicate)
	ErrStatusConflict    = fmt.Errorf("%w: order status changed concurrently", domain.ErrConflict)
	ErrConcurrentCartAdd = fmt.Errorf("%w: cart was modified concurrently, retry", domain.ErrConflict)
)

// CartRepository defines the cart document operations. Every method touches a
// single cart document atomically.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) (*domain.Cart, error)
	// AddItem increments the quantity of an existing line or appends a new one.
	// created reports whether the cart document was inserted by this call.
	AddItem(ctx context.Context, userID string, item domain.CartItem) (created bool, err error)
	UpdateItemQuantity(ctx context.Context, userID string, productID string, quantity int) error
	RemoveItem(ctx context.Context, userID string, productID string) error
	DeleteCart(ctx context.Context, userID string) (*domain.Cart, error)
}

// ProductRepository is the read-only catalog lookup.
type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// GetProducts returns the products that exist, keyed by id. Unknown ids are omitted.
	GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error)
}

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	// ListOrders returns orders newest first. An empty userID lists every order.
	ListOrders(ctx context.Context, userID string) ([]*domain.Order, error)
	// UpdateStatus moves the order from one status to another only if it is
	// still in the from status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, payment domain.PaymentStatus) (*domain.Order, error)
}
