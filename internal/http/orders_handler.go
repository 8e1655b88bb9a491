package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderStore interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*service.PopulatedOrder, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*service.PopulatedOrder, error)
	ListOrders(ctx context.Context, userID string) ([]*service.PopulatedOrder, error)
	StartShipping(ctx context.Context, id uuid.UUID) (*service.PopulatedOrder, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (*service.PopulatedOrder, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (*service.PopulatedOrder, error)
}

type OrdersHandler struct {
	orders  OrderStore
	timeout time.Duration
}

func NewOrdersHandler(orders OrderStore, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type OrderItemDTO struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type ShippingDTO struct {
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
}

type PaymentDTO struct {
	Provider string `json:"provider"`
	Status   string `json:"status,omitempty"`
}

type CreateOrderRequestDTO struct {
	OrderNumber string         `json:"order_number"`
	User        string         `json:"user"`
	Items       []OrderItemDTO `json:"items"`
	TotalPrice  *int64         `json:"total_price"`
	Shipping    ShippingDTO    `json:"shipping"`
	Payment     PaymentDTO     `json:"payment"`
	OrderStatus string         `json:"order_status,omitempty"`
	// ImpUID is the provider's payment claim for an already paid checkout.
	ImpUID string `json:"imp_uid,omitempty"`
}

func (d CreateOrderRequestDTO) toInput() service.CreateOrderInput {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.Product,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return service.CreateOrderInput{
		OrderNumber: d.OrderNumber,
		UserID:      d.User,
		Items:       items,
		TotalPrice:  d.TotalPrice,
		Shipping: domain.Shipping{
			PhoneNumber: d.Shipping.PhoneNumber,
			Address:     d.Shipping.Address,
		},
		Payment: domain.Payment{
			Provider: d.Payment.Provider,
			Status:   domain.PaymentStatus(d.Payment.Status),
		},
		OrderStatus:  domain.OrderStatus(d.OrderStatus),
		PaymentClaim: d.ImpUID,
	}
}

func mustIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, "unauthorized", "missing user authentication")
	}
	return identity, ok
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_order_id", "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	// a missing user is left for validation to reject
	if req.User != "" && !identity.CanActFor(req.User) {
		respondError(w, r, http.StatusForbidden, "permission_denied", "cannot place an order for another user")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.CreateOrder(ctx, req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, order)
}

// GET /api/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}

	owner := identity.UserID
	if identity.IsAdmin() {
		owner = ""
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, owner)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*service.PopulatedOrder{}
	}
	respondJSON(w, r, http.StatusOK, orders)
}

// GET /api/orders/{id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, ok := h.visibleOrder(ctx, w, r, identity, id)
	if !ok {
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}

// visibleOrder loads the order and hides other users' orders behind a 404.
func (h *OrdersHandler) visibleOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, identity Identity, id uuid.UUID) (*service.PopulatedOrder, bool) {
	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(w, r, err)
		return nil, false
	}
	if !identity.CanActFor(order.UserID) {
		respondError(w, r, http.StatusNotFound, "not_found", "order not found")
		return nil, false
	}
	return order, true
}

// PATCH /api/orders/{id}/ship
func (h *OrdersHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.orders.StartShipping)
}

// PATCH /api/orders/{id}/deliver
func (h *OrdersHandler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.orders.MarkDelivered)
}

func (h *OrdersHandler) adminTransition(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID) (*service.PopulatedOrder, error)) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	if !identity.IsAdmin() {
		respondError(w, r, http.StatusForbidden, "permission_denied", "admin role required")
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := apply(ctx, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}

// PATCH /api/orders/{id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if !identity.IsAdmin() {
		if _, ok := h.visibleOrder(ctx, w, r, identity, id); !ok {
			return
		}
	}

	order, err := h.orders.CancelOrder(ctx, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}
