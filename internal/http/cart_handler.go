package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxQuantity = 99

type CartStore interface {
	GetOrCreate(ctx context.Context, userID string) (*service.PopulatedCart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*service.PopulatedCart, bool, error)
	SetItemQuantity(ctx context.Context, userID, productID string, quantity int) (*service.PopulatedCart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*service.PopulatedCart, error)
	ReplaceAll(ctx context.Context, userID string, items []domain.CartItem) (*service.PopulatedCart, error)
	DeleteCart(ctx context.Context, userID string) (*service.PopulatedCart, error)
}

type CartHandler struct {
	carts   CartStore
	timeout time.Duration
}

func NewCartHandler(carts CartStore, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type CartItemDTO struct {
	Product  string `json:"product"`
	Quantity *int   `json:"quantity"`
}

type ReplaceCartRequestDTO struct {
	Items []CartItemDTO `json:"items"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

// authorizeCart resolves the {userId} path parameter and checks the caller may use it.
func (h *CartHandler) authorizeCart(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return "", false
	}
	userID := chi.URLParam(r, "userId")
	if !domain.ValidID(userID) {
		respondError(w, r, http.StatusBadRequest, "invalid_user_id", "invalid user id")
		return "", false
	}
	if !identity.CanActFor(userID) {
		respondError(w, r, http.StatusForbidden, "permission_denied", "cannot access another user's cart")
		return "", false
	}
	return userID, true
}

func productParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	productID := chi.URLParam(r, "productId")
	if !domain.ValidID(productID) {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "invalid product id")
		return "", false
	}
	return productID, true
}

func validQuantity(q int) bool {
	return q >= 1 && q <= maxQuantity
}

// GET /api/carts/{userId}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorizeCart(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.GetOrCreate(ctx, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cart)
}

// PUT /api/carts/{userId}
func (h *CartHandler) ReplaceCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorizeCart(w, r)
	if !ok {
		return
	}

	var req ReplaceCartRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	items := make([]domain.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		quantity := 1
		if item.Quantity != nil {
			quantity = *item.Quantity
		}
		if !validQuantity(quantity) {
			respondError(w, r, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
			return
		}
		items = append(items, domain.CartItem{ProductID: item.Product, Quantity: quantity})
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.ReplaceAll(ctx, userID, items)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cart)
}

// POST /api/carts/{userId}/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorizeCart(w, r)
	if !ok {
		return
	}

	var req CartItemDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if !domain.ValidID(req.Product) {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "invalid product id")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if !validQuantity(quantity) {
		respondError(w, r, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, created, err := h.carts.AddItem(ctx, userID, req.Product, quantity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, r, status, cart)
}

// PUT /api/carts/{userId}/items/{productId}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorizeCart(w, r)
	if !ok {
		return
	}
	productID, ok := productParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil || !validQuantity(*req.Quantity) {
		respondError(w, r, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.SetItemQuantity(ctx, userID, productID, *req.Quantity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cart)
}

// DELETE /api/carts/{userId}/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorizeCart(w, r)
	if !ok {
		return
	}
	productID, ok := productParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemoveItem(ctx, userID, productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cart)
}

// DELETE /api/carts/{userId}
func (h *CartHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorizeCart(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.DeleteCart(ctx, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, cart)
}
