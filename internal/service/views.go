package service

import (
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

// ProductView is a product reference resolved against the live catalog. A
// product that no longer exists keeps only its id and Available=false.
type ProductView struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name,omitempty"`
	Price     *int64 `json:"price,omitempty"`
	Category  string `json:"category,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

func productView(id string, products map[string]*domain.Product) ProductView {
	p, ok := products[id]
	if !ok {
		return ProductView{ID: id}
	}
	price := p.Price
	return ProductView{
		ID:        p.ID,
		Available: true,
		SKU:       p.SKU,
		Name:      p.Name,
		Price:     &price,
		Category:  p.Category,
		ImageURL:  p.ImageURL,
	}
}

type PopulatedCartItem struct {
	Product  ProductView `json:"product"`
	Quantity int         `json:"quantity"`
	AddedAt  time.Time   `json:"added_at"`
}

type PopulatedCart struct {
	ID     string              `json:"id,omitempty"`
	UserID string              `json:"user"`
	Items  []PopulatedCartItem `json:"items"`
	// ItemCount is the sum of quantities and Subtotal the sum of live price
	// times quantity over available products.
	ItemCount int       `json:"item_count"`
	Subtotal  int64     `json:"subtotal"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func populateCart(cart *domain.Cart, products map[string]*domain.Product) *PopulatedCart {
	out := &PopulatedCart{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Items:     make([]PopulatedCartItem, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		view := productView(item.ProductID, products)
		out.Items = append(out.Items, PopulatedCartItem{
			Product:  view,
			Quantity: item.Quantity,
			AddedAt:  item.AddedAt,
		})
		out.ItemCount += item.Quantity
		if view.Price != nil {
			out.Subtotal += *view.Price * int64(item.Quantity)
		}
	}
	return out
}

type PopulatedOrderItem struct {
	Product  ProductView `json:"product"`
	Quantity int         `json:"quantity"`
	// Price is the unit price recorded when the order was placed.
	Price int64 `json:"price"`
}

type PopulatedOrder struct {
	ID          uuid.UUID            `json:"id"`
	OrderNumber string               `json:"order_number"`
	UserID      string               `json:"user"`
	Items       []PopulatedOrderItem `json:"items"`
	TotalPrice  int64                `json:"total_price"`
	Shipping    domain.Shipping      `json:"shipping"`
	Payment     domain.Payment       `json:"payment"`
	OrderStatus domain.OrderStatus   `json:"order_status"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func populateOrder(order *domain.Order, products map[string]*domain.Product) *PopulatedOrder {
	out := &PopulatedOrder{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Items:       make([]PopulatedOrderItem, 0, len(order.Items)),
		TotalPrice:  order.TotalPrice,
		Shipping:    order.Shipping,
		Payment:     order.Payment,
		OrderStatus: order.Status,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, item := range order.Items {
		out.Items = append(out.Items, PopulatedOrderItem{
			Product:  productView(item.ProductID, products),
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return out
}
