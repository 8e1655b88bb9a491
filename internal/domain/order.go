package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderItem is embedded in an order at creation time. Price is the unit price
// snapshot and never re-derived from the catalog.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type Shipping struct {
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
}

type Payment struct {
	Provider string        `json:"provider"`
	Status   PaymentStatus `json:"status"`
	ClaimID  string        `json:"claim_id,omitempty"`
}

type Order struct {
	ID          uuid.UUID
	OrderNumber string
	UserID      string
	Items       []OrderItem
	TotalPrice  int64
	Shipping    Shipping
	Payment     Payment
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemsTotal is the sum of price*quantity over the embedded items. ok is false
// when a line or the sum does not fit in an int64, or a line is negative.
func (o *Order) ItemsTotal() (total int64, ok bool) {
	for _, item := range o.Items {
		if item.Price < 0 || item.Quantity < 0 {
			return 0, false
		}
		qty := int64(item.Quantity)
		if item.Price != 0 && qty > math.MaxInt64/item.Price {
			return 0, false
		}
		line := item.Price * qty
		if total > math.MaxInt64-line {
			return 0, false
		}
		total += line
	}
	return total, true
}

// ProductIDs lists the referenced products in item order.
func (o *Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
