package events

import (
	"context"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// OrderEvent is published after every successful order write.
type OrderEvent struct {
	Type        string             `json:"event_type"`
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	UserID      string             `json:"user_id"`
	Status      domain.OrderStatus `json:"order_status"`
	TotalPrice  int64              `json:"total_price"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// EventType names the event by the status the order reached, order.created for
// a new order.
func EventType(status domain.OrderStatus, created bool) string {
	if created {
		return "order.created"
	}
	return "order." + status.String()
}

func NewOrderEvent(order *domain.Order, created bool) OrderEvent {
	return OrderEvent{
		Type:        EventType(order.Status, created),
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalPrice:  order.TotalPrice,
		OccurredAt:  time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

type noopPublisher struct{}

// Noop drops every event. Used when no brokers are configured.
func Noop() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, OrderEvent) error { return nil }

func (noopPublisher) Close() error { return nil }
