package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusCreated, OrderStatusPaid, true},
		{OrderStatusCreated, OrderStatusCancelled, true},
		{OrderStatusCreated, OrderStatusShipped, false},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusPaid, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusShipped, OrderStatusShipped, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionTo(tt.from, tt.to))
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPaid.IsTerminal())
}

func TestOrder_ItemsTotal(t *testing.T) {
	o := Order{Items: []OrderItem{
		{ProductID: "a", Quantity: 2, Price: 1000},
		{ProductID: "b", Quantity: 1, Price: 500},
	}}
	total, ok := o.ItemsTotal()
	assert.True(t, ok)
	assert.Equal(t, int64(2500), total)
}

func TestOrder_ItemsTotalOverflow(t *testing.T) {
	tests := []struct {
		name  string
		items []OrderItem
	}{
		{"line wraps to zero", []OrderItem{{ProductID: "a", Quantity: 4, Price: 1 << 62}}},
		{"line exceeds int64", []OrderItem{{ProductID: "a", Quantity: 2, Price: math.MaxInt64/2 + 1}}},
		{"sum exceeds int64", []OrderItem{
			{ProductID: "a", Quantity: 1, Price: math.MaxInt64},
			{ProductID: "b", Quantity: 1, Price: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Order{Items: tt.items}
			_, ok := o.ItemsTotal()
			assert.False(t, ok)
		})
	}

	o := Order{Items: []OrderItem{{ProductID: "a", Quantity: 1, Price: math.MaxInt64}}}
	total, ok := o.ItemsTotal()
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), total)
}

func TestMergeItems(t *testing.T) {
	merged := MergeItems([]CartItem{
		{ProductID: "a", Quantity: 1},
		{ProductID: "b", Quantity: 2},
		{ProductID: "a", Quantity: 3},
	})

	assert.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].ProductID)
	assert.Equal(t, 4, merged[0].Quantity)
	assert.Equal(t, "b", merged[1].ProductID)
}
