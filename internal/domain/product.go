package domain

import (
	"encoding/hex"
	"time"
)

// Product is the read-only catalog view consumed by carts and orders.
type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku,omitempty"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Category  string    `json:"category,omitempty"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ValidID reports whether id looks like a 24 character hex object id, the
// identifier format used for users and products.
func ValidID(id string) bool {
	if len(id) != 24 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
