package model

import "time"

const (
	CartStatusActive    = "active"
	CartStatusCompleted = "completed"
	CartStatusAbandoned = "abandoned"

	MaxLineQuantity = 999
	MaxCartLines    = 100
)

// CartStatuses lists the accepted cart statuses.
var CartStatuses = []string{CartStatusActive, CartStatusCompleted, CartStatusAbandoned}

// LineItem references a product by id. It never embeds the product itself.
type LineItem struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	ID           string     `json:"id"`
	Products     []LineItem `json:"products"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastModified time.Time  `json:"lastModified"`
}

// NewCart returns an empty active cart.
func NewCart(now time.Time) Cart {
	return Cart{
		Products:     []LineItem{},
		Status:       CartStatusActive,
		CreatedAt:    now,
		LastModified: now,
	}
}

// LineIndex returns the position of the line for productID, or -1.
func (c *Cart) LineIndex(productID string) int {
	for i, l := range c.Products {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// TotalQuantity sums the quantity of every line.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, l := range c.Products {
		total += l.Quantity
	}
	return total
}
