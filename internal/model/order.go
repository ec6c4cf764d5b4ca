package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderLine struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// OrderSummary is the result of a successful purchase. Orders are not persisted.
type OrderSummary struct {
	OrderID     uuid.UUID       `json:"orderId"`
	CartID      string          `json:"cartId"`
	Lines       []OrderLine     `json:"lines"`
	TotalItems  int             `json:"totalItems"`
	Total       decimal.Decimal `json:"total"`
	PurchasedAt time.Time       `json:"purchasedAt"`
}
