package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is one purchased cart line.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPlacedEvent is published after a cart purchase decremented stock.
type OrderPlacedEvent struct {
	Carrier     map[string]string `json:"carrier,omitempty"`
	OrderID     uuid.UUID         `json:"order_id"`
	CartID      string            `json:"cart_id"`
	Lines       []OrderLine       `json:"lines"`
	TotalItems  int               `json:"total_items"`
	Total       decimal.Decimal   `json:"total"`
	PurchasedAt time.Time         `json:"purchased_at"`
}

func (o OrderPlacedEvent) Subject() string {
	return messaging.OrdersPlacedSubject
}

func (o OrderPlacedEvent) Payload() ([]byte, error) {
	return json.Marshal(o)
}
