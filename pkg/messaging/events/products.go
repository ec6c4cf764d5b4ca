package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
)

// ProductsUpdatedEvent announces that the catalog changed. It carries the size of the
// new catalog, not its content.
type ProductsUpdatedEvent struct {
	Carrier   map[string]string `json:"carrier,omitempty"`
	Count     int               `json:"count"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (e ProductsUpdatedEvent) Subject() string {
	return messaging.ProductsUpdatedSubject
}

func (e ProductsUpdatedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
