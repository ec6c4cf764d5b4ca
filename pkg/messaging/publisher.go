// Package messaging defines broker-agnostic event publishing.
package messaging

import (
	"context"
)

const (
	// SubjectPrefix is the root of every subject published by the storefront.
	SubjectPrefix = "storefront."

	// StreamSubjects matches every storefront subject when creating the stream.
	StreamSubjects = SubjectPrefix + ">"

	ProductsUpdatedSubject = SubjectPrefix + "products.updated"
	OrdersPlacedSubject    = SubjectPrefix + "orders.placed"
)

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
