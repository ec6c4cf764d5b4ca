// Package notifier pushes the full product list to every connected client after a catalog change.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/model"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

// EventUpdateProducts carries the whole catalog to subscribers.
const EventUpdateProducts = "updateProducts"

// Broadcaster delivers one event to every subscriber.
type Broadcaster interface {
	Broadcast(event string, data any) error
}

// Notifier implements service.ChangeNotifier.
type Notifier struct {
	// mu orders catalog reads with their broadcasts and with new subscriptions.
	mu          sync.Mutex
	products    store.ProductStore
	broadcaster Broadcaster
	publisher   messaging.Publisher
	broadcasts  metric.Int64Counter
	failures    metric.Int64Counter
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a notifier. A nil publisher disables event publication.
func New(products store.ProductStore, broadcaster Broadcaster, publisher messaging.Publisher, logger *slog.Logger) *Notifier {
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	meter := otel.Meter("storefront")
	broadcasts, err := meter.Int64Counter("product_broadcasts", metric.WithDescription("Full catalog broadcasts sent"))
	if err != nil {
		panic(fmt.Sprintf("failed to create product_broadcasts counter: %v", err))
	}
	failures, err := meter.Int64Counter("product_broadcast_failures", metric.WithDescription("Catalog broadcasts that could not be built or sent"))
	if err != nil {
		panic(fmt.Sprintf("failed to create product_broadcast_failures counter: %v", err))
	}
	return &Notifier{
		products:    products,
		broadcaster: broadcaster,
		publisher:   publisher,
		broadcasts:  broadcasts,
		failures:    failures,
		logger:      logger.With("component", "notifier"),
		now:         time.Now,
	}
}

// Snapshot returns the current unpaginated catalog in insertion order.
func (n *Notifier) Snapshot(ctx context.Context) ([]model.Product, error) {
	products, _, err := n.products.ListProducts(ctx, model.ProductQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to read product snapshot: %w", err)
	}
	return products, nil
}

// Subscribe reads the catalog and passes it to join while no broadcast can be built. A client
// registered by join therefore never receives a broadcast older than its starting snapshot.
// A failed read reaches join as snapError; the error join returns is returned.
func (n *Notifier) Subscribe(ctx context.Context, join func(products []model.Product, snapErr error) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	products, err := n.Snapshot(ctx)
	return join(products, err)
}

// Notify re-reads the catalog and broadcasts it. Failures are logged, never returned.
// The caller's cancellation does not stop a broadcast already started.
func (n *Notifier) Notify(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	n.mu.Lock()
	products, err := n.Snapshot(ctx)
	if err != nil {
		n.mu.Unlock()
		n.failures.Add(ctx, 1)
		n.logger.ErrorContext(ctx, "Failed to build product broadcast", "error", err)
		return
	}
	err = n.broadcaster.Broadcast(EventUpdateProducts, products)
	n.mu.Unlock()
	if err != nil {
		n.failures.Add(ctx, 1)
		n.logger.ErrorContext(ctx, "Failed to broadcast products", "error", err)
	} else {
		n.broadcasts.Add(ctx, 1)
		n.logger.DebugContext(ctx, "Products broadcast", "count", len(products))
	}

	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event := events.ProductsUpdatedEvent{Carrier: carrier, Count: len(products), UpdatedAt: n.now().UTC()}
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish ProductsUpdatedEvent", "error", err)
	}
}
