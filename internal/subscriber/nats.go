// Package subscriber consumes storefront order events from NATS JetStream.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"
)

// OrderHandler processes one placed order. A returned error asks for redelivery.
type OrderHandler func(ctx context.Context, event events.OrderPlacedEvent) error

// ackableMsg is the part of jetstream.Msg used by handleMessage.
type ackableMsg interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
	Term() error
}

// Start creates or updates the durable consumer and runs the configured number of workers
// until ctx is done.
func Start(ctx context.Context, js jetstream.JetStream, subscriberCfg config.SubscriberConfig, handler OrderHandler, logger *slog.Logger) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: subscriberCfg.Subject,
		Durable:       subscriberCfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    subscriberCfg.MaxDeliver,
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, subscriberCfg.Stream, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", subscriberCfg.Consumer, err)
	}
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < subscriberCfg.Workers; i++ {
		g.Go(func() error {
			return runWorker(gCtx, consumer, subscriberCfg, handler, logger.With("worker", i))
		})
	}
	return g.Wait()
}

// runWorker fetches batches from the consumer and processes them one message at a time.
func runWorker(ctx context.Context, consumer jetstream.Consumer, cfg config.SubscriberConfig, handler OrderHandler, logger *slog.Logger) error {
	batchSize := max(cfg.Batch, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			batch, err := consumer.Fetch(batchSize, jetstream.FetchMaxWait(cfg.Timeout))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				logger.Error("failed to fetch messages", "error", err)
				time.Sleep(cfg.Interval)
				continue
			}
			for msg := range batch.Messages() {
				handleMessage(ctx, msg, handler, logger)
			}
			if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
				logger.Warn("batch ended with error", "error", err)
			}
		}
	}
}

// handleMessage decodes one OrderPlacedEvent. Undecodable payloads are terminated since
// redelivery cannot fix them. Handler failures are negatively acknowledged.
func handleMessage(ctx context.Context, msg ackableMsg, handler OrderHandler, logger *slog.Logger) {
	if msg == nil {
		logger.Error("received nil message")
		return
	}
	var event events.OrderPlacedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		logger.Error("failed to unmarshal message", "error", err, "subject", msg.Subject())
		if err := msg.Term(); err != nil {
			logger.Error("failed to terminate message", "error", err)
		}
		return
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(event.Carrier))
	if err := handler(ctx, event); err != nil {
		logger.ErrorContext(ctx, "failed to handle order placed event", "order_id", event.OrderID, "error", err)
		if err := msg.Nak(); err != nil {
			logger.Error("failed to nack message", "error", err)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		logger.Error("failed to ack message", "error", err)
	}
}

// LogOrders returns a handler that records every placed order in the log and the
// order_notifications counter.
func LogOrders(logger *slog.Logger) OrderHandler {
	counter, err := otel.Meter("order-notifier").Int64Counter("order_notifications",
		metric.WithDescription("Placed orders received from the event stream"))
	if err != nil {
		panic(fmt.Sprintf("failed to create order_notifications counter: %v", err))
	}
	return func(ctx context.Context, event events.OrderPlacedEvent) error {
		logger.InfoContext(ctx, "received order placed event",
			slog.String("order_id", event.OrderID.String()),
			slog.String("cart_id", event.CartID),
			slog.Int("total_items", event.TotalItems),
			slog.String("total", event.Total.String()),
			slog.String("purchased_at", event.PurchasedAt.Format(time.RFC3339)))
		counter.Add(ctx, 1)
		return nil
	}
}
