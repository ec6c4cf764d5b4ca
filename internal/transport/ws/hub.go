// Package ws serves the real-time product channel: a hub that fans catalog broadcasts out
// to every connected socket, and the per-connection read and write loops.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ErrHubStopped is returned by operations attempted after Run returned.
var ErrHubStopped = errors.New("websocket hub stopped")

// Message is the frame exchanged in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type direct struct {
	client  *client
	payload []byte
}

// registration adds a client and queues its welcome frame, if any, in the same hub step.
type registration struct {
	client  *client
	welcome []byte
}

// Hub owns the set of connected clients. All state changes go through its Run loop.
type Hub struct {
	clients    map[*client]struct{}
	register   chan registration
	unregister chan *client
	broadcast  chan []byte
	direct     chan direct
	done       chan struct{}

	connected metric.Int64UpDownCounter
	dropped   metric.Int64Counter
	logger    *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	meter := otel.Meter("storefront")
	connected, err := meter.Int64UpDownCounter("ws_clients", metric.WithDescription("Connected websocket clients"))
	if err != nil {
		panic(fmt.Sprintf("failed to create ws_clients gauge: %v", err))
	}
	dropped, err := meter.Int64Counter("ws_clients_dropped", metric.WithDescription("Clients dropped because their send buffer was full"))
	if err != nil {
		panic(fmt.Sprintf("failed to create ws_clients_dropped counter: %v", err))
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan registration),
		unregister: make(chan *client),
		broadcast:  make(chan []byte),
		direct:     make(chan direct),
		done:       make(chan struct{}),
		connected:  connected,
		dropped:    dropped,
		logger:     logger.With("component", "ws-hub"),
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(ctx, c)
			}
			h.logger.Info("Websocket hub stopped")
			return nil
		case reg := <-h.register:
			h.clients[reg.client] = struct{}{}
			h.connected.Add(ctx, 1)
			h.logger.Debug("Client connected", "client", reg.client.id, "clients", len(h.clients))
			if reg.welcome != nil {
				h.deliver(ctx, reg.client, reg.welcome)
			}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(ctx, c)
				h.logger.Debug("Client disconnected", "client", c.id, "clients", len(h.clients))
			}
		case payload := <-h.broadcast:
			for c := range h.clients {
				h.deliver(ctx, c, payload)
			}
		case d := <-h.direct:
			if _, ok := h.clients[d.client]; ok {
				h.deliver(ctx, d.client, d.payload)
			}
		}
	}
}

// deliver queues payload without blocking. A client that cannot keep up is dropped.
func (h *Hub) deliver(ctx context.Context, c *client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.remove(ctx, c)
		h.dropped.Add(ctx, 1)
		h.logger.Warn("Dropping slow client", "client", c.id)
	}
}

func (h *Hub) remove(ctx context.Context, c *client) {
	delete(h.clients, c)
	close(c.send)
	h.connected.Add(ctx, -1)
}

// Broadcast encodes the event once and queues it for every connected client.
func (h *Hub) Broadcast(event string, data any) error {
	msg, err := encode(event, data)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// sendTo queues an event for a single client.
func (h *Hub) sendTo(c *client, event string, data any) error {
	msg, err := encode(event, data)
	if err != nil {
		return err
	}
	select {
	case h.direct <- direct{client: c, payload: msg}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// join registers c. A non-nil welcome is the first frame c receives, ahead of any broadcast
// the hub takes after the registration.
func (h *Hub) join(c *client, welcome []byte) error {
	select {
	case h.register <- registration{client: c, welcome: welcome}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func encode(event string, data any) ([]byte, error) {
	msg, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	return msg, nil
}
