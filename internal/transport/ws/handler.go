package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/model"
	"github.com/abgdnv/storefront/internal/notifier"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	EventNewProduct    = "newProduct"
	EventDeleteProduct = "deleteProduct"
	EventError         = "error"
)

// Subscriber hands join the catalog a new client starts from, ordered against catalog broadcasts.
type Subscriber interface {
	Subscribe(ctx context.Context, join func(products []model.Product, snapErr error) error) error
}

type errorReply struct {
	Message string `json:"message"`
}

// Handler upgrades requests to sockets and dispatches client events to the catalog.
type Handler struct {
	hub       *Hub
	catalog   service.ProductService
	snapshots Subscriber
	upgrader  websocket.Upgrader
	cfg       config.WebSocketConfig
	logger    *slog.Logger
}

func NewHandler(hub *Hub, catalog service.ProductService, snapshots Subscriber, cfg config.WebSocketConfig, logger *slog.Logger) *Handler {
	return &Handler{
		hub:       hub,
		catalog:   catalog,
		snapshots: snapshots,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cfg:    cfg,
		logger: logger.With("component", "ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger.With("request_id", middleware.GetReqID(r.Context()))
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied with an HTTP error
		mLogger.WarnContext(r.Context(), "Websocket upgrade failed", "error", err)
		return
	}
	c := newClient(uuid.NewString(), conn, h.cfg, mLogger)
	ctx := context.WithoutCancel(r.Context())
	err = h.snapshots.Subscribe(ctx, func(products []model.Product, snapErr error) error {
		var welcome []byte
		if snapErr != nil {
			mLogger.ErrorContext(ctx, "Failed to load product snapshot", "error", snapErr)
		} else if welcome, snapErr = encode(notifier.EventUpdateProducts, products); snapErr != nil {
			mLogger.ErrorContext(ctx, "Failed to encode product snapshot", "error", snapErr)
		}
		return h.hub.join(c, welcome)
	})
	if err != nil {
		_ = conn.Close()
		return
	}
	go c.writePump()

	c.readPump(func(raw []byte) { h.dispatch(ctx, c, raw) })
	h.hub.leave(c)
}

func (h *Handler) dispatch(ctx context.Context, c *client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(c, "Invalid message")
		return
	}
	switch msg.Event {
	case EventNewProduct:
		var in service.ProductInput
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			h.reply(c, "Invalid product payload")
			return
		}
		if _, err := h.catalog.Create(ctx, in); err != nil {
			h.fail(ctx, c, msg.Event, err)
		}
	case EventDeleteProduct:
		var f service.Field
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &f); err != nil {
				h.reply(c, "Invalid product id")
				return
			}
		}
		id, err := service.ProductRef(f)
		if err != nil {
			h.fail(ctx, c, msg.Event, err)
			return
		}
		if _, err := h.catalog.Delete(ctx, id); err != nil {
			h.fail(ctx, c, msg.Event, err)
		}
	default:
		h.reply(c, "Unknown event: "+msg.Event)
	}
}

func (h *Handler) fail(ctx context.Context, c *client, event string, err error) {
	message := errorMessage(err)
	if message == internalMessage {
		c.logger.ErrorContext(ctx, "Socket event failed", "event", event, "error", err)
	} else {
		c.logger.WarnContext(ctx, "Socket event rejected", "event", event, "error", err)
	}
	h.reply(c, message)
}

// reply sends an error event to the originating client only.
func (h *Handler) reply(c *client, message string) {
	if err := h.hub.sendTo(c, EventError, errorReply{Message: message}); err != nil {
		c.logger.Debug("Failed to queue error reply", "error", err)
	}
}

const internalMessage = "Internal server error"

func errorMessage(err error) string {
	var validationErr *serrors.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Error()
	case errors.Is(err, serrors.ErrDuplicateCode):
		return "Product code already exists"
	case errors.Is(err, serrors.ErrProductNotFound):
		return "Product not found"
	default:
		return internalMessage
	}
}
