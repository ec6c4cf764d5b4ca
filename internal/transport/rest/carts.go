package rest

import (
	"log/slog"
	"net/http"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	service service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates the cart API over the given service.
func NewCartHandler(service service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: service,
		logger:  logger.With("component", "rest"),
	}
}

type quantityRequest struct {
	Quantity service.Field `json:"quantity"`
}

type replaceCartRequest struct {
	Products []service.LineInput `json:"products"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// RegisterRoutes registers the cart routes. Mutations are wrapped with protect when it is set.
func (h *CartHandler) RegisterRoutes(r chi.Router, protect Middleware) {
	r.Route("/api/carts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)

		r.Group(func(r chi.Router) {
			if protect != nil {
				r.Use(protect)
			}
			r.Post("/", h.Create)
			r.Put("/{id}", h.Replace)
			r.Delete("/{id}", h.Clear)
			r.Put("/{id}/status", h.UpdateStatus)
			r.Post("/{id}/purchase", h.Purchase)

			r.Route("/{id}/product/{pid}", func(r chi.Router) {
				r.Post("/", h.AddProduct)
				r.Put("/", h.UpdateQuantity)
				r.Delete("/", h.RemoveProduct)
			})
		})
	})
}

func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	carts, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, carts)
}

func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	cart, err := h.service.Create(r.Context())
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Cart created successfully", "ID", cart.ID)
	web.RespondJSON(w, mLogger, http.StatusCreated, cart)
}

// GetByID returns the cart with resolved products, or the stored cart with populate=false.
func (h *CartHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	id := chi.URLParam(r, "id")
	populate, err := web.QueryBool(r, "populate")
	if err != nil {
		writeServiceError(w, r, mLogger, serrors.NewValidationError("populate", "must be true or false"))
		return
	}
	if populate != nil && !*populate {
		cart, err := h.service.GetByID(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, mLogger, err)
			return
		}
		web.RespondJSON(w, mLogger, http.StatusOK, cart)
		return
	}
	view, err := h.service.GetWithProducts(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

// AddProduct adds quantity units of the product, one when the body has no quantity.
func (h *CartHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	cartID, productID := chi.URLParam(r, "id"), chi.URLParam(r, "pid")
	var req quantityRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, mLogger, err)
		return
	}
	quantity := 1
	if req.Quantity.Present() {
		var err error
		if quantity, err = req.Quantity.Int("quantity"); err != nil {
			writeServiceError(w, r, mLogger, err)
			return
		}
	}
	cart, err := h.service.AddProduct(r.Context(), cartID, productID, quantity)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product added to cart", "cart", cartID, "product", productID, "quantity", quantity)
	web.RespondJSON(w, mLogger, http.StatusOK, cart)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	cartID, productID := chi.URLParam(r, "id"), chi.URLParam(r, "pid")
	var req quantityRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, mLogger, err)
		return
	}
	if !req.Quantity.Present() {
		writeServiceError(w, r, mLogger, serrors.NewValidationError("quantity", "is required"))
		return
	}
	quantity, err := req.Quantity.Int("quantity")
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	cart, err := h.service.UpdateProductQuantity(r.Context(), cartID, productID, quantity)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, cart)
}

func (h *CartHandler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	cart, err := h.service.RemoveProduct(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "pid"))
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, cart)
}

// Replace swaps every line of the cart for the lines in the body.
func (h *CartHandler) Replace(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	var req replaceCartRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, mLogger, err)
		return
	}
	if req.Products == nil {
		writeServiceError(w, r, mLogger, serrors.NewValidationError("products", "is required"))
		return
	}
	cart, err := h.service.UpdateCart(r.Context(), chi.URLParam(r, "id"), req.Products)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, cart)
}

// Clear empties the cart. The cart itself is kept.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	cart, err := h.service.ClearCart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, cart)
}

func (h *CartHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	var req statusRequest
	if err := web.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, mLogger, err)
		return
	}
	cart, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, cart)
}

func (h *CartHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	cartID := chi.URLParam(r, "id")
	summary, err := h.service.Purchase(r.Context(), cartID)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Cart purchased", "cart", cartID, "order", summary.OrderID)
	web.RespondJSON(w, mLogger, http.StatusOK, summary)
}
