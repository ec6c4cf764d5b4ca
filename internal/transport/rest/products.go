// Package rest provides the HTTP handlers for products and carts.
package rest

import (
	"log/slog"
	"net/http"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware wraps the routes that change state.
type Middleware func(http.Handler) http.Handler

type ProductHandler struct {
	service service.ProductService
	logger  *slog.Logger
}

// NewProductHandler creates the product API over the given service.
func NewProductHandler(service service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the product routes. Mutations are wrapped with protect when it is set.
func (h *ProductHandler) RegisterRoutes(r chi.Router, protect Middleware) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)

		r.Group(func(r chi.Router) {
			if protect != nil {
				r.Use(protect)
			}
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// List returns the filtered products, paginated when page or limit is given.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	opts, err := listOptions(r)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to list products", "options", opts)
	result, err := h.service.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully listed products", "count", len(result.Items()))
	web.RespondJSON(w, mLogger, http.StatusOK, result)
}

func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	id := chi.URLParam(r, "id")
	found, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	var in service.ProductInput
	if err := web.DecodeJSON(w, r, &in); err != nil {
		writeBadRequest(w, r, mLogger, err)
		return
	}
	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "Code", created.Code)
	web.RespondJSON(w, mLogger, http.StatusCreated, created)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	id := chi.URLParam(r, "id")
	var in service.ProductInput
	if err := web.DecodeJSON(w, r, &in); err != nil {
		writeBadRequest(w, r, mLogger, err)
		return
	}
	updated, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// Delete answers with the removed product.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	mLogger := loggerWithReqID(h.logger, r)
	id := chi.URLParam(r, "id")
	removed, err := h.service.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	web.RespondJSON(w, mLogger, http.StatusOK, removed)
}

func listOptions(r *http.Request) (service.ListOptions, error) {
	opts := service.ListOptions{
		Category: web.QueryString(r, "category"),
		Search:   web.QueryString(r, "search"),
		SortBy:   web.QueryString(r, "sortBy"),
		Order:    web.QueryString(r, "order"),
		Sort:     web.QueryString(r, "sort"),
	}
	if opts.Search == "" {
		opts.Search = web.QueryString(r, "query")
	}
	var err error
	if opts.MinPrice, err = web.QueryFloat(r, "minPrice"); err != nil {
		return opts, serrors.NewValidationError("minPrice", "must be a number")
	}
	if opts.MaxPrice, err = web.QueryFloat(r, "maxPrice"); err != nil {
		return opts, serrors.NewValidationError("maxPrice", "must be a number")
	}
	if opts.Available, err = web.QueryBool(r, "available"); err != nil {
		return opts, serrors.NewValidationError("available", "must be true or false")
	}
	for _, key := range []string{"page", "limit"} {
		v, ok, err := web.QueryInt(r, key)
		if err != nil {
			return opts, serrors.NewValidationError(key, "must be a positive integer")
		}
		if !ok {
			continue
		}
		if key == "page" {
			opts.Page = &v
		} else {
			opts.Limit = &v
		}
	}
	return opts, nil
}

// loggerWithReqID creates a logger with the request ID from the context.
func loggerWithReqID(logger *slog.Logger, r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return logger.With("request_id", reqID)
}
