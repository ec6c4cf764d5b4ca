// Package service holds the catalog and cart business rules shared by every transport.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/model"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ChangeNotifier is told after every successful product mutation.
// Implementations must not fail the caller.
type ChangeNotifier interface {
	Notify(ctx context.Context)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context) {}

// ProductService defines the catalog operations exposed to transports.
type ProductService interface {
	// List returns the filtered products, as a plain list or as a page envelope.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// GetByID returns ErrProductNotFound if no product exists with the given ID.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	Create(ctx context.Context, in ProductInput) (*model.Product, error)

	Update(ctx context.Context, id string, in ProductInput) (*model.Product, error)

	// Delete removes the product and returns the removed record.
	Delete(ctx context.Context, id string) (*model.Product, error)
}

// ListOptions are the query parameters of a product listing. Nil pointers are absent.
type ListOptions struct {
	Category  string
	Search    string
	MinPrice  *float64
	MaxPrice  *float64
	Available *bool
	SortBy    string
	Order     string
	// Sort is the short form: asc or desc by price.
	Sort  string
	Page  *int
	Limit *int
}

// ListResult is either a full list or one page of it. It marshals to a JSON array in the first
// case and to the pagination envelope in the second.
type ListResult struct {
	items []model.Product
	page  *model.Page
}

// NewListResult wraps items, with page set when the listing was paginated.
func NewListResult(items []model.Product, page *model.Page) *ListResult {
	return &ListResult{items: items, page: page}
}

// Items returns the products of the result regardless of its shape.
func (r *ListResult) Items() []model.Product {
	return r.items
}

// Page returns the envelope when the listing was paginated.
func (r *ListResult) Page() (*model.Page, bool) {
	return r.page, r.page != nil
}

func (r *ListResult) MarshalJSON() ([]byte, error) {
	if r.page != nil {
		return json.Marshal(r.page)
	}
	return json.Marshal(r.items)
}

// Catalog implements ProductService.
type Catalog struct {
	store    store.ProductStore
	notifier ChangeNotifier
	validate *validator.Validate
	limits   config.CatalogConfig
	logger   *slog.Logger
}

// NewCatalog creates a catalog over productStore. A nil notifier disables notifications.
func NewCatalog(productStore store.ProductStore, notifier ChangeNotifier, limits config.CatalogConfig, logger *slog.Logger) *Catalog {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Catalog{
		store:    productStore,
		notifier: notifier,
		validate: newValidator(),
		limits:   limits,
		logger:   logger.With("component", "catalog"),
	}
}

var sortKeys = []string{model.SortByPrice, model.SortByTitle, model.SortByStock, model.SortByCode, model.SortByCreatedAt}

func (c *Catalog) query(opts ListOptions) (model.ProductQuery, error) {
	q := model.ProductQuery{
		Category:  opts.Category,
		Search:    opts.Search,
		Available: opts.Available,
		SortBy:    opts.SortBy,
		Order:     opts.Order,
	}
	if opts.Sort != "" {
		if opts.Sort != model.OrderAsc && opts.Sort != model.OrderDesc {
			return q, serrors.NewValidationError("sort", "must be %s or %s", model.OrderAsc, model.OrderDesc)
		}
		if q.SortBy == "" {
			q.SortBy = model.SortByPrice
		}
		if q.Order == "" {
			q.Order = opts.Sort
		}
	}
	if q.SortBy != "" && !slices.Contains(sortKeys, q.SortBy) {
		return q, serrors.NewValidationError("sortBy", "must be one of: %v", sortKeys)
	}
	if q.Order != "" && q.Order != model.OrderAsc && q.Order != model.OrderDesc {
		return q, serrors.NewValidationError("order", "must be %s or %s", model.OrderAsc, model.OrderDesc)
	}
	for name, v := range map[string]*float64{"minPrice": opts.MinPrice, "maxPrice": opts.MaxPrice} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return q, serrors.NewValidationError(name, "must be a finite number")
		}
	}
	if opts.MinPrice != nil {
		d := decimal.NewFromFloat(*opts.MinPrice)
		q.MinPrice = &d
	}
	if opts.MaxPrice != nil {
		d := decimal.NewFromFloat(*opts.MaxPrice)
		q.MaxPrice = &d
	}
	return q, nil
}

// List returns all matching products, or a page of them when opts carries Page or Limit.
// Limit defaults to the configured default and is capped at the configured maximum.
func (c *Catalog) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	q, err := c.query(opts)
	if err != nil {
		return nil, err
	}
	if opts.Page == nil && opts.Limit == nil {
		products, _, err := c.store.ListProducts(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		return NewListResult(products, nil), nil
	}

	page, limit := 1, c.limits.DefaultLimit
	if opts.Page != nil {
		if *opts.Page < 1 {
			return nil, serrors.NewValidationError("page", "must be a positive integer")
		}
		page = *opts.Page
	}
	if opts.Limit != nil {
		if *opts.Limit < 1 {
			return nil, serrors.NewValidationError("limit", "must be a positive integer")
		}
		limit = min(*opts.Limit, c.limits.MaxLimit)
	}
	q.Limit = limit
	if page-1 > math.MaxInt/limit {
		// No store holds that many products; report the empty page with the real total.
		q.Offset = math.MaxInt
	} else {
		q.Offset = (page - 1) * limit
	}

	products, total, err := c.store.ListProducts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	envelope := model.NewPage(products, total, page, limit)
	return NewListResult(products, &envelope), nil
}

// GetByID returns the product with the given id.
func (c *Catalog) GetByID(ctx context.Context, id string) (*model.Product, error) {
	p, err := c.store.FindProductByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return p, nil
}

// Create validates in, stores the product and notifies subscribers.
// Status defaults to true and thumbnails to an empty list.
func (c *Catalog) Create(ctx context.Context, in ProductInput) (*model.Product, error) {
	draft, err := buildDraft(c.validate, productDraft{Status: true, Thumbnails: []string{}}, in, true)
	if err != nil {
		return nil, err
	}
	var p model.Product
	draft.applyTo(&p)

	created, err := c.store.CreateProduct(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create product %s: %w", p.Code, err)
	}
	c.logger.InfoContext(ctx, "product created", "id", created.ID, "code", created.Code)
	c.notifier.Notify(ctx)
	return created, nil
}

// Update merges the present fields of in into the stored product and re-validates the result
// inside the store's update unit. The id cannot be changed.
func (c *Catalog) Update(ctx context.Context, id string, in ProductInput) (*model.Product, error) {
	updated, err := c.store.UpdateProduct(ctx, id, func(p *model.Product) error {
		draft, err := buildDraft(c.validate, draftOf(*p), in, false)
		if err != nil {
			return err
		}
		draft.applyTo(p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update product %s: %w", id, err)
	}
	c.logger.InfoContext(ctx, "product updated", "id", updated.ID)
	c.notifier.Notify(ctx)
	return updated, nil
}

// Delete removes the product and notifies subscribers.
func (c *Catalog) Delete(ctx context.Context, id string) (*model.Product, error) {
	removed, err := c.store.DeleteProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	c.logger.InfoContext(ctx, "product deleted", "id", removed.ID)
	c.notifier.Notify(ctx)
	return removed, nil
}
