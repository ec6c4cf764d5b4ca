// Package store provides the persistence backends for products and carts.
package store

import (
	"context"

	"github.com/abgdnv/storefront/internal/model"
)

// ProductMutator edits a product in place. Returning an error aborts the update.
type ProductMutator func(p *model.Product) error

// CartMutator edits a cart in place. Returning an error aborts the update.
type CartMutator func(c *model.Cart) error

// ProductStore is an interface for product storage operations.
type ProductStore interface {
	// ListProducts returns the page of products matching q and the number of matches before slicing.
	// Without a sort key products come back in insertion order.
	ListProducts(ctx context.Context, q model.ProductQuery) ([]model.Product, int, error)

	// FindProductByID returns ErrProductNotFound if no product exists with the given ID.
	FindProductByID(ctx context.Context, id string) (*model.Product, error)

	// FindProductsByIDs returns the products that exist among ids. Missing ids are skipped.
	FindProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	// CreateProduct assigns the ID and timestamps and stores the product.
	// Returns ErrDuplicateCode if another product already uses the code.
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)

	// UpdateProduct loads the product, applies mutate and stores the result as one unit.
	// ID and CreatedAt cannot be changed by mutate. Returns ErrProductNotFound or ErrDuplicateCode.
	UpdateProduct(ctx context.Context, id string, mutate ProductMutator) (*model.Product, error)

	// DeleteProduct removes the product and returns it. Returns ErrProductNotFound.
	DeleteProduct(ctx context.Context, id string) (*model.Product, error)

	// DecrementStock removes the given quantities. Implementations report a shortage as
	// *InsufficientStockError and a decrement that stopped halfway as *PartialDecrementError.
	DecrementStock(ctx context.Context, changes []model.StockChange) error
}

// CartStore is an interface for cart storage operations.
type CartStore interface {
	ListCarts(ctx context.Context) ([]model.Cart, error)

	// FindCartByID returns ErrCartNotFound if no cart exists with the given ID.
	FindCartByID(ctx context.Context, id string) (*model.Cart, error)

	// CreateCart stores a new empty active cart.
	CreateCart(ctx context.Context) (*model.Cart, error)

	// UpdateCart loads the cart, applies mutate, touches LastModified and stores the result as one unit.
	// Returns ErrCartNotFound.
	UpdateCart(ctx context.Context, id string, mutate CartMutator) (*model.Cart, error)
}

// Store is the full persistence contract, selected once at startup.
type Store interface {
	ProductStore
	CartStore

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
