package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/model"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

// CartService defines the cart operations exposed to transports.
type CartService interface {
	List(ctx context.Context) ([]model.Cart, error)
	Create(ctx context.Context) (*model.Cart, error)

	// GetByID returns ErrCartNotFound if no cart exists with the given ID.
	GetByID(ctx context.Context, id string) (*model.Cart, error)

	// GetWithProducts resolves every line against the catalog and computes totals.
	GetWithProducts(ctx context.Context, id string) (*CartView, error)

	AddProduct(ctx context.Context, cartID, productID string, quantity int) (*model.Cart, error)
	UpdateProductQuantity(ctx context.Context, cartID, productID string, quantity int) (*model.Cart, error)
	RemoveProduct(ctx context.Context, cartID, productID string) (*model.Cart, error)
	UpdateCart(ctx context.Context, cartID string, lines []LineInput) (*model.Cart, error)
	ClearCart(ctx context.Context, cartID string) (*model.Cart, error)
	UpdateStatus(ctx context.Context, cartID, status string) (*model.Cart, error)

	// Purchase checks every line against stock, decrements it and empties the cart.
	Purchase(ctx context.Context, cartID string) (*model.OrderSummary, error)
}

// CartLineView is a cart line with its product resolved.
type CartLineView struct {
	Product  model.Product   `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// CartView is a cart with resolved products and derived totals. Lines whose product was
// deleted or deactivated are left out of the view and of the totals.
type CartView struct {
	ID           string          `json:"id"`
	Products     []CartLineView  `json:"products"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastModified time.Time       `json:"lastModified"`
	TotalItems   int             `json:"totalItems"`
	Total        decimal.Decimal `json:"total"`
	ProductCount int             `json:"productCount"`
}

// Carts implements CartService.
type Carts struct {
	carts         store.CartStore
	products      store.ProductStore
	notifier      ChangeNotifier
	publisher     messaging.Publisher
	ordersCounter metric.Int64Counter
	logger        *slog.Logger
	now           func() time.Time
}

// NewCarts creates the cart service. A nil notifier or publisher disables that side effect.
func NewCarts(carts store.CartStore, products store.ProductStore, notifier ChangeNotifier, publisher messaging.Publisher, logger *slog.Logger) *Carts {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	meter := otel.Meter("storefront")
	ordersCounter, err := meter.Int64Counter("orders_placed", metric.WithDescription("Total number of purchased carts"))
	if err != nil {
		panic(fmt.Sprintf("failed to create orders_placed counter: %v", err))
	}
	return &Carts{
		carts:         carts,
		products:      products,
		notifier:      notifier,
		publisher:     publisher,
		ordersCounter: ordersCounter,
		logger:        logger.With("component", "carts"),
		now:           time.Now,
	}
}

func (s *Carts) List(ctx context.Context) ([]model.Cart, error) {
	carts, err := s.carts.ListCarts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list carts: %w", err)
	}
	return carts, nil
}

func (s *Carts) Create(ctx context.Context) (*model.Cart, error) {
	cart, err := s.carts.CreateCart(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	s.logger.InfoContext(ctx, "cart created", "id", cart.ID)
	return cart, nil
}

func (s *Carts) GetByID(ctx context.Context, id string) (*model.Cart, error) {
	cart, err := s.carts.FindCartByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart %s: %w", id, err)
	}
	return cart, nil
}

func (s *Carts) GetWithProducts(ctx context.Context, id string) (*CartView, error) {
	cart, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	byID, err := s.resolve(ctx, cart)
	if err != nil {
		return nil, err
	}

	view := &CartView{
		ID:           cart.ID,
		Products:     make([]CartLineView, 0, len(cart.Products)),
		Status:       cart.Status,
		CreatedAt:    cart.CreatedAt,
		LastModified: cart.LastModified,
		Total:        decimal.Zero,
	}
	for _, line := range cart.Products {
		p, ok := byID[line.ProductID]
		if !ok || !p.Status {
			continue
		}
		subtotal := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		view.Products = append(view.Products, CartLineView{Product: p, Quantity: line.Quantity, Subtotal: subtotal})
		view.TotalItems += line.Quantity
		view.Total = view.Total.Add(subtotal)
	}
	view.ProductCount = len(view.Products)
	return view, nil
}

func (s *Carts) resolve(ctx context.Context, cart *model.Cart) (map[string]model.Product, error) {
	ids := make([]string, len(cart.Products))
	for i, l := range cart.Products {
		ids[i] = l.ProductID
	}
	products, err := s.products.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve products of cart %s: %w", cart.ID, err)
	}
	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

// AddProduct increments the line of productID by quantity, or appends a new line.
func (s *Carts) AddProduct(ctx context.Context, cartID, productID string, quantity int) (*model.Cart, error) {
	if quantity < 1 {
		return nil, serrors.NewValidationError("quantity", "must be a positive integer")
	}
	if _, err := s.products.FindProductByID(ctx, productID); err != nil {
		return nil, fmt.Errorf("failed to add product %s to cart %s: %w", productID, cartID, err)
	}
	cart, err := s.carts.UpdateCart(ctx, cartID, func(c *model.Cart) error {
		if i := c.LineIndex(productID); i >= 0 {
			if c.Products[i].Quantity+quantity > model.MaxLineQuantity {
				return serrors.NewValidationError("quantity", "must not exceed %d per product", model.MaxLineQuantity)
			}
			c.Products[i].Quantity += quantity
			return nil
		}
		if quantity > model.MaxLineQuantity {
			return serrors.NewValidationError("quantity", "must not exceed %d per product", model.MaxLineQuantity)
		}
		if len(c.Products) >= model.MaxCartLines {
			return serrors.NewValidationError("products", "a cart holds at most %d products", model.MaxCartLines)
		}
		c.Products = append(c.Products, model.LineItem{ProductID: productID, Quantity: quantity})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add product %s to cart %s: %w", productID, cartID, err)
	}
	return cart, nil
}

// UpdateProductQuantity sets the quantity of an existing line. A quantity of zero or below
// removes the line.
func (s *Carts) UpdateProductQuantity(ctx context.Context, cartID, productID string, quantity int) (*model.Cart, error) {
	if quantity > model.MaxLineQuantity {
		return nil, serrors.NewValidationError("quantity", "must not exceed %d per product", model.MaxLineQuantity)
	}
	cart, err := s.carts.UpdateCart(ctx, cartID, func(c *model.Cart) error {
		i := c.LineIndex(productID)
		if i < 0 {
			return serrors.ErrLineNotFound
		}
		if quantity <= 0 {
			c.Products = slices.Delete(c.Products, i, i+1)
			return nil
		}
		c.Products[i].Quantity = quantity
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update product %s in cart %s: %w", productID, cartID, err)
	}
	return cart, nil
}

func (s *Carts) RemoveProduct(ctx context.Context, cartID, productID string) (*model.Cart, error) {
	cart, err := s.carts.UpdateCart(ctx, cartID, func(c *model.Cart) error {
		i := c.LineIndex(productID)
		if i < 0 {
			return serrors.ErrLineNotFound
		}
		c.Products = slices.Delete(c.Products, i, i+1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove product %s from cart %s: %w", productID, cartID, err)
	}
	return cart, nil
}

// UpdateCart replaces every line of the cart. All lines are checked first; duplicate product
// ids are merged by summing their quantities.
func (s *Carts) UpdateCart(ctx context.Context, cartID string, lines []LineInput) (*model.Cart, error) {
	replacement := make([]model.LineItem, 0, len(lines))
	for i, in := range lines {
		productID, err := productRef(in.Product, fmt.Sprintf("products[%d].product", i))
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("products[%d].quantity", i)
		if !in.Quantity.Present() {
			return nil, serrors.NewValidationError(name, "is required")
		}
		quantity, err := in.Quantity.Int(name)
		if err != nil {
			return nil, err
		}
		if quantity < 1 {
			return nil, serrors.NewValidationError(name, "must be a positive integer")
		}
		if j := slices.IndexFunc(replacement, func(l model.LineItem) bool { return l.ProductID == productID }); j >= 0 {
			replacement[j].Quantity += quantity
		} else {
			replacement = append(replacement, model.LineItem{ProductID: productID, Quantity: quantity})
		}
	}
	if len(replacement) > model.MaxCartLines {
		return nil, serrors.NewValidationError("products", "a cart holds at most %d products", model.MaxCartLines)
	}
	ids := make([]string, len(replacement))
	for i, l := range replacement {
		if l.Quantity > model.MaxLineQuantity {
			return nil, serrors.NewValidationError("quantity", "must not exceed %d per product", model.MaxLineQuantity)
		}
		ids[i] = l.ProductID
	}
	found, err := s.products.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve products for cart %s: %w", cartID, err)
	}
	for _, id := range ids {
		if !slices.ContainsFunc(found, func(p model.Product) bool { return p.ID == id }) {
			return nil, fmt.Errorf("product %s: %w", id, serrors.ErrProductNotFound)
		}
	}

	cart, err := s.carts.UpdateCart(ctx, cartID, func(c *model.Cart) error {
		c.Products = replacement
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace lines of cart %s: %w", cartID, err)
	}
	return cart, nil
}

func (s *Carts) ClearCart(ctx context.Context, cartID string) (*model.Cart, error) {
	cart, err := s.carts.UpdateCart(ctx, cartID, func(c *model.Cart) error {
		c.Products = []model.LineItem{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clear cart %s: %w", cartID, err)
	}
	return cart, nil
}

func (s *Carts) UpdateStatus(ctx context.Context, cartID, status string) (*model.Cart, error) {
	if !slices.Contains(model.CartStatuses, status) {
		return nil, serrors.NewValidationError("status", "must be one of: %v", model.CartStatuses)
	}
	cart, err := s.carts.UpdateCart(ctx, cartID, func(c *model.Cart) error {
		c.Status = status
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update status of cart %s: %w", cartID, err)
	}
	return cart, nil
}

// Purchase rejects the whole cart with InsufficientStockError when any line exceeds the current
// stock. Missing and inactive products count as out of stock. Otherwise stock is decremented
// and an order summary is returned.
//
// The cart lines are claimed first: one cart update snapshots and empties them, so concurrent
// purchases of the same cart cannot both decrement stock. Lines that were not bought are put
// back into the cart.
func (s *Carts) Purchase(ctx context.Context, cartID string) (*model.OrderSummary, error) {
	claimed, err := s.claimLines(ctx, cartID)
	if err != nil {
		return nil, err
	}
	cart := &model.Cart{ID: cartID, Products: claimed}
	byID, err := s.resolve(ctx, cart)
	if err != nil {
		s.restoreLines(ctx, cartID, claimed)
		return nil, err
	}

	var shortages []serrors.StockShortage
	changes := make([]model.StockChange, 0, len(claimed))
	for _, line := range claimed {
		available := 0
		if p, ok := byID[line.ProductID]; ok && p.Status {
			available = p.Stock
		}
		if line.Quantity > available {
			shortages = append(shortages, serrors.StockShortage{ProductID: line.ProductID, Requested: line.Quantity, Available: available})
		}
		changes = append(changes, model.StockChange{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	if len(shortages) > 0 {
		stockErr := &serrors.InsufficientStockError{Lines: shortages}
		s.logger.WarnContext(ctx, "purchase rejected", "cart", cartID, "error", stockErr.Error())
		s.restoreLines(ctx, cartID, claimed)
		return nil, stockErr
	}

	if err := s.products.DecrementStock(ctx, changes); err != nil {
		s.logger.ErrorContext(ctx, "stock decrement failed", "cart", cartID, "error", err)
		var partial *serrors.PartialDecrementError
		if errors.As(err, &partial) {
			// Applied lines are sold; only the rest goes back.
			s.restoreLines(ctx, cartID, unapplied(claimed, partial.Applied))
			s.notifier.Notify(ctx)
		} else {
			s.restoreLines(ctx, cartID, claimed)
		}
		return nil, fmt.Errorf("failed to purchase cart %s: %w", cartID, err)
	}

	summary := &model.OrderSummary{
		OrderID:     uuid.New(),
		CartID:      cartID,
		Lines:       make([]model.OrderLine, 0, len(claimed)),
		Total:       decimal.Zero,
		PurchasedAt: s.now().UTC(),
	}
	for _, line := range claimed {
		p := byID[line.ProductID]
		subtotal := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		summary.Lines = append(summary.Lines, model.OrderLine{
			ProductID: line.ProductID,
			Title:     p.Title,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
			Subtotal:  subtotal,
		})
		summary.TotalItems += line.Quantity
		summary.Total = summary.Total.Add(subtotal)
	}

	s.logger.InfoContext(ctx, "cart purchased", "cart", cartID, "order", summary.OrderID, "total", summary.Total.String())
	s.notifier.Notify(ctx)
	s.ordersCounter.Add(ctx, 1)
	s.publishOrderPlaced(ctx, summary)
	return summary, nil
}

// claimLines empties the cart and returns the lines it held. An empty cart is a ValidationError.
func (s *Carts) claimLines(ctx context.Context, cartID string) ([]model.LineItem, error) {
	var claimed []model.LineItem
	_, err := s.carts.UpdateCart(ctx, cartID, func(c *model.Cart) error {
		if len(c.Products) == 0 {
			return serrors.NewValidationError("products", "cart %s is empty", cartID)
		}
		claimed = slices.Clone(c.Products)
		c.Products = []model.LineItem{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to purchase cart %s: %w", cartID, err)
	}
	return claimed, nil
}

// restoreLines merges lines back into the cart, next to anything added since the claim.
func (s *Carts) restoreLines(ctx context.Context, cartID string, lines []model.LineItem) {
	if len(lines) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	_, err := s.carts.UpdateCart(ctx, cartID, func(c *model.Cart) error {
		for _, line := range lines {
			if i := c.LineIndex(line.ProductID); i >= 0 {
				c.Products[i].Quantity = min(c.Products[i].Quantity+line.Quantity, model.MaxLineQuantity)
				continue
			}
			c.Products = append(c.Products, line)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to restore cart lines", "cart", cartID, "lines", len(lines), "error", err)
	}
}

// unapplied returns the claimed lines that a partial decrement did not reach.
func unapplied(claimed []model.LineItem, applied []model.StockChange) []model.LineItem {
	rest := make([]model.LineItem, 0, len(claimed))
	for _, line := range claimed {
		if !slices.ContainsFunc(applied, func(c model.StockChange) bool { return c.ProductID == line.ProductID }) {
			rest = append(rest, line)
		}
	}
	return rest
}

func (s *Carts) publishOrderPlaced(ctx context.Context, summary *model.OrderSummary) {
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	lines := make([]events.OrderLine, len(summary.Lines))
	for i, l := range summary.Lines {
		lines[i] = events.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	event := events.OrderPlacedEvent{
		Carrier:     carrier,
		OrderID:     summary.OrderID,
		CartID:      summary.CartID,
		Lines:       lines,
		TotalItems:  summary.TotalItems,
		Total:       summary.Total,
		PurchasedAt: summary.PurchasedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish OrderPlacedEvent", "order", summary.OrderID, "error", err)
	}
}
