package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/model"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type cartFixture struct {
	store    store.Store
	catalog  *Catalog
	carts    *Carts
	notifier *countingNotifier
}

func newCartFixture(t *testing.T) cartFixture {
	t.Helper()
	s := newFileStore(t)
	n := &countingNotifier{}
	return cartFixture{
		store:    s,
		catalog:  NewCatalog(s, n, testLimits, discardLogger()),
		carts:    NewCarts(s, s, n, nil, discardLogger()),
		notifier: n,
	}
}

func (f cartFixture) newCart(t *testing.T) *model.Cart {
	t.Helper()
	c, err := f.carts.Create(context.Background())
	require.NoError(t, err)
	return c
}

func lines(t *testing.T, raw string) []LineInput {
	t.Helper()
	var out []LineInput
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func Test_Carts_Create(t *testing.T) {
	// given
	f := newCartFixture(t)

	// when
	c := f.newCart(t)

	// then
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, []model.LineItem{}, c.Products)
	assert.Equal(t, model.CartStatusActive, c.Status)
	listed, err := f.carts.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	assert.Zero(t, f.notifier.count(), "cart changes do not notify")
}

func Test_Carts_AddProduct_aggregates(t *testing.T) {
	// given
	f := newCartFixture(t)
	p := seedProduct(t, f.catalog, "W-001", 5, 9.99)
	c := f.newCart(t)

	// when
	_, err := f.carts.AddProduct(context.Background(), c.ID, p.ID, 2)
	require.NoError(t, err)
	updated, err := f.carts.AddProduct(context.Background(), c.ID, p.ID, 3)
	require.NoError(t, err)

	// then
	assert.Equal(t, []model.LineItem{{ProductID: p.ID, Quantity: 5}}, updated.Products)
	raw, err := json.Marshal(updated)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"products":[{"product":"`+p.ID+`","quantity":5}]`)
}

func Test_Carts_AddProduct_errors(t *testing.T) {
	testCases := []struct {
		name        string
		cartID      func(c *model.Cart) string
		productID   func(p *model.Product) string
		quantity    int
		expectedErr error
	}{
		{
			name:        "zero quantity",
			cartID:      func(c *model.Cart) string { return c.ID },
			productID:   func(p *model.Product) string { return p.ID },
			quantity:    0,
			expectedErr: serrors.ErrValidation,
		},
		{
			name:        "unknown product",
			cartID:      func(c *model.Cart) string { return c.ID },
			productID:   func(*model.Product) string { return "77" },
			quantity:    1,
			expectedErr: serrors.ErrProductNotFound,
		},
		{
			name:        "unknown cart",
			cartID:      func(*model.Cart) string { return "77" },
			productID:   func(p *model.Product) string { return p.ID },
			quantity:    1,
			expectedErr: serrors.ErrCartNotFound,
		},
		{
			name:        "line quantity above maximum",
			cartID:      func(c *model.Cart) string { return c.ID },
			productID:   func(p *model.Product) string { return p.ID },
			quantity:    model.MaxLineQuantity + 1,
			expectedErr: serrors.ErrValidation,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newCartFixture(t)
			p := seedProduct(t, f.catalog, "W-001", 5, 9.99)
			c := f.newCart(t)

			// when
			_, err := f.carts.AddProduct(context.Background(), tc.cartID(c), tc.productID(p), tc.quantity)

			// then
			assert.ErrorIs(t, err, tc.expectedErr)
			stored, getErr := f.carts.GetByID(context.Background(), c.ID)
			require.NoError(t, getErr)
			assert.Empty(t, stored.Products)
		})
	}
}

func Test_Carts_UpdateProductQuantity(t *testing.T) {
	testCases := []struct {
		name          string
		quantity      int
		expectedLines int
		expectedQty   int
	}{
		{name: "sets quantity", quantity: 4, expectedLines: 1, expectedQty: 4},
		{name: "zero removes the line", quantity: 0, expectedLines: 0},
		{name: "negative removes the line", quantity: -3, expectedLines: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newCartFixture(t)
			p := seedProduct(t, f.catalog, "W-001", 5, 9.99)
			c := f.newCart(t)
			_, err := f.carts.AddProduct(context.Background(), c.ID, p.ID, 2)
			require.NoError(t, err)

			// when
			updated, err := f.carts.UpdateProductQuantity(context.Background(), c.ID, p.ID, tc.quantity)

			// then
			require.NoError(t, err)
			require.Len(t, updated.Products, tc.expectedLines)
			for _, l := range updated.Products {
				assert.Equal(t, tc.expectedQty, l.Quantity)
				assert.GreaterOrEqual(t, l.Quantity, 1)
			}
		})
	}
}

func Test_Carts_UpdateProductQuantity_missingLine(t *testing.T) {
	// given
	f := newCartFixture(t)
	c := f.newCart(t)

	// when
	_, err := f.carts.UpdateProductQuantity(context.Background(), c.ID, "1", 3)

	// then
	assert.ErrorIs(t, err, serrors.ErrLineNotFound)
}

func Test_Carts_RemoveProduct(t *testing.T) {
	// given
	f := newCartFixture(t)
	a := seedProduct(t, f.catalog, "A-1", 5, 1)
	b := seedProduct(t, f.catalog, "B-1", 5, 1)
	c := f.newCart(t)
	_, err := f.carts.AddProduct(context.Background(), c.ID, a.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddProduct(context.Background(), c.ID, b.ID, 1)
	require.NoError(t, err)

	// when
	updated, err := f.carts.RemoveProduct(context.Background(), c.ID, a.ID)
	require.NoError(t, err)
	_, missingErr := f.carts.RemoveProduct(context.Background(), c.ID, a.ID)

	// then
	assert.Equal(t, []model.LineItem{{ProductID: b.ID, Quantity: 1}}, updated.Products)
	assert.ErrorIs(t, missingErr, serrors.ErrLineNotFound)
}

func Test_Carts_UpdateCart(t *testing.T) {
	testCases := []struct {
		name          string
		body          string
		expectedErr   error
		expectedLines []model.LineItem
	}{
		{
			name:          "replaces and merges duplicates",
			body:          `[{"product":"1","quantity":2},{"product":2,"quantity":"1"},{"product":"1","quantity":3}]`,
			expectedLines: []model.LineItem{{ProductID: "1", Quantity: 5}, {ProductID: "2", Quantity: 1}},
		},
		{
			name:          "empty list clears",
			body:          `[]`,
			expectedLines: []model.LineItem{},
		},
		{name: "unknown product rejects everything", body: `[{"product":"1","quantity":1},{"product":"9","quantity":1}]`, expectedErr: serrors.ErrProductNotFound},
		{name: "zero quantity", body: `[{"product":"1","quantity":0}]`, expectedErr: serrors.ErrValidation},
		{name: "fractional quantity", body: `[{"product":"1","quantity":1.5}]`, expectedErr: serrors.ErrValidation},
		{name: "missing product", body: `[{"quantity":1}]`, expectedErr: serrors.ErrValidation},
		{name: "missing quantity", body: `[{"product":"1"}]`, expectedErr: serrors.ErrValidation},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newCartFixture(t)
			seedProduct(t, f.catalog, "A-1", 5, 1)
			seedProduct(t, f.catalog, "B-1", 5, 1)
			c := f.newCart(t)
			_, err := f.carts.AddProduct(context.Background(), c.ID, "2", 4)
			require.NoError(t, err)

			// when
			updated, err := f.carts.UpdateCart(context.Background(), c.ID, lines(t, tc.body))

			// then
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				stored, getErr := f.carts.GetByID(context.Background(), c.ID)
				require.NoError(t, getErr)
				assert.Equal(t, []model.LineItem{{ProductID: "2", Quantity: 4}}, stored.Products)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedLines, updated.Products)
		})
	}
}

func Test_Carts_ClearCart_and_UpdateStatus(t *testing.T) {
	// given
	f := newCartFixture(t)
	p := seedProduct(t, f.catalog, "W-001", 5, 9.99)
	c := f.newCart(t)
	_, err := f.carts.AddProduct(context.Background(), c.ID, p.ID, 2)
	require.NoError(t, err)

	// when
	cleared, err := f.carts.ClearCart(context.Background(), c.ID)
	require.NoError(t, err)
	completed, err := f.carts.UpdateStatus(context.Background(), c.ID, model.CartStatusCompleted)
	require.NoError(t, err)
	_, statusErr := f.carts.UpdateStatus(context.Background(), c.ID, "shipped")

	// then
	assert.Empty(t, cleared.Products)
	assert.Equal(t, model.CartStatusCompleted, completed.Status)
	assert.ErrorIs(t, statusErr, serrors.ErrValidation)
	assert.False(t, completed.LastModified.Before(c.LastModified))
}

func Test_Carts_GetWithProducts(t *testing.T) {
	// given
	f := newCartFixture(t)
	a := seedProduct(t, f.catalog, "A-1", 5, 2.5)
	b := seedProduct(t, f.catalog, "B-1", 5, 10)
	gone := seedProduct(t, f.catalog, "C-1", 5, 1)
	c := f.newCart(t)
	for _, id := range []string{a.ID, b.ID, gone.ID} {
		_, err := f.carts.AddProduct(context.Background(), c.ID, id, 2)
		require.NoError(t, err)
	}
	_, err := f.catalog.Update(context.Background(), b.ID, ProductInput{Status: NewField(false)})
	require.NoError(t, err)
	_, err = f.catalog.Delete(context.Background(), gone.ID)
	require.NoError(t, err)

	// when
	view, err := f.carts.GetWithProducts(context.Background(), c.ID)

	// then
	require.NoError(t, err)
	require.Len(t, view.Products, 1)
	assert.Equal(t, a.ID, view.Products[0].Product.ID)
	assert.Equal(t, 1, view.ProductCount)
	assert.Equal(t, 2, view.TotalItems)
	assert.True(t, decimal.NewFromInt(5).Equal(view.Total), view.Total.String())
	stored, err := f.carts.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Products, 3, "resolution does not rewrite the cart")
}

func Test_Carts_Purchase_conservesStock(t *testing.T) {
	// given
	f := newCartFixture(t)
	a := seedProduct(t, f.catalog, "A-1", 5, 9.99)
	b := seedProduct(t, f.catalog, "B-1", 3, 1.5)
	c := f.newCart(t)
	_, err := f.carts.AddProduct(context.Background(), c.ID, a.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddProduct(context.Background(), c.ID, b.ID, 3)
	require.NoError(t, err)
	before := f.notifier.count()

	// when
	summary, err := f.carts.Purchase(context.Background(), c.ID)

	// then
	require.NoError(t, err)
	assert.Equal(t, c.ID, summary.CartID)
	assert.Equal(t, 5, summary.TotalItems)
	assert.True(t, decimal.RequireFromString("24.48").Equal(summary.Total), summary.Total.String())
	require.Len(t, summary.Lines, 2)
	assert.Equal(t, "Widget", summary.Lines[0].Title)

	storedA, err := f.catalog.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	storedB, err := f.catalog.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, storedA.Stock)
	assert.Equal(t, 0, storedB.Stock)

	cart, err := f.carts.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Products)
	assert.Equal(t, before+1, f.notifier.count())
}

func Test_Carts_Purchase_insufficientStock(t *testing.T) {
	// given
	f := newCartFixture(t)
	a := seedProduct(t, f.catalog, "A-1", 1, 9.99)
	b := seedProduct(t, f.catalog, "B-1", 10, 1)
	inactive := seedProduct(t, f.catalog, "C-1", 10, 1)
	c := f.newCart(t)
	_, err := f.carts.AddProduct(context.Background(), c.ID, a.ID, 3)
	require.NoError(t, err)
	_, err = f.carts.AddProduct(context.Background(), c.ID, b.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddProduct(context.Background(), c.ID, inactive.ID, 1)
	require.NoError(t, err)
	_, err = f.catalog.Update(context.Background(), inactive.ID, ProductInput{Status: NewField(false)})
	require.NoError(t, err)
	before := f.notifier.count()

	// when
	_, err = f.carts.Purchase(context.Background(), c.ID)

	// then
	var stockErr *serrors.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, []serrors.StockShortage{
		{ProductID: a.ID, Requested: 3, Available: 1},
		{ProductID: inactive.ID, Requested: 1, Available: 0},
	}, stockErr.Lines)
	assert.Contains(t, err.Error(), "Available: 1, Requested: 3")

	storedA, _ := f.catalog.GetByID(context.Background(), a.ID)
	storedB, _ := f.catalog.GetByID(context.Background(), b.ID)
	assert.Equal(t, 1, storedA.Stock)
	assert.Equal(t, 10, storedB.Stock)
	cart, _ := f.carts.GetByID(context.Background(), c.ID)
	assert.Len(t, cart.Products, 3)
	assert.Equal(t, before, f.notifier.count())
}

func Test_Carts_Purchase_emptyCart(t *testing.T) {
	// given
	f := newCartFixture(t)
	c := f.newCart(t)

	// when
	_, err := f.carts.Purchase(context.Background(), c.ID)
	_, missingErr := f.carts.Purchase(context.Background(), "99")

	// then
	assert.ErrorIs(t, err, serrors.ErrValidation)
	assert.ErrorIs(t, missingErr, serrors.ErrCartNotFound)
}

func Test_Carts_Purchase_publishesOrderPlaced(t *testing.T) {
	// given
	s := newFileStore(t)
	catalog := NewCatalog(s, nil, testLimits, discardLogger())
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.OrderPlacedEvent) bool {
		return e.TotalItems == 2 && len(e.Lines) == 1 && e.Lines[0].Quantity == 2
	})).Return(errors.New("broker unavailable")).Once()
	carts := NewCarts(s, s, nil, publisher, discardLogger())
	p := seedProduct(t, catalog, "W-001", 5, 9.99)
	c, err := carts.Create(context.Background())
	require.NoError(t, err)
	_, err = carts.AddProduct(context.Background(), c.ID, p.ID, 2)
	require.NoError(t, err)

	// when
	summary, err := carts.Purchase(context.Background(), c.ID)

	// then
	require.NoError(t, err, "a publish failure does not fail the purchase")
	assert.Equal(t, 2, summary.TotalItems)
	publisher.AssertExpectations(t)
}

// partialStore fails every decrement after applying the first line.
type partialStore struct {
	store.Store
}

func (s partialStore) DecrementStock(ctx context.Context, changes []model.StockChange) error {
	if err := s.Store.DecrementStock(ctx, changes[:1]); err != nil {
		return err
	}
	return &serrors.PartialDecrementError{
		Applied: changes[:1],
		Failed:  changes[1],
		Err:     errors.New("write conflict"),
	}
}

func Test_Carts_Purchase_partialDecrement(t *testing.T) {
	// given
	base := newFileStore(t)
	s := partialStore{Store: base}
	n := &countingNotifier{}
	catalog := NewCatalog(s, n, testLimits, discardLogger())
	carts := NewCarts(s, s, n, nil, discardLogger())
	a := seedProduct(t, catalog, "A-1", 5, 1)
	b := seedProduct(t, catalog, "B-1", 5, 1)
	c, err := carts.Create(context.Background())
	require.NoError(t, err)
	_, err = carts.AddProduct(context.Background(), c.ID, a.ID, 2)
	require.NoError(t, err)
	_, err = carts.AddProduct(context.Background(), c.ID, b.ID, 2)
	require.NoError(t, err)
	before := n.count()

	// when
	_, err = carts.Purchase(context.Background(), c.ID)

	// then
	assert.ErrorIs(t, err, serrors.ErrPartialCheckout)
	assert.Equal(t, before+1, n.count(), "the applied part is still announced")
	storedA, _ := catalog.GetByID(context.Background(), a.ID)
	assert.Equal(t, 3, storedA.Stock)
	cart, _ := carts.GetByID(context.Background(), c.ID)
	assert.Equal(t, []model.LineItem{{ProductID: b.ID, Quantity: 2}}, cart.Products, "only the unsold line is kept for a retry")
}

// failingStore rejects every decrement without touching stock.
type failingStore struct {
	store.Store
}

func (failingStore) DecrementStock(context.Context, []model.StockChange) error {
	return errors.New("disk full")
}

func Test_Carts_Purchase_restoresLinesOnFailure(t *testing.T) {
	// given
	base := newFileStore(t)
	s := failingStore{Store: base}
	catalog := NewCatalog(s, nil, testLimits, discardLogger())
	carts := NewCarts(s, s, nil, nil, discardLogger())
	a := seedProduct(t, catalog, "A-1", 5, 1)
	c, err := carts.Create(context.Background())
	require.NoError(t, err)
	_, err = carts.AddProduct(context.Background(), c.ID, a.ID, 2)
	require.NoError(t, err)

	// when
	_, err = carts.Purchase(context.Background(), c.ID)

	// then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	cart, err := carts.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.LineItem{{ProductID: a.ID, Quantity: 2}}, cart.Products)
}

func Test_Carts_Purchase_concurrentOnOneCart(t *testing.T) {
	// given
	f := newCartFixture(t)
	a := seedProduct(t, f.catalog, "A-1", 10, 1)
	c := f.newCart(t)
	_, err := f.carts.AddProduct(context.Background(), c.ID, a.ID, 2)
	require.NoError(t, err)

	// when
	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.carts.Purchase(context.Background(), c.ID)
		}()
	}
	wg.Wait()

	// then
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, serrors.ErrValidation, "a late purchase sees an empty cart")
	}
	assert.Equal(t, 1, succeeded)
	stored, err := f.catalog.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, stored.Stock)
}
