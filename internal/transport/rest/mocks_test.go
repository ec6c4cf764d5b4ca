package rest

import (
	"context"
	"io"
	"log/slog"

	"github.com/abgdnv/storefront/internal/model"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/stretchr/testify/mock"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) List(ctx context.Context, opts service.ListOptions) (*service.ListResult, error) {
	args := m.Called(ctx, opts)
	var result *service.ListResult
	if args.Get(0) != nil {
		result = args.Get(0).(*service.ListResult)
	}
	return result, args.Error(1)
}

func (m *MockProductService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	return productOrNil(args.Get(0)), args.Error(1)
}

func (m *MockProductService) Create(ctx context.Context, in service.ProductInput) (*model.Product, error) {
	args := m.Called(ctx, in)
	return productOrNil(args.Get(0)), args.Error(1)
}

func (m *MockProductService) Update(ctx context.Context, id string, in service.ProductInput) (*model.Product, error) {
	args := m.Called(ctx, id, in)
	return productOrNil(args.Get(0)), args.Error(1)
}

func (m *MockProductService) Delete(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	return productOrNil(args.Get(0)), args.Error(1)
}

func productOrNil(v any) *model.Product {
	if v == nil {
		return nil
	}
	return v.(*model.Product)
}

type MockCartService struct {
	mock.Mock
}

func cartOrNil(v any) *model.Cart {
	if v == nil {
		return nil
	}
	return v.(*model.Cart)
}

func (m *MockCartService) List(ctx context.Context) ([]model.Cart, error) {
	args := m.Called(ctx)
	var carts []model.Cart
	if args.Get(0) != nil {
		carts = args.Get(0).([]model.Cart)
	}
	return carts, args.Error(1)
}

func (m *MockCartService) Create(ctx context.Context) (*model.Cart, error) {
	args := m.Called(ctx)
	return cartOrNil(args.Get(0)), args.Error(1)
}

func (m *MockCartService) GetByID(ctx context.Context, id string) (*model.Cart, error) {
	args := m.Called(ctx, id)
	return cartOrNil(args.Get(0)), args.Error(1)
}

func (m *MockCartService) GetWithProducts(ctx context.Context, id string) (*service.CartView, error) {
	args := m.Called(ctx, id)
	var view *service.CartView
	if args.Get(0) != nil {
		view = args.Get(0).(*service.CartView)
	}
	return view, args.Error(1)
}

func (m *MockCartService) AddProduct(ctx context.Context, cartID, productID string, quantity int) (*model.Cart, error) {
	args := m.Called(ctx, cartID, productID, quantity)
	return cartOrNil(args.Get(0)), args.Error(1)
}

func (m *MockCartService) UpdateProductQuantity(ctx context.Context, cartID, productID string, quantity int) (*model.Cart, error) {
	args := m.Called(ctx, cartID, productID, quantity)
	return cartOrNil(args.Get(0)), args.Error(1)
}

func (m *MockCartService) RemoveProduct(ctx context.Context, cartID, productID string) (*model.Cart, error) {
	args := m.Called(ctx, cartID, productID)
	return cartOrNil(args.Get(0)), args.Error(1)
}

func (m *MockCartService) UpdateCart(ctx context.Context, cartID string, lines []service.LineInput) (*model.Cart, error) {
	args := m.Called(ctx, cartID, lines)
	return cartOrNil(args.Get(0)), args.Error(1)
}

func (m *MockCartService) ClearCart(ctx context.Context, cartID string) (*model.Cart, error) {
	args := m.Called(ctx, cartID)
	return cartOrNil(args.Get(0)), args.Error(1)
}

func (m *MockCartService) UpdateStatus(ctx context.Context, cartID, status string) (*model.Cart, error) {
	args := m.Called(ctx, cartID, status)
	return cartOrNil(args.Get(0)), args.Error(1)
}

func (m *MockCartService) Purchase(ctx context.Context, cartID string) (*model.OrderSummary, error) {
	args := m.Called(ctx, cartID)
	var summary *model.OrderSummary
	if args.Get(0) != nil {
		summary = args.Get(0).(*model.OrderSummary)
	}
	return summary, args.Error(1)
}
