// Package errors provides the error values shared by the storefront store, services and transports.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abgdnv/storefront/internal/model"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrCartNotFound    = errors.New("cart not found")
	ErrLineNotFound    = errors.New("product is not in the cart")
	ErrDuplicateCode   = errors.New("product code already exists")

	// ErrInsufficientStock matches every *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPartialCheckout matches every *PartialDecrementError.
	ErrPartialCheckout = errors.New("checkout partially applied")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StockShortage describes one cart line whose quantity exceeds the available stock.
type StockShortage struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError lists every offending line of a rejected purchase.
type InsufficientStockError struct {
	Lines []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = fmt.Sprintf("product %s. Available: %d, Requested: %d", l.ProductID, l.Available, l.Requested)
	}
	return "insufficient stock for " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PartialDecrementError reports a stock decrement that stopped halfway. Applied lines stay decremented.
type PartialDecrementError struct {
	Applied []model.StockChange
	Failed  model.StockChange
	Err     error
}

func (e *PartialDecrementError) Error() string {
	return fmt.Sprintf("stock decrement stopped at product %s after %d applied line(s): %v",
		e.Failed.ProductID, len(e.Applied), e.Err)
}

func (e *PartialDecrementError) Is(target error) bool {
	return target == ErrPartialCheckout
}

func (e *PartialDecrementError) Unwrap() error {
	return e.Err
}
