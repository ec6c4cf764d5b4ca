package rest

import (
	"errors"
	"log/slog"
	"net/http"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/model"
	"github.com/abgdnv/storefront/pkg/web"
)

type validationDetails struct {
	Field string `json:"field"`
}

type partialCheckoutDetails struct {
	Applied []model.StockChange `json:"applied"`
	Failed  string              `json:"failed"`
}

// writeServiceError maps a service error to its status and error category.
// Internal failures are logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		validationErr *serrors.ValidationError
		stockErr      *serrors.InsufficientStockError
		partialErr    *serrors.PartialDecrementError
	)
	switch {
	case errors.As(err, &validationErr):
		logger.WarnContext(r.Context(), "Validation failed", "field", validationErr.Field, "error", validationErr.Message)
		web.RespondErrorDetails(w, logger, http.StatusBadRequest, "validation_error", validationErr.Error(),
			validationDetails{Field: validationErr.Field})
	case errors.Is(err, serrors.ErrProductNotFound):
		logger.WarnContext(r.Context(), "Product not found", "error", err)
		web.RespondError(w, logger, http.StatusNotFound, "not_found", "Product not found")
	case errors.Is(err, serrors.ErrCartNotFound):
		logger.WarnContext(r.Context(), "Cart not found", "error", err)
		web.RespondError(w, logger, http.StatusNotFound, "not_found", "Cart not found")
	case errors.Is(err, serrors.ErrLineNotFound):
		logger.WarnContext(r.Context(), "Cart line not found", "error", err)
		web.RespondError(w, logger, http.StatusNotFound, "not_found", "Product is not in the cart")
	case errors.Is(err, serrors.ErrDuplicateCode):
		logger.WarnContext(r.Context(), "Duplicate product code", "error", err)
		web.RespondError(w, logger, http.StatusConflict, "duplicate_code", "Product code already exists")
	case errors.As(err, &stockErr):
		logger.WarnContext(r.Context(), "Insufficient stock", "error", err)
		web.RespondErrorDetails(w, logger, http.StatusBadRequest, "insufficient_stock", stockErr.Error(), stockErr.Lines)
	case errors.As(err, &partialErr):
		logger.ErrorContext(r.Context(), "Checkout partially applied", "error", err)
		web.RespondErrorDetails(w, logger, http.StatusInternalServerError, "partial_checkout",
			"Checkout failed after part of the stock was decremented",
			partialCheckoutDetails{Applied: partialErr.Applied, Failed: partialErr.Failed.ProductID})
	default:
		logger.ErrorContext(r.Context(), "Store operation failed", "error", err)
		web.RespondError(w, logger, http.StatusInternalServerError, "store_error", "Internal server error")
	}
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	logger.WarnContext(r.Context(), "Error decoding request body", "error", err)
	web.RespondError(w, logger, http.StatusBadRequest, "bad_request", "Invalid request body")
}
