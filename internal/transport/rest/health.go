package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/abgdnv/storefront/pkg/web"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthStatus struct {
	Status string `json:"status"`
}

// HealthCheck answers 200 while the store responds and 503 otherwise.
func HealthCheck(store Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "Health check failed", "error", err)
			web.RespondJSON(w, logger, http.StatusServiceUnavailable, healthStatus{Status: "unavailable"})
			return
		}
		web.RespondJSON(w, logger, http.StatusOK, healthStatus{Status: "ok"})
	}
}
