// Package app wires the storefront services, transports and servers together.
package app

import (
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/notifier"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/internal/store"
	grpcapi "github.com/abgdnv/storefront/internal/transport/grpc"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/internal/transport/ws"
	"github.com/abgdnv/storefront/pkg/auth"
	pkgconfig "github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/abgdnv/storefront/pkg/telemetry"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
)

const (
	healthPath  = "/healthz"
	metricsPath = "/metrics"
)

type Dependencies struct {
	Store     store.Store
	Catalog   service.ProductService
	Carts     service.CartService
	Notifier  *notifier.Notifier
	Hub       *ws.Hub
	Health    *grpcapi.HealthServer
	Verifier  auth.Verifier
	WebSocket pkgconfig.WebSocketConfig
	Logger    *slog.Logger
}

// SetupDependencies builds the services over st. A nil publisher disables event publication.
// The hub and the health server still have to be started with Run.
func SetupDependencies(st store.Store, publisher messaging.Publisher, cfg *config.Config, logger *slog.Logger) *Dependencies {
	hub := ws.NewHub(logger)
	productNotifier := notifier.New(st, hub, publisher, logger)

	var verifier auth.Verifier
	if cfg.Auth.Enabled() {
		verifier = auth.NewStaticTokenVerifier(cfg.Auth.Token)
	} else {
		logger.Warn("Auth token is not configured, mutating routes are open")
	}

	return &Dependencies{
		Store:     st,
		Catalog:   service.NewCatalog(st, productNotifier, cfg.Catalog, logger),
		Carts:     service.NewCarts(st, st, productNotifier, publisher, logger),
		Notifier:  productNotifier,
		Hub:       hub,
		Health:    grpcapi.NewHealthServer(st, cfg.GRPC.HealthInterval, logger),
		Verifier:  verifier,
		WebSocket: cfg.WebSocket,
		Logger:    logger,
	}
}

// SetupHttpHandler initializes the routes and middleware of the storefront.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return server.Instrument(mux, "storefront", healthPath, metricsPath, deps.WebSocket.Path)
}

// wireRoutes sets up the REST, websocket and operational routes.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	var protect rest.Middleware
	if deps.Verifier != nil {
		protect = web.BearerAuth(deps.Verifier, deps.Logger)
	}
	rest.NewProductHandler(deps.Catalog, deps.Logger).RegisterRoutes(mux, protect)
	rest.NewCartHandler(deps.Carts, deps.Logger).RegisterRoutes(mux, protect)

	mux.Handle(deps.WebSocket.Path, ws.NewHandler(deps.Hub, deps.Catalog, deps.Notifier, deps.WebSocket, deps.Logger))
	mux.Get(healthPath, rest.HealthCheck(deps.Store, deps.Logger))
	mux.Handle(metricsPath, telemetry.MetricsHandler())
}

// SetupHttpServer creates and configures an HTTP server for the storefront.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}

// SetupGrpcServer initializes the gRPC server with the health service.
func SetupGrpcServer(deps *Dependencies, reflectionEnabled bool) *grpc.Server {
	return server.NewGRPCServer(deps.Logger, reflectionEnabled, deps.Health.Register)
}
