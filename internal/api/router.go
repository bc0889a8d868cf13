package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/api/handler"
	"github.com/maltlabs/malt-bridge/internal/api/middleware"
	"github.com/maltlabs/malt-bridge/internal/api/spec"
	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/repository"
)

// Router wires the HTTP surface of the bridge.
type Router struct {
	logger   *zap.Logger
	settler  handler.Settler
	registry *domain.AssetRegistry
	repo     *repository.Settlements
	db       *pgxpool.Pool
	redis    redis.Cmdable

	publicRPS      int
	adminRPS       int
	allowedOrigins []string
}

// NewRouter builds the router. repo, db and redis may be nil when the bridge
// runs without durable storage; the admin surface is then not mounted.
func NewRouter(logger *zap.Logger, settler handler.Settler, registry *domain.AssetRegistry, repo *repository.Settlements, db *pgxpool.Pool, rdb redis.Cmdable, publicRPS, adminRPS int, allowedOrigins []string) *Router {
	return &Router{
		logger:         logger,
		settler:        settler,
		registry:       registry,
		repo:           repo,
		db:             db,
		redis:          rdb,
		publicRPS:      publicRPS,
		adminRPS:       adminRPS,
		allowedOrigins: allowedOrigins,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(chiMiddleware.RealIP)
	if len(api.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: api.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	purchaseHandler := handler.NewPurchaseHandler(api.settler, api.logger)

	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Get("/api/health", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/api/docs/*", httpSwagger.Handler(httpSwagger.URL("/api/openapi.yaml")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.publicRPS))

		r.Get("/api/assets", api.listAssets)
		r.Post("/api/purchase", purchaseHandler.Purchase)
		r.Post("/api/purchase/token", purchaseHandler.PurchaseToken)
	})

	if api.repo != nil {
		adminHandler := handler.NewAdminHandler(api.repo)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware)
			r.Use(middleware.RequireRole("admin"))
			r.Use(middleware.AuthRateLimiter(api.adminRPS))

			r.Get("/api/admin/settlements", adminHandler.ListSettlements)
			r.Get("/api/admin/settlements/{reference}", adminHandler.GetSettlement)
		})
	}

	return r
}

func (api *Router) listAssets(w http.ResponseWriter, r *http.Request) {
	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"assets": api.registry.Symbols(),
	})
}
