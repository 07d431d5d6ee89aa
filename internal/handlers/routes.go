package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/onestopshop/shop-backend/internal/aws"
	"github.com/onestopshop/shop-backend/internal/catalog"
	"github.com/onestopshop/shop-backend/internal/idempotency"
	"github.com/onestopshop/shop-backend/internal/orders"
	"github.com/onestopshop/shop-backend/internal/payments"
	"github.com/onestopshop/shop-backend/internal/validation"
)

// TokenSource probes provider authentication; nil when running simulated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config groups dependencies for the API handlers.
type Config struct {
	Store    orders.Store
	Provider payments.Provider
	Catalog  *catalog.Catalog

	// DynamoOrders and Idempotency enable the transactional idempotent
	// order-creation path; both nil in in-memory mode.
	DynamoOrders     *orders.DynamoStore
	Idempotency      *idempotency.Store
	IdempotencyTable string
	TTLWindow        time.Duration

	// Publisher feeds the fulfillment queue after reconciliation; may be nil.
	Publisher *aws.Publisher

	TokenSource TokenSource
	Environment string
}

// RegisterRoutes wires all API routes onto the engine.
func RegisterRoutes(r *gin.Engine, cfg Config) {
	v := validation.New()

	initiator := payments.NewInitiator(cfg.Store, cfg.Provider)
	var events payments.EventPublisher
	if cfg.Publisher != nil {
		events = cfg.Publisher
	}
	reconciler := payments.NewReconciler(cfg.Store, events)
	statusQuery := payments.NewStatusQuery(cfg.Store)

	api := r.Group("/api")

	registerHealthRoutes(api, cfg)
	registerProductRoutes(api, cfg.Catalog)
	registerOrderRoutes(api, cfg, v)
	registerMpesaRoutes(api, cfg, v, initiator, reconciler, statusQuery)
}

func registerHealthRoutes(api *gin.RouterGroup, cfg Config) {
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":           "OK",
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
			"mpesaEnvironment": cfg.Environment,
		})
	})
}
