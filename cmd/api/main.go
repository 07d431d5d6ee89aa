package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/onestopshop/shop-backend/internal/aws"
	"github.com/onestopshop/shop-backend/internal/catalog"
	"github.com/onestopshop/shop-backend/internal/env"
	"github.com/onestopshop/shop-backend/internal/handlers"
	"github.com/onestopshop/shop-backend/internal/idempotency"
	"github.com/onestopshop/shop-backend/internal/mpesa"
	"github.com/onestopshop/shop-backend/internal/orders"
)

func setupRouter(cfg handlers.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handlers.RegisterRoutes(r, cfg)

	return r
}

func buildConfig(ctx context.Context) handlers.Config {
	mpesaCfg := mpesa.ConfigFromEnv()

	cfg := handlers.Config{
		Catalog:     catalog.Default(),
		Environment: mpesaCfg.Environment,
		TTLWindow:   48 * time.Hour,
	}

	// provider: real Daraja client unless simulation is requested
	if os.Getenv("MPESA_SIMULATE") == "true" {
		cfg.Provider = mpesa.NewSimulator()
	} else {
		client := mpesa.NewClient(mpesaCfg)
		cfg.Provider = client
		cfg.TokenSource = client
	}

	// order store: DynamoDB when a table is configured, in-memory otherwise
	ordersTable := os.Getenv("ORDERS_TABLE")
	if ordersTable == "" {
		log.Printf("ORDERS_TABLE not set, using in-memory order store")
		cfg.Store = orders.NewMemoryStore()
		return cfg
	}

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	dynamoStore := orders.NewDynamoStore(clients.DynamoDB, ordersTable)
	cfg.Store = dynamoStore
	cfg.DynamoOrders = dynamoStore
	cfg.IdempotencyTable = os.Getenv("IDEMPOTENCY_TABLE")
	if cfg.IdempotencyTable != "" {
		cfg.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.TTLWindow)
	}
	if queueURL := os.Getenv("FULFILLMENT_QUEUE_URL"); queueURL != "" {
		cfg.Publisher = aws.NewPublisher(clients.SQS, queueURL)
	}
	return cfg
}

func main() {
	env.Load(".env")

	cfg := buildConfig(context.Background())

	r := setupRouter(cfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
		log.Printf("running local server on %s (mpesa environment: %s)", addr, cfg.Environment)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		// the adapter handles proxying; use adapter.ProxyWithContext for proper context propagation
		return adapter.ProxyWithContext(ctx, req)
	})
}
