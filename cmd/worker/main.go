package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/onestopshop/shop-backend/internal/aws"
	"github.com/onestopshop/shop-backend/internal/env"
	"github.com/onestopshop/shop-backend/internal/orders"
)

func main() {
	env.Load(".env")

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	ordersTable := os.Getenv("ORDERS_TABLE")
	if ordersTable == "" {
		log.Fatal("ORDERS_TABLE is required")
	}

	metrics := aws.NewMetrics(clients.CloudWatch, "OneStopShop/Fulfillment")
	p := NewProcessor(orders.NewDynamoStore(clients.DynamoDB, ordersTable), metrics)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"order_id":"local-order-1","checkout_request_id":"ws_CO_local_1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(ctx, event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
