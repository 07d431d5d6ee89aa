package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/onestopshop/shop-backend/internal/aws"
	"github.com/onestopshop/shop-backend/internal/orders"
)

// Processor handles payment-confirmed messages and walks orders through
// fulfillment: paid -> processing -> shipped.
type Processor struct {
	orderStore orders.Store
	metrics    *aws.Metrics
}

// NewProcessor creates a fulfillment processor. metrics may be nil.
func NewProcessor(store orders.Store, metrics *aws.Metrics) *Processor {
	return &Processor{
		orderStore: store,
		metrics:    metrics,
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Printf("worker error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg PaymentMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received order=%s checkout=%s receipt=%s corr=%s",
		msg.OrderID, msg.CheckoutRequestID, msg.MpesaReceiptNumber, msg.CorrelationID)

	order, err := p.orderStore.Get(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order: %w", err)
	}
	if order == nil {
		// Should never happen — DLQ if it does
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}

	// Move paid -> processing (idempotent).
	err = p.orderStore.UpdateStatus(ctx, msg.OrderID, orders.StatusPaid, orders.StatusProcessing)
	if err == orders.ErrStatusMismatch {
		// Already fulfilled or a competing worker:
		// processing/shipped/delivered -> duplicate delivery, swallow.
		// pending/failed -> the event does not match the order, fail to DLQ.
		o2, _ := p.orderStore.Get(ctx, msg.OrderID)
		switch o2.Status {
		case orders.StatusProcessing, orders.StatusShipped, orders.StatusDelivered:
			log.Printf("[worker] duplicate fulfillment event for order=%s status=%s", msg.OrderID, o2.Status)
			return nil
		default:
			return fmt.Errorf("unexpected status for order=%s: %s", msg.OrderID, o2.Status)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to update status to processing: %w", err)
	}

	// Hand the order to the warehouse. For now that is a log line; the
	// shipment request itself goes out through a separate channel.
	log.Printf("[worker] preparing shipment for order=%s receipt=%s", msg.OrderID, msg.MpesaReceiptNumber)

	err = p.orderStore.UpdateStatus(ctx, msg.OrderID, orders.StatusProcessing, orders.StatusShipped)
	if err != nil {
		return fmt.Errorf("failed to update status to shipped: %w", err)
	}

	if p.metrics != nil {
		if merr := p.metrics.Count(ctx, "OrdersFulfilled", 1, map[string]string{"Status": orders.StatusShipped}); merr != nil {
			// metrics are best effort
			log.Printf("[worker] metric publish failed: %v", merr)
		}
	}

	log.Printf("[worker] fulfilled order=%s", msg.OrderID)
	return nil
}
