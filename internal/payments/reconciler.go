package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/onestopshop/shop-backend/internal/aws"
	"github.com/onestopshop/shop-backend/internal/mpesa"
	"github.com/onestopshop/shop-backend/internal/orders"
)

// Callback-side validation failures. These are logged and the provider is
// still acknowledged with success; the order, if findable, is left unchanged.
var (
	ErrMalformedCallback      = errors.New("malformed callback: missing Body.stkCallback")
	ErrUnknownOrder           = errors.New("no order matches callback checkout request id")
	ErrIncompleteCallbackData = errors.New("success callback missing required metadata items")
)

// EventPublisher pushes a payment-confirmed event to the fulfillment queue.
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, ev aws.PaymentEvent) error
}

// ReconcileResult reports what a callback did to its order.
type ReconcileResult struct {
	OrderID string
	Status  string
	// AlreadyProcessed is set when the order was terminal before this
	// delivery; the callback was treated as a re-delivery no-op.
	AlreadyProcessed bool
}

// Reconciler applies asynchronous provider callbacks to orders.
type Reconciler struct {
	store   orders.Store
	events  EventPublisher // optional; nil disables fulfillment events
	nowFunc func() time.Time
}

// NewReconciler wires a reconciler. events may be nil.
func NewReconciler(store orders.Store, events EventPublisher) *Reconciler {
	return &Reconciler{
		store:   store,
		events:  events,
		nowFunc: time.Now,
	}
}

// Reconcile validates a callback payload and updates the matching order.
// Re-delivery of a callback for an already-terminal order is a no-op: the
// provider retries until it sees a 2xx, so the same payload can arrive more
// than once.
func (r *Reconciler) Reconcile(ctx context.Context, env mpesa.CallbackEnvelope) (*ReconcileResult, error) {
	if env.Body == nil || env.Body.STKCallback == nil {
		return nil, ErrMalformedCallback
	}
	cb := env.Body.STKCallback

	order, err := r.store.GetByCheckoutID(ctx, cb.CheckoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("lookup order by checkout id: %w", err)
	}
	if order == nil {
		return nil, ErrUnknownOrder
	}

	if orders.Terminal(order.Status) {
		log.Printf("callback re-delivery for order=%s status=%s, ignoring", order.OrderID, order.Status)
		return &ReconcileResult{OrderID: order.OrderID, Status: order.Status, AlreadyProcessed: true}, nil
	}

	if cb.ResultCode != 0 {
		if err := r.store.MarkFailed(ctx, order.OrderID, cb.ResultDesc, cb.ResultCode); err != nil {
			if errors.Is(err, orders.ErrStatusMismatch) {
				// lost the race with a concurrent delivery
				return &ReconcileResult{OrderID: order.OrderID, Status: order.Status, AlreadyProcessed: true}, nil
			}
			return nil, fmt.Errorf("mark failed: %w", err)
		}
		log.Printf("payment failed for order=%s: %s (code %d)", order.OrderID, cb.ResultDesc, cb.ResultCode)
		return &ReconcileResult{OrderID: order.OrderID, Status: orders.StatusFailed}, nil
	}

	details, err := paymentDetailsFromMetadata(cb.CallbackMetadata)
	if err != nil {
		return nil, err
	}

	paidAt := r.nowFunc()
	if err := r.store.MarkPaid(ctx, order.OrderID, *details, paidAt); err != nil {
		if errors.Is(err, orders.ErrStatusMismatch) {
			return &ReconcileResult{OrderID: order.OrderID, Status: order.Status, AlreadyProcessed: true}, nil
		}
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	log.Printf("payment successful for order=%s: %s", order.OrderID, details.MpesaReceiptNumber)

	if r.events != nil {
		ev := aws.PaymentEvent{
			OrderID:            order.OrderID,
			CheckoutRequestID:  cb.CheckoutRequestID,
			MpesaReceiptNumber: details.MpesaReceiptNumber,
		}
		// best effort: the provider must still be acknowledged even if the
		// fulfillment queue is down
		if err := r.events.PublishPaymentEvent(ctx, ev); err != nil {
			log.Printf("publish payment event for order=%s failed: %v", order.OrderID, err)
		}
	}

	return &ReconcileResult{OrderID: order.OrderID, Status: orders.StatusPaid}, nil
}

// paymentDetailsFromMetadata extracts the four required items by name.
func paymentDetailsFromMetadata(meta *mpesa.CallbackMetadata) (*orders.PaymentDetails, error) {
	amountVal, ok := meta.ItemValue("Amount")
	if !ok {
		return nil, ErrIncompleteCallbackData
	}
	receiptVal, ok := meta.ItemValue("MpesaReceiptNumber")
	if !ok {
		return nil, ErrIncompleteCallbackData
	}
	dateVal, ok := meta.ItemValue("TransactionDate")
	if !ok {
		return nil, ErrIncompleteCallbackData
	}
	phoneVal, ok := meta.ItemValue("PhoneNumber")
	if !ok {
		return nil, ErrIncompleteCallbackData
	}

	amount, ok := toFloat(amountVal)
	if !ok {
		return nil, ErrIncompleteCallbackData
	}
	return &orders.PaymentDetails{
		Amount:             amount,
		MpesaReceiptNumber: toString(receiptVal),
		TransactionDate:    toString(dateVal),
		PhoneNumber:        toString(phoneVal),
	}, nil
}

// The provider sends numeric items as JSON numbers and the rest as strings;
// normalize both forms.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
