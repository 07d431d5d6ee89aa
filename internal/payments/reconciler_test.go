package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onestopshop/shop-backend/internal/aws"
	"github.com/onestopshop/shop-backend/internal/mpesa"
	"github.com/onestopshop/shop-backend/internal/orders"
)

type capturedEvents struct {
	events []aws.PaymentEvent
	err    error
}

func (c *capturedEvents) PublishPaymentEvent(ctx context.Context, ev aws.PaymentEvent) error {
	c.events = append(c.events, ev)
	return c.err
}

func pendingOrder(t *testing.T, s orders.Store, orderID, checkoutID string) {
	t.Helper()
	ctx := context.Background()
	if err := s.Create(ctx, orders.Order{OrderID: orderID, Status: orders.StatusPending, Total: 4500}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := s.AttachCheckout(ctx, orderID, checkoutID, "mr-"+orderID); err != nil {
		t.Fatalf("attach checkout: %v", err)
	}
}

func successCallback(checkoutID string) mpesa.CallbackEnvelope {
	return mpesa.CallbackEnvelope{Body: &mpesa.CallbackBody{STKCallback: &mpesa.STKCallback{
		MerchantRequestID: "mr-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &mpesa.CallbackMetadata{Item: []mpesa.CallbackMetadataItem{
			{Name: "Amount", Value: float64(4500)},
			{Name: "MpesaReceiptNumber", Value: "RCPT1"},
			{Name: "TransactionDate", Value: float64(20240101120000)},
			{Name: "PhoneNumber", Value: float64(254712345678)},
		}},
	}}}
}

func TestReconciler_SuccessCallback(t *testing.T) {
	store := orders.NewMemoryStore()
	pendingOrder(t, store, "OSS-1", "ws_CO_1")
	events := &capturedEvents{}

	r := NewReconciler(store, events)
	paidAt := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)
	r.nowFunc = func() time.Time { return paidAt }

	res, err := r.Reconcile(context.Background(), successCallback("ws_CO_1"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Status != orders.StatusPaid || res.AlreadyProcessed {
		t.Fatalf("unexpected result: %+v", res)
	}

	order, _ := store.Get(context.Background(), "OSS-1")
	if order.Status != orders.StatusPaid {
		t.Fatalf("order status = %s", order.Status)
	}
	if order.PaymentDetails == nil || order.PaymentDetails.MpesaReceiptNumber != "RCPT1" {
		t.Fatalf("payment details not recorded: %+v", order.PaymentDetails)
	}
	if order.PaymentDetails.Amount != 4500 {
		t.Fatalf("amount = %v", order.PaymentDetails.Amount)
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(paidAt) {
		t.Fatalf("paidAt = %v", order.PaidAt)
	}

	if len(events.events) != 1 {
		t.Fatalf("expected one fulfillment event, got %d", len(events.events))
	}
	if ev := events.events[0]; ev.OrderID != "OSS-1" || ev.MpesaReceiptNumber != "RCPT1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestReconciler_ReplayIsNoOp(t *testing.T) {
	store := orders.NewMemoryStore()
	pendingOrder(t, store, "OSS-1", "ws_CO_1")
	events := &capturedEvents{}
	r := NewReconciler(store, events)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, successCallback("ws_CO_1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	before, _ := store.Get(ctx, "OSS-1")

	res, err := r.Reconcile(ctx, successCallback("ws_CO_1"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.AlreadyProcessed {
		t.Fatal("replay not flagged as already processed")
	}

	after, _ := store.Get(ctx, "OSS-1")
	if after.Status != before.Status || after.UpdatedAt != before.UpdatedAt {
		t.Fatalf("replay mutated the order: before=%+v after=%+v", before, after)
	}
	if *after.PaymentDetails != *before.PaymentDetails {
		t.Fatalf("replay mutated payment details: before=%+v after=%+v", before.PaymentDetails, after.PaymentDetails)
	}
	if len(events.events) != 1 {
		t.Fatalf("replay published an event: %d", len(events.events))
	}
}

func TestReconciler_FailureCallback(t *testing.T) {
	store := orders.NewMemoryStore()
	pendingOrder(t, store, "OSS-1", "ws_CO_1")
	events := &capturedEvents{}
	r := NewReconciler(store, events)

	env := mpesa.CallbackEnvelope{Body: &mpesa.CallbackBody{STKCallback: &mpesa.STKCallback{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	}}}

	res, err := r.Reconcile(context.Background(), env)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Status != orders.StatusFailed {
		t.Fatalf("status = %s", res.Status)
	}

	order, _ := store.Get(context.Background(), "OSS-1")
	if order.Status != orders.StatusFailed || order.FailureCode != 1032 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.FailureReason != "Request cancelled by user" {
		t.Fatalf("failure reason = %q", order.FailureReason)
	}
	if order.PaymentDetails != nil {
		t.Fatal("failed order must not carry payment details")
	}
	if len(events.events) != 0 {
		t.Fatal("failure must not publish a fulfillment event")
	}
}

func TestReconciler_UnknownCheckoutID(t *testing.T) {
	r := NewReconciler(orders.NewMemoryStore(), nil)

	_, err := r.Reconcile(context.Background(), successCallback("ws_CO_missing"))
	if !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestReconciler_MalformedEnvelope(t *testing.T) {
	r := NewReconciler(orders.NewMemoryStore(), nil)
	ctx := context.Background()

	for _, env := range []mpesa.CallbackEnvelope{
		{},
		{Body: &mpesa.CallbackBody{}},
	} {
		if _, err := r.Reconcile(ctx, env); !errors.Is(err, ErrMalformedCallback) {
			t.Fatalf("expected ErrMalformedCallback, got %v", err)
		}
	}
}

func TestReconciler_IncompleteMetadata(t *testing.T) {
	store := orders.NewMemoryStore()
	pendingOrder(t, store, "OSS-1", "ws_CO_1")
	r := NewReconciler(store, nil)

	env := successCallback("ws_CO_1")
	env.Body.STKCallback.CallbackMetadata = &mpesa.CallbackMetadata{Item: []mpesa.CallbackMetadataItem{
		{Name: "Amount", Value: float64(4500)},
		// receipt, date and phone missing
	}}

	_, err := r.Reconcile(context.Background(), env)
	if !errors.Is(err, ErrIncompleteCallbackData) {
		t.Fatalf("expected ErrIncompleteCallbackData, got %v", err)
	}

	order, _ := store.Get(context.Background(), "OSS-1")
	if order.Status != orders.StatusPending {
		t.Fatalf("incomplete callback must leave the order pending, got %s", order.Status)
	}
}

func TestReconciler_PublishFailureDoesNotFail(t *testing.T) {
	store := orders.NewMemoryStore()
	pendingOrder(t, store, "OSS-1", "ws_CO_1")
	events := &capturedEvents{err: errors.New("queue unavailable")}
	r := NewReconciler(store, events)

	res, err := r.Reconcile(context.Background(), successCallback("ws_CO_1"))
	if err != nil {
		t.Fatalf("reconcile must succeed despite publish failure: %v", err)
	}
	if res.Status != orders.StatusPaid {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestReconciler_StringMetadataValues(t *testing.T) {
	store := orders.NewMemoryStore()
	pendingOrder(t, store, "OSS-1", "ws_CO_1")
	r := NewReconciler(store, nil)

	env := successCallback("ws_CO_1")
	env.Body.STKCallback.CallbackMetadata = &mpesa.CallbackMetadata{Item: []mpesa.CallbackMetadataItem{
		{Name: "Amount", Value: "4500"},
		{Name: "MpesaReceiptNumber", Value: "RCPT1"},
		{Name: "TransactionDate", Value: "20240101120000"},
		{Name: "PhoneNumber", Value: "254712345678"},
	}}

	if _, err := r.Reconcile(context.Background(), env); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	order, _ := store.Get(context.Background(), "OSS-1")
	if order.PaymentDetails.Amount != 4500 || order.PaymentDetails.PhoneNumber != "254712345678" {
		t.Fatalf("unexpected details: %+v", order.PaymentDetails)
	}
}
