package payments

import (
	"context"
	"fmt"

	"github.com/onestopshop/shop-backend/internal/orders"
)

// OrderSnapshot is the read model returned to status pollers. It reflects
// whatever the reconciler last wrote, or pending if no callback has arrived.
type OrderSnapshot struct {
	OrderID           string                 `json:"orderId"`
	Status            string                 `json:"status"`
	PaymentDetails    *orders.PaymentDetails `json:"paymentDetails,omitempty"`
	Total             float64                `json:"total"`
	CheckoutRequestID string                 `json:"checkoutRequestID"`
}

// StatusQuery answers payment status lookups by checkout request id.
// Pure read: no provider call is made.
type StatusQuery struct {
	store orders.Store
}

// NewStatusQuery binds the query to an order store.
func NewStatusQuery(store orders.Store) *StatusQuery {
	return &StatusQuery{store: store}
}

// ByCheckoutID returns the current snapshot, or ErrOrderNotFound when no
// order carries the checkout id.
func (q *StatusQuery) ByCheckoutID(ctx context.Context, checkoutID string) (*OrderSnapshot, error) {
	order, err := q.store.GetByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("lookup order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return &OrderSnapshot{
		OrderID:           order.OrderID,
		Status:            order.Status,
		PaymentDetails:    order.PaymentDetails,
		Total:             order.Total,
		CheckoutRequestID: order.CheckoutRequestID,
	}, nil
}
