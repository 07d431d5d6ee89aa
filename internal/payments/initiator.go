package payments

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/onestopshop/shop-backend/internal/mpesa"
	"github.com/onestopshop/shop-backend/internal/orders"
)

// ErrOrderNotFound means the account reference on a payment request matched
// no order.
var ErrOrderNotFound = errors.New("order not found")

// Provider abstracts the STK push client so the initiator can run against the
// real Daraja client or the simulator.
type Provider interface {
	InitiateSTKPush(ctx context.Context, phone string, amount int64, accountRef string) (*mpesa.STKPushResponse, error)
}

// InitiateResult is the synchronous outcome of an accepted push request.
// Accepted means "prompt sent", never "paid".
type InitiateResult struct {
	OrderID           string `json:"orderId"`
	CheckoutRequestID string `json:"checkoutRequestID"`
	MerchantRequestID string `json:"merchantRequestID"`
	CustomerMessage   string `json:"customerMessage,omitempty"`
}

// Initiator drives the push-payment flow: order lookup, provider call,
// checkout id persistence.
type Initiator struct {
	store    orders.Store
	provider Provider
}

// NewInitiator wires an initiator to its collaborators.
func NewInitiator(store orders.Store, provider Provider) *Initiator {
	return &Initiator{store: store, provider: provider}
}

// Initiate submits an STK push for the order identified by orderRef. On
// synchronous acceptance the provider identifiers are attached to the order
// and the order stays pending until the callback arrives.
//
// Error surface: ErrOrderNotFound, mpesa.ErrInvalidPhone, *mpesa.AuthError,
// mpesa.ErrProviderUnavailable, *mpesa.RejectedError. On any of these the
// order is left pending and un-linked.
func (i *Initiator) Initiate(ctx context.Context, orderRef, phone string, amount float64) (*InitiateResult, error) {
	order, err := i.store.Get(ctx, orderRef)
	if err != nil {
		return nil, fmt.Errorf("lookup order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	// whole shillings on the wire
	resp, err := i.provider.InitiateSTKPush(ctx, phone, int64(math.Round(amount)), orderRef)
	if err != nil {
		return nil, err
	}

	if err := i.store.AttachCheckout(ctx, order.OrderID, resp.CheckoutRequestID, resp.MerchantRequestID); err != nil {
		// The provider accepted but we could not persist the correlation key.
		// Surface it; the callback would otherwise be unmatchable.
		return nil, fmt.Errorf("attach checkout ids: %w", err)
	}

	return &InitiateResult{
		OrderID:           order.OrderID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}
