package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps orders in process memory. It backs the in-memory server
// mode and the unit tests. All mutations happen under one mutex so a callback
// write and a concurrent status read never interleave mid-update.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*Order
	byCheckout map[string]string // checkout_request_id -> order_id
	nowFunc    func() time.Time
}

// NewMemoryStore returns an empty in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       map[string]*Order{},
		byCheckout: map[string]string{},
		nowFunc:    time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[o.OrderID]; ok {
		return fmt.Errorf("order %s already exists", o.OrderID)
	}
	now := s.nowFunc()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	cp := o
	s.byID[o.OrderID] = &cp
	if o.CheckoutRequestID != "" {
		s.byCheckout[o.CheckoutRequestID] = o.OrderID
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, orderID string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) GetByCheckoutID(ctx context.Context, checkoutID string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCheckout[checkoutID]
	if !ok {
		return nil, nil
	}
	o, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Order, 0, len(s.byID))
	for _, o := range s.byID {
		result = append(result, *o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *MemoryStore) AttachCheckout(ctx context.Context, orderID, checkoutID, merchantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.Status != StatusPending {
		return ErrStatusMismatch
	}
	o.CheckoutRequestID = checkoutID
	o.MerchantRequestID = merchantID
	o.UpdatedAt = s.nowFunc()
	s.byCheckout[checkoutID] = orderID
	return nil
}

func (s *MemoryStore) MarkPaid(ctx context.Context, orderID string, details PaymentDetails, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.Status != StatusPending {
		return ErrStatusMismatch
	}
	d := details
	o.Status = StatusPaid
	o.PaymentDetails = &d
	o.PaidAt = &paidAt
	o.UpdatedAt = s.nowFunc()
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, orderID, reason string, resultCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.Status != StatusPending {
		return ErrStatusMismatch
	}
	o.Status = StatusFailed
	o.FailureReason = reason
	o.FailureCode = resultCode
	o.UpdatedAt = s.nowFunc()
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, orderID, expected, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.Status != expected {
		return ErrStatusMismatch
	}
	o.Status = next
	o.UpdatedAt = s.nowFunc()
	return nil
}
