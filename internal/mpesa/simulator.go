package mpesa

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Simulator is a deterministic stand-in for the Daraja API: every valid push
// is accepted with a monotonic checkout id and no network traffic. Selected
// with MPESA_SIMULATE=true for local development and used in tests.
type Simulator struct {
	mu  sync.Mutex
	seq int64
}

// NewSimulator returns a simulator starting at sequence zero.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// InitiateSTKPush validates the phone like the real client and fabricates an
// accepted response.
func (s *Simulator) InitiateSTKPush(ctx context.Context, phone string, amount int64, accountRef string) (*STKPushResponse, error) {
	if _, err := NormalizePhone(phone); err != nil {
		return nil, err
	}
	if amount < 1 {
		return nil, &RejectedError{Code: "400.002.02", Description: "Invalid Amount"}
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	return &STKPushResponse{
		MerchantRequestID:   uuid.NewString(),
		CheckoutRequestID:   fmt.Sprintf("ws_CO_%d", seq),
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}
