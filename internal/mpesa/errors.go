package mpesa

import (
	"errors"
	"fmt"
)

// ErrInvalidPhone means the payer phone could not be normalized to the
// canonical 254XXXXXXXXX form.
var ErrInvalidPhone = errors.New("invalid phone number: expected 12 digits in 254 format")

// ErrProviderUnavailable wraps transport-level failures (connection refused,
// timeout). Safe for the caller to retry manually.
var ErrProviderUnavailable = errors.New("mpesa provider unavailable")

// AuthError means the token endpoint refused or failed the credential
// exchange. Not retried automatically.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa auth failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("mpesa auth failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RejectedError is a synchronous decline from the STK push endpoint
// (ResponseCode != "0" or an error body). Terminal for the attempt; the order
// is left pending and un-linked.
type RejectedError struct {
	Code        string
	Description string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("stk push rejected (code %s): %s", e.Code, e.Description)
}
