package payment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownIntent    = errors.New("unknown payment intent")
	ErrUnknownProvider  = errors.New("unknown payment provider")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	// errNotFound is internal to the store lookups.
	errNotFound = errors.New("payment intent not found")
)

type GatewayUnavailableError struct {
	Provider string
	Err      error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("payment gateway %s unavailable: %v", e.Provider, e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error { return e.Err }
