package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrAlreadyPaid   = errors.New("order already paid")
	ErrTransport     = errors.New("gateway transport error")
)

// GatewayError is a well-formed error response from the gateway, such as an
// invalid request or a rejected operation. It is a business outcome, not a
// transport failure.
type GatewayError struct {
	Operation   string
	StatusCode  int
	Cause       string
	Explanation string
}

func (e *GatewayError) Error() string {
	if e.Explanation != "" {
		return fmt.Sprintf("gateway %s: %s: %s", e.Operation, e.Cause, e.Explanation)
	}
	return fmt.Sprintf("gateway %s: %s", e.Operation, e.Cause)
}

// Settlement is the single atomic write that completes a payment: set the paid
// latch, record the captured flag and transaction id, move the order to
// processing, attach the audit note and release the in-flight claim.
type Settlement struct {
	TransactionID string
	Captured      bool
	Note          string
}
