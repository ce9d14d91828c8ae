package payment

import (
	"errors"
	"fmt"
)

// ValidationError is a local precondition or integrity check failure. Its
// message is shown to the customer or merchant as is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

var (
	ErrResultIndicatorMismatch = &ValidationError{Reason: "Result indicator mismatch"}
	ErrThreeDSIDMismatch       = &ValidationError{Reason: "3DSecureId mismatch"}
	ErrCurrencyMismatch        = &ValidationError{Reason: "Currency mismatch"}
	ErrAmountMismatch          = &ValidationError{Reason: "Amount mismatch"}
	ErrAlreadyCaptured         = &ValidationError{Reason: "Order already captured"}
	ErrWrongOrderStatus        = &ValidationError{Reason: "Wrong order status, must be 'processing'"}
	ErrNotPaid                 = &ValidationError{Reason: "Order is not paid"}
	ErrInvalidRefundAmount     = &ValidationError{Reason: "Invalid refund amount"}
	ErrWrongFlow               = &ValidationError{Reason: "Operation not available for the configured checkout method"}
	ErrUnexpectedCallback      = &ValidationError{Reason: "unexpected condition"}
	ErrPaymentInProgress       = &ValidationError{Reason: "Payment already in progress"}
	ErrMissingPaRes            = &ValidationError{Reason: "Missing PaRes"}
)

// DeclinedError is a negative business answer from the gateway.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string { return e.Reason }

const (
	reasonNotProceed    = "gatewayRecommendation not proceed"
	reasonNotSuccessful = "Payment not successful"
)

// IntegrityError reports a gateway response missing fields the orchestrator
// depends on.
type IntegrityError struct {
	Op     string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsDeclined reports whether err is a DeclinedError.
func IsDeclined(err error) bool {
	var d *DeclinedError
	return errors.As(err, &d)
}
