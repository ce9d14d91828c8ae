package domain

import (
	"fmt"
	"strings"
)

// AddressPayload is the gateway's address shape. Nil pointers are omitted
// from the request.
type AddressPayload struct {
	Street        *string `json:"street,omitempty"`
	Street2       *string `json:"street2,omitempty"`
	City          *string `json:"city,omitempty"`
	PostcodeZip   *string `json:"postcodeZip,omitempty"`
	Country       string  `json:"country,omitempty"`
	StateProvince *string `json:"stateProvince,omitempty"`
}

// Billing is the billing block of a request.
type Billing struct {
	Address AddressPayload `json:"address"`
}

// Contact names the shipping recipient.
type Contact struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

// Shipping is the shipping block of a request.
type Shipping struct {
	Address AddressPayload `json:"address"`
	Contact Contact        `json:"contact"`
}

// Customer is the customer block of a request.
type Customer struct {
	Email     string  `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

// OrderPayload is the order block of a request. Amount is already formatted
// to the currency's minor units.
type OrderPayload struct {
	ID          string `json:"id,omitempty"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

// DisplayMode is a hosted checkout display-control value.
type DisplayMode string

const (
	DisplayHide      DisplayMode = "HIDE"
	DisplayShow      DisplayMode = "SHOW"
	DisplayMandatory DisplayMode = "MANDATORY"
	DisplayOptional  DisplayMode = "OPTIONAL"
	DisplayReadOnly  DisplayMode = "READ_ONLY"
)

// DisplayControl sets which fields the hosted page renders.
type DisplayControl struct {
	CustomerEmail  DisplayMode `json:"customerEmail,omitempty"`
	BillingAddress DisplayMode `json:"billingAddress,omitempty"`
	PaymentTerms   DisplayMode `json:"paymentTerms,omitempty"`
	Shipping       DisplayMode `json:"shipping,omitempty"`
	OrderSummary   DisplayMode `json:"orderSummary,omitempty"`
	Confirmation   DisplayMode `json:"paymentConfirmation,omitempty"`
}

// DefaultDisplayControl hides every configurable field.
func DefaultDisplayControl() DisplayControl {
	return DisplayControl{}.WithDefaults()
}

// WithDefaults hides every configurable field left unset.
func (d DisplayControl) WithDefaults() DisplayControl {
	for _, f := range []*DisplayMode{&d.CustomerEmail, &d.BillingAddress, &d.PaymentTerms, &d.Shipping} {
		if *f == "" {
			*f = DisplayHide
		}
	}
	return d
}

// ParseDisplayMode maps a configuration value to a DisplayMode. An empty
// value stays empty.
func ParseDisplayMode(s string) (DisplayMode, error) {
	m := DisplayMode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case "", DisplayHide, DisplayShow, DisplayMandatory, DisplayOptional, DisplayReadOnly:
		return m, nil
	}
	return "", fmt.Errorf("unknown display mode %q", s)
}

// Operation is the interaction operation the hosted page performs.
type Operation string

const (
	OperationPurchase  Operation = "PURCHASE"
	OperationAuthorize Operation = "AUTHORIZE"
)

// Merchant is the merchant block of an interaction.
type Merchant struct {
	Name string `json:"name"`
}

// Interaction configures the hosted checkout page.
type Interaction struct {
	Operation      Operation      `json:"operation"`
	Merchant       Merchant       `json:"merchant"`
	ReturnURL      string         `json:"returnUrl,omitempty"`
	DisplayControl DisplayControl `json:"displayControl"`
}

// CheckoutSessionRequest creates a hosted checkout session.
type CheckoutSessionRequest struct {
	Order       OrderPayload
	Interaction Interaction
	Customer    *Customer
	Billing     *Billing
	Shipping    *Shipping
}

// UpdateSessionRequest attaches order details to an existing session.
type UpdateSessionRequest struct {
	SessionID string
	Order     OrderPayload
	Customer  *Customer
	Billing   *Billing
	Shipping  *Shipping
}

// PaymentRequest is a pay or authorize call.
type PaymentRequest struct {
	OrderID       string
	TransactionID string
	Order         OrderPayload
	ThreeDSecure  ThreeDSecure
	Session       Session
	Customer      *Customer
	Billing       *Billing
	Shipping      *Shipping
}

// TransactionRequest is a capture or refund call against a settled order.
type TransactionRequest struct {
	OrderID       string
	TransactionID string
	Amount        string
	Currency      string
}

// EnrollmentRequest is a 3DS v1 enrollment check.
type EnrollmentRequest struct {
	ThreeDSecureID string
	Order          OrderPayload
	Session        Session
	ResponseURL    string
}
