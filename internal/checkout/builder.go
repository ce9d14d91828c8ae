// Package checkout maps store orders onto the request blocks the gateway
// expects: customer, billing, shipping, order and interaction.
package checkout

import (
	"errors"
	"fmt"
	"html"
	"unicode/utf8"

	"paygate/internal/payment/domain"
	"paygate/internal/payment/txnid"
)

var ErrUnknownCountryCode = errors.New("unknown country code")

// Field length limits imposed by the gateway.
const (
	maxStreet   = 100
	maxCity     = 100
	maxPostcode = 10
	maxState    = 20
	maxName     = 50
)

const orderDescription = "Ordered goods"

// Safe returns nil for an empty value and otherwise value cut to at most maxLen
// characters. Safe(*Safe(s, n), n) equals Safe(s, n).
func Safe(value string, maxLen int) *string {
	if value == "" {
		return nil
	}
	if utf8.RuneCountInString(value) > maxLen {
		value = string([]rune(value)[:maxLen])
	}
	return &value
}

// Builder holds the merchant settings that shape every payload.
type Builder struct {
	prefixer     txnid.Prefixer
	merchantName string
	display      domain.DisplayControl
}

// NewBuilder returns a Builder. Display fields left unset are hidden.
func NewBuilder(prefixer txnid.Prefixer, merchantName string, display domain.DisplayControl) *Builder {
	return &Builder{prefixer: prefixer, merchantName: merchantName, display: display.WithDefaults()}
}

func address(a domain.Address) (domain.AddressPayload, error) {
	p := domain.AddressPayload{
		Street:        Safe(a.Address1, maxStreet),
		Street2:       Safe(a.Address2, maxStreet),
		City:          Safe(a.City, maxCity),
		PostcodeZip:   Safe(a.Postcode, maxPostcode),
		StateProvince: Safe(a.State, maxState),
	}
	if a.Country != "" {
		country, err := ToISO3(a.Country)
		if err != nil {
			return domain.AddressPayload{}, err
		}
		p.Country = country
	}
	return p, nil
}

// Billing builds the billing block.
func (b *Builder) Billing(o *domain.Order) (*domain.Billing, error) {
	addr, err := address(o.Billing)
	if err != nil {
		return nil, fmt.Errorf("billing address: %w", err)
	}
	return &domain.Billing{Address: addr}, nil
}

// IsVirtual reports whether the order carries no usable shipping address.
// It only means no shipping details were collected, not that the goods are digital.
func IsVirtual(o *domain.Order) bool {
	return o.Shipping.Address1 == "" || o.Shipping.FirstName == ""
}

// Shipping builds the shipping block, or nil for virtual orders.
func (b *Builder) Shipping(o *domain.Order) (*domain.Shipping, error) {
	if IsVirtual(o) {
		return nil, nil
	}
	addr, err := address(o.Shipping)
	if err != nil {
		return nil, fmt.Errorf("shipping address: %w", err)
	}
	return &domain.Shipping{
		Address: addr,
		Contact: domain.Contact{
			FirstName: Safe(o.Shipping.FirstName, maxName),
			LastName:  Safe(o.Shipping.LastName, maxName),
		},
	}, nil
}

// Customer builds the customer block from the billing contact.
func (b *Builder) Customer(o *domain.Order) *domain.Customer {
	return &domain.Customer{
		Email:     o.Email,
		FirstName: Safe(o.Billing.FirstName, maxName),
		LastName:  Safe(o.Billing.LastName, maxName),
	}
}

// Order builds the order block with the namespaced id and the total formatted
// to the currency's minor units.
func (b *Builder) Order(o *domain.Order) (domain.OrderPayload, error) {
	amount, err := o.Amount()
	if err != nil {
		return domain.OrderPayload{}, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	return domain.OrderPayload{
		ID:          b.prefixer.Add(o.ID),
		Amount:      amount.StringFixed(),
		Currency:    o.Currency,
		Description: orderDescription,
	}, nil
}

// Interaction builds the hosted page configuration.
func (b *Builder) Interaction(capture bool, returnURL string) domain.Interaction {
	op := domain.OperationAuthorize
	if capture {
		op = domain.OperationPurchase
	}
	display := b.display
	display.OrderSummary = ""
	display.Confirmation = ""
	return domain.Interaction{
		Operation:      op,
		Merchant:       domain.Merchant{Name: html.EscapeString(b.merchantName)},
		ReturnURL:      returnURL,
		DisplayControl: display,
	}
}

// LegacyInteraction additionally hides the order summary and payment
// confirmation pages of the legacy hosted checkout.
func (b *Builder) LegacyInteraction(capture bool, returnURL string) domain.Interaction {
	in := b.Interaction(capture, returnURL)
	in.DisplayControl.OrderSummary = domain.DisplayHide
	in.DisplayControl.Confirmation = domain.DisplayHide
	return in
}

// Payloads bundles the blocks shared by session and payment requests.
type Payloads struct {
	Order    domain.OrderPayload
	Customer *domain.Customer
	Billing  *domain.Billing
	Shipping *domain.Shipping
}

// Build assembles every order-derived block.
func (b *Builder) Build(o *domain.Order) (Payloads, error) {
	order, err := b.Order(o)
	if err != nil {
		return Payloads{}, err
	}
	billing, err := b.Billing(o)
	if err != nil {
		return Payloads{}, err
	}
	shipping, err := b.Shipping(o)
	if err != nil {
		return Payloads{}, err
	}
	return Payloads{
		Order:    order,
		Customer: b.Customer(o),
		Billing:  billing,
		Shipping: shipping,
	}, nil
}
