package domain

import (
	"paygate/internal/common/money"
)

// OrderStatus is the store-side order lifecycle state.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusOnHold     OrderStatus = "on-hold"
	StatusCompleted  OrderStatus = "completed"
	StatusFailed     OrderStatus = "failed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

// Order metadata keys managed by the orchestrator.
const (
	MetaSuccessIndicator = "success_indicator"
	MetaSessionID        = "session_id"
	MetaSessionVersion   = "session_version"
	MetaTxnID            = "txn_id"
	MetaOrderCaptured    = "order_captured"
	MetaOrderPaid        = "order_paid"
	MetaSaveCard         = "save_card"
	MetaThreeDSID        = "three_ds_id"
	MetaAuthTxnID        = "auth_txn_id"
	MetaPaymentClaim     = "payment_claim"
)

// Metadata flag values. Unset and FlagOff both read as false.
const (
	FlagOn  = "1"
	FlagOff = "0"
)

// Address is a postal address as the store keeps it.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone,omitempty"`
}

// Metadata is the order's key/value bag.
type Metadata map[string]string

// Flag reports whether a boolean metadata key is set.
func (m Metadata) Flag(key string) bool {
	v := m[key]
	return v == FlagOn || v == "true" || v == "yes"
}

// Order is a snapshot of a store order. Version changes on every write and
// backs the store's compare-and-set operations.
type Order struct {
	ID            string      `json:"id"`
	CustomerID    string      `json:"customer_id,omitempty"`
	Email         string      `json:"email"`
	Total         string      `json:"total"`
	Currency      string      `json:"currency"`
	Status        OrderStatus `json:"status"`
	Billing       Address     `json:"billing"`
	Shipping      Address     `json:"shipping"`
	Metadata      Metadata    `json:"metadata"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Version       int64       `json:"version"`
}

// Amount parses the formatted total in the order currency.
func (o *Order) Amount() (money.Money, error) {
	return money.Parse(o.Total, money.Currency(o.Currency))
}

// Paid reports whether the order_paid latch is set.
func (o *Order) Paid() bool {
	return o.Metadata.Flag(MetaOrderPaid)
}

// Captured reports whether the order_captured latch is set.
func (o *Order) Captured() bool {
	return o.Metadata.Flag(MetaOrderCaptured)
}

// Meta returns a metadata value, tolerating a nil bag.
func (o *Order) Meta(key string) string {
	if o.Metadata == nil {
		return ""
	}
	return o.Metadata[key]
}

// Clone returns a deep copy so callers never share the metadata map.
func (o *Order) Clone() *Order {
	c := *o
	c.Metadata = make(Metadata, len(o.Metadata))
	for k, v := range o.Metadata {
		c.Metadata[k] = v
	}
	return &c
}
