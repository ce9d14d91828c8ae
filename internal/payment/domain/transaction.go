package domain

import (
	"github.com/shopspring/decimal"
)

// Result is the gateway's overall verdict on an API operation.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
	ResultPending Result = "PENDING"
	ResultError   Result = "ERROR"
	ResultUnknown Result = "UNKNOWN"
)

// GatewayOrderStatus is the gateway-side order state.
type GatewayOrderStatus string

const (
	GatewayCaptured   GatewayOrderStatus = "CAPTURED"
	GatewayAuthorized GatewayOrderStatus = "AUTHORIZED"
)

// GatewayRecommendation is the 3DS verdict on whether to continue.
type GatewayRecommendation string

const (
	RecommendProceed      GatewayRecommendation = "PROCEED"
	RecommendDoNotProceed GatewayRecommendation = "DO_NOT_PROCEED"
)

// Transaction is a transaction as reported by the gateway. Read-only.
type Transaction struct {
	ID                string          `json:"id"`
	AuthorizationCode string          `json:"authorizationCode,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	Type              string          `json:"type,omitempty"`
}

// GatewayOrder is the gateway's authoritative view of an order.
type GatewayOrder struct {
	ID           string             `json:"id"`
	Amount       decimal.Decimal    `json:"amount"`
	Currency     string             `json:"currency"`
	Status       GatewayOrderStatus `json:"status"`
	Result       Result             `json:"result,omitempty"`
	Transactions []TransactionEntry `json:"transaction,omitempty"`
}

// TransactionEntry is one element of a retrieved order's transaction list.
type TransactionEntry struct {
	Result      Result      `json:"result"`
	Transaction Transaction `json:"transaction"`
}

// PaymentResult is the response to a pay, authorize, capture or refund call.
type PaymentResult struct {
	Result      Result       `json:"result"`
	GatewayCode string       `json:"gatewayCode,omitempty"`
	Order       GatewayOrder `json:"order"`
	Transaction Transaction  `json:"transaction"`
}

// AuthenticationRedirect is the ACS form the cardholder must be posted to.
type AuthenticationRedirect struct {
	ACSUrl string `json:"acsUrl"`
	PaReq  string `json:"paReq"`
}

// EnrollmentResult is the response to a 3DS v1 enrollment check.
type EnrollmentResult struct {
	ThreeDSecureID string                  `json:"3DSecureId"`
	Recommendation GatewayRecommendation   `json:"gatewayRecommendation"`
	Redirect       *AuthenticationRedirect `json:"authenticationRedirect,omitempty"`
}

// ACSResult is the response to submitting the cardholder's PARes.
type ACSResult struct {
	ThreeDSecureID string                `json:"3DSecureId"`
	Recommendation GatewayRecommendation `json:"gatewayRecommendation"`
	Authentication LegacyAuthentication  `json:"3DSecure"`
}

// CheckoutSession is the response to creating a hosted checkout session.
type CheckoutSession struct {
	Session          Session `json:"session"`
	SuccessIndicator string  `json:"successIndicator"`
}

// CardToken is the gateway's tokenized card.
type CardToken struct {
	Token       string `json:"token"`
	Brand       string `json:"brand"`
	Number      string `json:"number"`
	Expiry      string `json:"expiry"`
	FundingType string `json:"fundingMethod,omitempty"`
}

// SavedCard is a reusable payment instrument bound to a customer.
type SavedCard struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customer_id"`
	Token       string `json:"-"`
	Brand       string `json:"brand"`
	Last4       string `json:"last4"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
}
