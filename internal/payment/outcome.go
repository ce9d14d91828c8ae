package payment

import (
	"paygate/internal/payment/domain"
)

// Kind classifies the result of driving a payment attempt.
type Kind int

const (
	// Settled: the order is marked paid.
	Settled Kind = iota + 1
	// Declined: the gateway said no.
	Declined
	// Failed: a local validation, integrity or transport problem.
	Failed
	// Challenge: the cardholder must complete a 3DS v1 ACS challenge; the
	// attempt resumes on a later return callback.
	Challenge
)

func (k Kind) String() string {
	switch k {
	case Settled:
		return "settled"
	case Declined:
		return "declined"
	case Failed:
		return "failed"
	case Challenge:
		return "challenge"
	}
	return "unknown"
}

// ACSChallenge is the form the browser must post to the issuer's ACS.
type ACSChallenge struct {
	ACSUrl  string
	PaReq   string
	TermURL string
}

// Outcome is what a payment entry point hands back to the transport layer.
type Outcome struct {
	Kind        Kind
	OrderID     string
	Reason      string
	Err         error
	Transaction domain.Transaction
	Captured    bool
	// Replayed is set when the order was already paid and nothing was submitted.
	Replayed  bool
	Challenge *ACSChallenge
	// RedirectURL is where the customer's browser goes next. Empty for Challenge.
	RedirectURL string
	// CardError reports a failed card save; the payment itself still stands.
	CardError error
}
