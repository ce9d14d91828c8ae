package domain

import (
	"errors"
	"fmt"
)

// Session is a gateway payment session. Version is empty for flows that
// never update the session client-side.
type Session struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// Checkout selects how card details reach the gateway.
type Checkout int

const (
	LegacyHostedCheckout Checkout = iota
	HostedCheckout
	HostedSession
)

func (c Checkout) String() string {
	switch c {
	case LegacyHostedCheckout:
		return "legacy_hosted_checkout"
	case HostedCheckout:
		return "hosted_checkout"
	case HostedSession:
		return "hosted_session"
	}
	return fmt.Sprintf("checkout(%d)", int(c))
}

// ParseCheckout maps a configuration value to a Checkout.
func ParseCheckout(s string) (Checkout, error) {
	switch s {
	case "legacyhostedcheckout", "legacy_hosted_checkout":
		return LegacyHostedCheckout, nil
	case "hostedcheckout", "hosted_checkout", "":
		return HostedCheckout, nil
	case "hostedsession", "hosted_session":
		return HostedSession, nil
	}
	return 0, fmt.Errorf("unknown checkout method %q", s)
}

// ThreeDSMode selects the 3-D Secure protocol handled server-side.
type ThreeDSMode int

const (
	ThreeDSNone ThreeDSMode = iota
	ThreeDSV1
	ThreeDSV2
)

func (m ThreeDSMode) String() string {
	switch m {
	case ThreeDSNone:
		return "none"
	case ThreeDSV1:
		return "3ds1"
	case ThreeDSV2:
		return "3ds2"
	}
	return fmt.Sprintf("threeds(%d)", int(m))
}

// ParseThreeDSMode maps a configuration value to a ThreeDSMode.
func ParseThreeDSMode(s string) (ThreeDSMode, error) {
	switch s {
	case "", "none", "no":
		return ThreeDSNone, nil
	case "1", "v1", "3ds1", "yes":
		return ThreeDSV1, nil
	case "2", "v2", "3ds2":
		return ThreeDSV2, nil
	}
	return 0, fmt.Errorf("unknown 3DS mode %q", s)
}

var ErrUnsupportedFlow = errors.New("unsupported checkout flow")

// Flow is the configured checkout method and 3DS protocol.
type Flow struct {
	Checkout Checkout
	ThreeDS  ThreeDSMode
}

// Validate rejects combinations the orchestrator cannot drive. Hosted checkout
// runs 3DS on the gateway page, so server-side 3DS only pairs with hosted session.
func (f Flow) Validate() error {
	switch f.Checkout {
	case LegacyHostedCheckout, HostedCheckout:
		if f.ThreeDS != ThreeDSNone {
			return fmt.Errorf("%w: %s with %s", ErrUnsupportedFlow, f.Checkout, f.ThreeDS)
		}
		return nil
	case HostedSession:
		switch f.ThreeDS {
		case ThreeDSNone, ThreeDSV1, ThreeDSV2:
			return nil
		}
	}
	return fmt.Errorf("%w: %s with %s", ErrUnsupportedFlow, f.Checkout, f.ThreeDS)
}

func (f Flow) String() string {
	if f.ThreeDS == ThreeDSNone {
		return f.Checkout.String()
	}
	return f.Checkout.String() + "_" + f.ThreeDS.String()
}

// ThreeDSecure is the authentication evidence attached to a payment. It is
// either *LegacyAuthentication or *EMVAuthentication; nil means none.
type ThreeDSecure interface {
	threeDSecure()
}

// LegacyAuthentication carries the outcome of a 3DS v1 PARes check.
type LegacyAuthentication struct {
	ID                  string `json:"-"`
	ACSEci              string `json:"acsEci,omitempty"`
	AuthenticationToken string `json:"authenticationToken,omitempty"`
	PaResStatus         string `json:"paResStatus,omitempty"`
	VeResEnrolled       string `json:"veResEnrolled,omitempty"`
	XID                 string `json:"xid,omitempty"`
}

// EMVAuthentication references a 3DS2 authentication the gateway ran client-side.
type EMVAuthentication struct {
	TransactionID string `json:"transactionId"`
}

func (*LegacyAuthentication) threeDSecure() {}
func (*EMVAuthentication) threeDSecure() {}
