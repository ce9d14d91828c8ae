package payment

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"paygate/internal/payment/domain"
)

// URLs are the customer-facing destinations the orchestrator redirects to.
// "{order_id}" in a template is replaced with the store order id.
type URLs struct {
	// CallbackBase is this service's public callback root, e.g.
	// https://pay.example.com/api/v1/callback.
	CallbackBase string
	// OrderReceived is the store's thank-you page.
	OrderReceived string
	// CheckoutPay is the store's pay-for-order page; declines land here with
	// status and reason query parameters.
	CheckoutPay string
}

// Hosted checkout presentation in the browser: a full page redirect or the
// lightbox overlay.
const (
	CheckoutRedirect = "redirect"
	CheckoutModal    = "modal"
)

// Config is fixed at construction.
type Config struct {
	MerchantID     string
	MerchantName   string
	Capture        bool
	Flow           domain.Flow
	CheckoutMode   string
	OrderPrefix    string
	DisplayControl domain.DisplayControl
	SaveCards      bool
	// ClaimTTL bounds how long an in-flight payment blocks a new attempt on
	// the same order after a crash.
	ClaimTTL time.Duration
	URLs     URLs
	// CheckoutJSURL and SessionJSURL are handed to the browser.
	CheckoutJSURL string
	SessionJSURL  string
}

// Validate checks the config before an orchestrator is built.
func (c Config) Validate() error {
	var errs []error
	if c.MerchantID == "" {
		errs = append(errs, errors.New("merchant id is required"))
	}
	if err := c.Flow.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.CheckoutMode {
	case "", CheckoutRedirect, CheckoutModal:
	default:
		errs = append(errs, fmt.Errorf("unknown hosted checkout mode %q", c.CheckoutMode))
	}
	for name, raw := range map[string]string{
		"callback base":  c.URLs.CallbackBase,
		"order received": c.URLs.OrderReceived,
		"checkout pay":   c.URLs.CheckoutPay,
	} {
		if _, err := url.ParseRequestURI(strings.ReplaceAll(raw, "{order_id}", "0")); err != nil {
			errs = append(errs, fmt.Errorf("%s url: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func expand(tpl, orderID string) string {
	return strings.ReplaceAll(tpl, "{order_id}", url.PathEscape(orderID))
}

func withQuery(raw string, params url.Values) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (u URLs) orderReceived(orderID string) string {
	return expand(u.OrderReceived, orderID)
}

// checkoutPay is the pay page with the outcome status (declined, error) and reason.
func (u URLs) checkoutPay(orderID, status, reason string) string {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if reason != "" {
		params.Set("reason", reason)
	}
	return withQuery(expand(u.CheckoutPay, orderID), params)
}

// callbackReturn is the gateway-facing return URL. gatewayOrderID is the
// prefixed id; OnReturn strips the prefix again.
func (u URLs) callbackReturn(gatewayOrderID string, params url.Values) string {
	all := url.Values{"order_id": {gatewayOrderID}}
	for k, vs := range params {
		all[k] = vs
	}
	return withQuery(strings.TrimRight(u.CallbackBase, "/")+"/return", all)
}
