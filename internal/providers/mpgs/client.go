// Package mpgs is the Mastercard Payment Gateway Services REST client.
package mpgs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"paygate/internal/payment/domain"
)

// Observer records gateway call latency.
type Observer interface {
	ObserveGatewayCall(operation string, seconds float64, failed bool)
}

type noopObserver struct{}

func (noopObserver) ObserveGatewayCall(string, float64, bool) {}

// Client calls the gateway REST API with HTTP basic auth as merchant.<id>.
type Client struct {
	baseURL    string
	host       string
	merchantID string
	password   string
	httpClient *http.Client
	observer   Observer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is still traced.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithObserver records call latency.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithBaseURL points the client at a different API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates a gateway client.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}
	host, _ := cfg.Host()
	merchantID, password := cfg.Credentials()

	c := &Client{
		baseURL:    fmt.Sprintf("https://%s/api/rest/%s/merchant/%s", host, APIVersion, url.PathEscape(merchantID)),
		host:       host,
		merchantID: merchantID,
		password:   password,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		observer:   noopObserver{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.httpClient.Transport = otelhttp.NewTransport(base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "mpgs " + r.Method
		}),
	)
	return c, nil
}

// MerchantID is the merchant id the client authenticates as.
func (c *Client) MerchantID() string {
	return c.merchantID
}

// Host is the gateway host.
func (c *Client) Host() string {
	return c.host
}

// CheckoutJSURL is the hosted checkout script.
func (c *Client) CheckoutJSURL() string {
	return CheckoutJSURL(c.host)
}

// SessionJSURL is the hosted session script.
func (c *Client) SessionJSURL() string {
	return SessionJSURL(c.host, c.merchantID)
}

// do sends one request. Network failures, 5xx and unreadable bodies wrap
// domain.ErrTransport; an error envelope becomes *domain.GatewayError.
func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		c.observer.ObserveGatewayCall(operation, time.Since(start).Seconds(), err != nil)
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.SetBasicAuth("merchant."+c.merchantID, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrTransport, operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %v", domain.ErrTransport, operation, err)
	}

	c.logger.Debug("gateway call",
		"operation", operation,
		"method", method,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s: status %d", domain.ErrTransport, operation, resp.StatusCode)
	}

	var envelope errorBody
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", domain.ErrTransport, operation, err)
	}
	if envelope.Result == domain.ResultError || resp.StatusCode >= 400 {
		gwErr := &domain.GatewayError{
			Operation:   operation,
			StatusCode:  resp.StatusCode,
			Cause:       envelope.Error.Cause,
			Explanation: envelope.Error.Explanation,
		}
		if gwErr.Cause == "" {
			gwErr.Cause = http.StatusText(resp.StatusCode)
		}
		c.logger.Warn("gateway error response",
			"operation", operation,
			"status", resp.StatusCode,
			"cause", gwErr.Cause,
			"explanation", gwErr.Explanation,
		)
		return gwErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", domain.ErrTransport, operation, err)
	}
	return nil
}

func orderPath(orderID string) string {
	return "/order/" + url.PathEscape(orderID)
}

func transactionPath(orderID, txnID string) string {
	return orderPath(orderID) + "/transaction/" + url.PathEscape(txnID)
}

// CreateSession creates an empty payment session for the hosted session form.
func (c *Client) CreateSession(ctx context.Context) (domain.Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, "create_session", http.MethodPost, "/session", nil, &resp); err != nil {
		return domain.Session{}, err
	}
	return domain.Session{ID: resp.Session.ID, Version: resp.Session.Version}, nil
}

// CreateCheckoutSession opens a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	body := checkoutSessionBody{
		APIOperation: opCreateCheckoutSession,
		Order:        req.Order,
		Interaction:  req.Interaction,
		Customer:     req.Customer,
		Billing:      req.Billing,
		Shipping:     req.Shipping,
	}

	var resp sessionResponse
	if err := c.do(ctx, "create_checkout_session", http.MethodPost, "/session", body, &resp); err != nil {
		return domain.CheckoutSession{}, err
	}
	return domain.CheckoutSession{
		Session:          domain.Session{ID: resp.Session.ID, Version: resp.Session.Version},
		SuccessIndicator: resp.SuccessIndicator,
	}, nil
}

// UpdateSession attaches order details to a session.
func (c *Client) UpdateSession(ctx context.Context, req domain.UpdateSessionRequest) error {
	body := updateSessionBody{
		Order:    req.Order,
		Customer: req.Customer,
		Billing:  req.Billing,
		Shipping: req.Shipping,
	}
	return c.do(ctx, "update_session", http.MethodPut, "/session/"+url.PathEscape(req.SessionID), body, nil)
}

// RetrieveOrder fetches the gateway's view of an order and its transactions.
func (c *Client) RetrieveOrder(ctx context.Context, orderID string) (domain.GatewayOrder, error) {
	var resp domain.GatewayOrder
	if err := c.do(ctx, "retrieve_order", http.MethodGet, orderPath(orderID), nil, &resp); err != nil {
		return domain.GatewayOrder{}, err
	}
	return resp, nil
}

// Pay authorizes and captures in one step.
func (c *Client) Pay(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	return c.payment(ctx, "pay", opPay, req)
}

// Authorize reserves funds for a later capture.
func (c *Client) Authorize(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	return c.payment(ctx, "authorize", opAuthorize, req)
}

func (c *Client) payment(ctx context.Context, operation string, op apiOperation, req domain.PaymentRequest) (domain.PaymentResult, error) {
	body := paymentBody{
		APIOperation: op,
		Order: paymentOrder{
			Amount:      req.Order.Amount,
			Currency:    req.Order.Currency,
			Description: req.Order.Description,
		},
		Session:       sessionRef{ID: req.Session.ID, Version: req.Session.Version},
		SourceOfFunds: sourceOfFunds{Type: "CARD"},
		Customer:      req.Customer,
		Billing:       req.Billing,
		Shipping:      req.Shipping,
	}

	switch auth := req.ThreeDSecure.(type) {
	case *domain.LegacyAuthentication:
		body.ThreeDSecureID = auth.ID
		body.ThreeDSecure = &legacyAuthentication{
			AcsEci:              auth.ACSEci,
			AuthenticationToken: auth.AuthenticationToken,
			PaResStatus:         auth.PaResStatus,
			VeResEnrolled:       auth.VeResEnrolled,
			XID:                 auth.XID,
		}
	case *domain.EMVAuthentication:
		body.Authentication = &emvAuthentication{TransactionID: auth.TransactionID}
	}

	var resp domain.PaymentResult
	if err := c.do(ctx, operation, http.MethodPut, transactionPath(req.OrderID, req.TransactionID), body, &resp); err != nil {
		return domain.PaymentResult{}, err
	}
	return resp, nil
}

// CaptureTxn captures a previously authorized order.
func (c *Client) CaptureTxn(ctx context.Context, req domain.TransactionRequest) (domain.PaymentResult, error) {
	return c.transaction(ctx, "capture", opCapture, req)
}

// Refund refunds part or all of a captured order.
func (c *Client) Refund(ctx context.Context, req domain.TransactionRequest) (domain.PaymentResult, error) {
	return c.transaction(ctx, "refund", opRefund, req)
}

func (c *Client) transaction(ctx context.Context, operation string, op apiOperation, req domain.TransactionRequest) (domain.PaymentResult, error) {
	body := transactionBody{
		APIOperation: op,
		Transaction:  transactionAmount{Amount: req.Amount, Currency: req.Currency},
	}
	var resp domain.PaymentResult
	if err := c.do(ctx, operation, http.MethodPut, transactionPath(req.OrderID, req.TransactionID), body, &resp); err != nil {
		return domain.PaymentResult{}, err
	}
	return resp, nil
}

// Check3DSEnrollment checks whether the session's card is enrolled in 3DS v1.
func (c *Client) Check3DSEnrollment(ctx context.Context, req domain.EnrollmentRequest) (domain.EnrollmentResult, error) {
	body := enrollmentBody{
		APIOperation: opCheck3DSEnrollment,
		Order: paymentOrder{
			Amount:   req.Order.Amount,
			Currency: req.Order.Currency,
		},
		Session: sessionRef{ID: req.Session.ID},
		ThreeDSecure: enrollmentThreeDSecure{
			AuthenticationRedirect: authenticationRedirectBody{
				ResponseURL:        req.ResponseURL,
				PageGenerationMode: "CUSTOMIZED",
			},
		},
	}

	var resp enrollmentResponse
	if err := c.do(ctx, "check_3ds_enrollment", http.MethodPut, "/3DSecureId/"+url.PathEscape(req.ThreeDSecureID), body, &resp); err != nil {
		return domain.EnrollmentResult{}, err
	}

	res := domain.EnrollmentResult{
		ThreeDSecureID: resp.ThreeDSecureID,
		Recommendation: resp.Response.GatewayRecommendation,
	}
	if custom := resp.ThreeDSecure.AuthenticationRedirect.Customized; custom.ACSUrl != "" {
		res.Redirect = &domain.AuthenticationRedirect{ACSUrl: custom.ACSUrl, PaReq: custom.PaReq}
	}
	return res, nil
}

// Process3DSResult submits the PARes returned by the issuer's ACS.
func (c *Client) Process3DSResult(ctx context.Context, threeDSecureID, paRes string) (domain.ACSResult, error) {
	if paRes == "" {
		return domain.ACSResult{}, errors.New("process ACS result: empty PaRes")
	}

	var body acsResultBody
	body.APIOperation = opProcessACSResult
	body.ThreeDSecure.PaRes = paRes

	var resp acsResultResponse
	if err := c.do(ctx, "process_acs_result", http.MethodPost, "/3DSecureId/"+url.PathEscape(threeDSecureID), body, &resp); err != nil {
		return domain.ACSResult{}, err
	}
	return domain.ACSResult{
		ThreeDSecureID: resp.ThreeDSecureID,
		Recommendation: resp.Response.GatewayRecommendation,
		Authentication: domain.LegacyAuthentication{
			ID:                  threeDSecureID,
			ACSEci:              resp.ThreeDSecure.AcsEci,
			AuthenticationToken: resp.ThreeDSecure.AuthenticationToken,
			PaResStatus:         resp.ThreeDSecure.PaResStatus,
			VeResEnrolled:       resp.ThreeDSecure.VeResEnrolled,
			XID:                 resp.ThreeDSecure.XID,
		},
	}, nil
}

// CreateCardToken stores the session's card as a reusable token.
func (c *Client) CreateCardToken(ctx context.Context, sessionID string) (domain.CardToken, error) {
	body := tokenBody{
		Session:       sessionRef{ID: sessionID},
		SourceOfFunds: sourceOfFunds{Type: "CARD"},
	}

	var resp tokenResponse
	if err := c.do(ctx, "create_card_token", http.MethodPost, "/token", body, &resp); err != nil {
		return domain.CardToken{}, err
	}
	card := resp.SourceOfFunds.Provided.Card
	return domain.CardToken{
		Token:       resp.Token,
		Brand:       card.Brand,
		Number:      card.Number,
		Expiry:      card.Expiry,
		FundingType: card.FundingMethod,
	}, nil
}
