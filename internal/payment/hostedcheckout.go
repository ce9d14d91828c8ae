package payment

import (
	"context"
	"crypto/subtle"
	"fmt"

	"paygate/internal/payment/domain"
)

// CheckoutSessionInfo is returned to the browser to open the hosted page.
type CheckoutSessionInfo struct {
	SessionID      string `json:"session_id"`
	SessionVersion string `json:"session_version,omitempty"`
	OrderID        string `json:"order_id"`
	MerchantID     string `json:"merchant_id"`
	CheckoutJSURL  string `json:"checkout_js_url"`
	// Mode tells checkout.js to redirect or open the lightbox.
	Mode string `json:"mode"`
}

// OnCreateCheckoutSessionRequest opens a hosted checkout session for the order
// and stores the success indicator that the return callback must echo back.
func (o *Orchestrator) OnCreateCheckoutSessionRequest(ctx context.Context, orderID string) (CheckoutSessionInfo, error) {
	if o.cfg.Flow.Checkout == domain.HostedSession {
		return CheckoutSessionInfo{}, ErrWrongFlow
	}

	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		return CheckoutSessionInfo{}, err
	}
	if order.Paid() {
		return CheckoutSessionInfo{}, fmt.Errorf("order %s: %w", order.ID, domain.ErrAlreadyPaid)
	}

	payloads, err := o.builder.Build(order)
	if err != nil {
		return CheckoutSessionInfo{}, &ValidationError{Reason: err.Error()}
	}

	returnURL := o.returnURL(order, nil)
	interaction := o.builder.Interaction(o.cfg.Capture, returnURL)
	if o.cfg.Flow.Checkout == domain.LegacyHostedCheckout {
		interaction = o.builder.LegacyInteraction(o.cfg.Capture, returnURL)
	}

	cs, err := o.gateway.CreateCheckoutSession(ctx, domain.CheckoutSessionRequest{
		Order:       payloads.Order,
		Interaction: interaction,
		Customer:    payloads.Customer,
		Billing:     payloads.Billing,
		Shipping:    payloads.Shipping,
	})
	if err != nil {
		return CheckoutSessionInfo{}, fmt.Errorf("creating checkout session: %w", err)
	}
	if cs.SuccessIndicator == "" || cs.Session.ID == "" {
		return CheckoutSessionInfo{}, &IntegrityError{Op: "create checkout session", Detail: "missing session id or success indicator"}
	}

	if err := o.store.SetMeta(ctx, order.ID, map[string]string{
		domain.MetaSuccessIndicator: cs.SuccessIndicator,
		domain.MetaSessionID:        cs.Session.ID,
	}); err != nil {
		return CheckoutSessionInfo{}, fmt.Errorf("storing checkout session: %w", err)
	}

	o.log(ctx).Info("checkout session created", "order_id", order.ID, "session_id", cs.Session.ID)

	return CheckoutSessionInfo{
		SessionID:      cs.Session.ID,
		SessionVersion: cs.Session.Version,
		OrderID:        o.prefixer.Add(order.ID),
		MerchantID:     o.cfg.MerchantID,
		CheckoutJSURL:  o.cfg.CheckoutJSURL,
		Mode:           o.cfg.CheckoutMode,
	}, nil
}

// completeHostedCheckout verifies the result indicator, then settles against
// the order the gateway reports.
func (o *Orchestrator) completeHostedCheckout(ctx context.Context, order *domain.Order, resultIndicator string) Outcome {
	if order.Paid() {
		return o.replay(ctx, order)
	}

	stored := order.Meta(domain.MetaSuccessIndicator)
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(resultIndicator)) != 1 {
		return o.fail(ctx, order, ErrResultIndicatorMismatch)
	}

	remote, err := o.gateway.RetrieveOrder(ctx, o.prefixer.Add(order.ID))
	if err != nil {
		return o.fail(ctx, order, err)
	}
	if remote.Result != domain.ResultSuccess {
		return o.decline(ctx, order, reasonNotSuccessful)
	}
	if len(remote.Transactions) == 0 {
		return o.fail(ctx, order, &ValidationError{Reason: "Gateway order has no transactions"})
	}

	return o.settle(ctx, order, remote, remote.Transactions[0].Transaction)
}
