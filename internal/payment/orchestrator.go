// Package payment drives an order through a hosted card payment: session
// creation, optional 3-D Secure, pay or authorize, reconciliation against the
// gateway and settlement, plus the merchant's capture and refund follow-ups.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"paygate/internal/checkout"
	"paygate/internal/common/events"
	"paygate/internal/common/middleware"
	"paygate/internal/payment/domain"
	"paygate/internal/payment/txnid"
)

const defaultClaimTTL = 2 * time.Minute

// Orchestrator is the payment state machine. It keeps no state between calls;
// everything that must survive a redirect lives in order metadata.
type Orchestrator struct {
	cfg       Config
	store     OrderStore
	gateway   GatewayClient
	vault     TokenVault
	publisher events.Publisher
	metrics   Metrics
	logger    *slog.Logger
	builder   *checkout.Builder
	prefixer  txnid.Prefixer
	allocator *Allocator
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithTokenVault enables saving cards.
func WithTokenVault(v TokenVault) Option {
	return func(o *Orchestrator) { o.vault = v }
}

// WithPublisher publishes payment events.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics records outcome counters.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator validates cfg and wires the orchestrator.
func NewOrchestrator(cfg Config, store OrderStore, gateway GatewayClient, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payment config: %w", err)
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = defaultClaimTTL
	}
	if cfg.CheckoutMode == "" {
		cfg.CheckoutMode = CheckoutRedirect
	}

	prefixer := txnid.Prefixer{Prefix: cfg.OrderPrefix}
	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		gateway:   gateway,
		metrics:   noopMetrics{},
		logger:    slog.Default(),
		builder:   checkout.NewBuilder(prefixer, cfg.MerchantName, cfg.DisplayControl),
		prefixer:  prefixer,
		allocator: NewAllocator(store, prefixer),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

func (o *Orchestrator) log(ctx context.Context) *slog.Logger {
	if id := middleware.GetCorrelationID(ctx); id != "" {
		return o.logger.With("correlation_id", id)
	}
	return o.logger
}

func (o *Orchestrator) loadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := o.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("loading order %s: %w", orderID, err)
	}
	return order, nil
}

// replay is the outcome for an order that is already paid: nothing is
// submitted and the browser lands where the first completion sent it.
func (o *Orchestrator) replay(ctx context.Context, order *domain.Order) Outcome {
	o.log(ctx).Info("order already paid, skipping submission", "order_id", order.ID)
	return Outcome{
		Kind:        Settled,
		OrderID:     order.ID,
		Replayed:    true,
		Captured:    order.Captured(),
		Transaction: domain.Transaction{ID: order.TransactionID},
		RedirectURL: o.cfg.URLs.orderReceived(order.ID),
	}
}

// decline fails the order with the gateway's reason.
func (o *Orchestrator) decline(ctx context.Context, order *domain.Order, reason string) Outcome {
	o.log(ctx).Warn("payment declined", "order_id", order.ID, "reason", reason)

	if err := o.store.SetStatus(ctx, order.ID, domain.StatusFailed); err != nil {
		o.log(ctx).Error("failed to mark order failed", "order_id", order.ID, "error", err)
	}
	if err := o.store.AddNote(ctx, order.ID, "Mastercard payment declined: "+reason); err != nil {
		o.log(ctx).Error("failed to add order note", "order_id", order.ID, "error", err)
	}

	o.metrics.IncOutcome(o.cfg.Flow.String(), Declined.String())
	o.publish(ctx, events.EventPaymentDeclined, order.ID, events.PaymentRejectedData{OrderID: order.ID, Reason: reason})

	return Outcome{
		Kind:        Declined,
		OrderID:     order.ID,
		Reason:      reason,
		Err:         &DeclinedError{Reason: reason},
		RedirectURL: o.cfg.URLs.checkoutPay(order.ID, "declined", reason),
	}
}

// fail ends the attempt on a local error. Validation failures fail the order;
// transport failures leave its status alone because the gateway may still have
// processed the request.
func (o *Orchestrator) fail(ctx context.Context, order *domain.Order, err error) Outcome {
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		reason := gwErr.Explanation
		if reason == "" {
			reason = gwErr.Cause
		}
		return o.decline(ctx, order, reason)
	}

	reason := err.Error()
	if errors.Is(err, domain.ErrTransport) {
		reason = "Payment gateway unavailable"
		o.log(ctx).Error("gateway transport error", "order_id", order.ID, "error", err)
		if nerr := o.store.AddNote(ctx, order.ID, "Mastercard gateway error: "+err.Error()); nerr != nil {
			o.log(ctx).Error("failed to add order note", "order_id", order.ID, "error", nerr)
		}
	} else {
		o.log(ctx).Warn("payment failed", "order_id", order.ID, "error", err)
		if IsValidation(err) {
			if serr := o.store.SetStatus(ctx, order.ID, domain.StatusFailed); serr != nil {
				o.log(ctx).Error("failed to mark order failed", "order_id", order.ID, "error", serr)
			}
			if nerr := o.store.AddNote(ctx, order.ID, "Mastercard payment failed: "+reason); nerr != nil {
				o.log(ctx).Error("failed to add order note", "order_id", order.ID, "error", nerr)
			}
		}
	}

	o.metrics.IncOutcome(o.cfg.Flow.String(), Failed.String())
	o.publish(ctx, events.EventPaymentFailed, order.ID, events.PaymentRejectedData{OrderID: order.ID, Reason: reason})

	return Outcome{
		Kind:        Failed,
		OrderID:     order.ID,
		Reason:      reason,
		Err:         err,
		RedirectURL: o.cfg.URLs.checkoutPay(order.ID, "error", reason),
	}
}

// reject turns away a callback the order cannot act on. The order is left as
// it was.
func (o *Orchestrator) reject(ctx context.Context, order *domain.Order, err error) Outcome {
	o.log(ctx).Warn("callback rejected", "order_id", order.ID, "error", err)
	o.metrics.IncOutcome(o.cfg.Flow.String(), Failed.String())
	return Outcome{
		Kind:        Failed,
		OrderID:     order.ID,
		Reason:      err.Error(),
		Err:         err,
		RedirectURL: o.cfg.URLs.checkoutPay(order.ID, "error", err.Error()),
	}
}

// settle reconciles the gateway order with the local one and, only if they
// agree, commits the payment in one store write.
func (o *Orchestrator) settle(ctx context.Context, order *domain.Order, remote domain.GatewayOrder, txn domain.Transaction) Outcome {
	if err := Reconcile(order, remote); err != nil {
		return o.fail(ctx, order, err)
	}
	if txn.ID == "" {
		return o.fail(ctx, order, &ValidationError{Reason: "Gateway response has no transaction id"})
	}

	captured := remote.Status == domain.GatewayCaptured
	state := "AUTHORIZED"
	if captured {
		state = "CAPTURED"
	}
	note := fmt.Sprintf("Mastercard payment %s (ID: %s, Auth Code: %s)", state, txn.ID, txn.AuthorizationCode)

	err := o.store.Settle(ctx, order.ID, domain.Settlement{
		TransactionID: txn.ID,
		Captured:      captured,
		Note:          note,
	})
	if errors.Is(err, domain.ErrAlreadyPaid) {
		o.metrics.IncLatchConflict(domain.MetaOrderPaid)
		fresh, gerr := o.loadOrder(ctx, order.ID)
		if gerr != nil {
			fresh = order
		}
		return o.replay(ctx, fresh)
	}
	if err != nil {
		return o.fail(ctx, order, fmt.Errorf("settling order: %w", err))
	}

	o.log(ctx).Info("payment settled",
		"order_id", order.ID,
		"txn_id", txn.ID,
		"captured", captured,
	)
	o.metrics.IncOutcome(o.cfg.Flow.String(), Settled.String())
	o.publish(ctx, events.EventPaymentSettled, order.ID, events.PaymentSettledData{
		OrderID:           order.ID,
		TransactionID:     txn.ID,
		AuthorizationCode: txn.AuthorizationCode,
		Amount:            remote.Amount.String(),
		Currency:          remote.Currency,
		Captured:          captured,
	})

	return Outcome{
		Kind:        Settled,
		OrderID:     order.ID,
		Transaction: txn,
		Captured:    captured,
		RedirectURL: o.cfg.URLs.orderReceived(order.ID),
	}
}

// submit runs the Submitting state: claim, allocate a transaction id, pay or
// authorize, then settle. threeDS may be nil.
func (o *Orchestrator) submit(ctx context.Context, order *domain.Order, session domain.Session, threeDS domain.ThreeDSecure) Outcome {
	if order.Paid() {
		return o.replay(ctx, order)
	}

	token, err := claim(ctx, o.store, order, o.cfg.ClaimTTL)
	if err != nil {
		o.metrics.IncLatchConflict(domain.MetaPaymentClaim)
		o.log(ctx).Warn("payment submission already in flight", "order_id", order.ID)
		return Outcome{
			Kind:        Failed,
			OrderID:     order.ID,
			Reason:      err.Error(),
			Err:         err,
			RedirectURL: o.cfg.URLs.checkoutPay(order.ID, "error", err.Error()),
		}
	}
	defer func() {
		if rerr := release(ctx, o.store, order.ID, token); rerr != nil {
			o.log(ctx).Error("failed to release payment claim", "order_id", order.ID, "error", rerr)
		}
	}()

	// A concurrent attempt may have settled and dropped its claim between our
	// read and our claim.
	fresh, err := o.loadOrder(ctx, order.ID)
	if err != nil {
		return o.fail(ctx, order, err)
	}
	if fresh.Paid() {
		return o.replay(ctx, fresh)
	}

	payloads, err := o.builder.Build(order)
	if err != nil {
		return o.fail(ctx, order, &ValidationError{Reason: err.Error()})
	}

	txnID, err := o.allocator.Next(ctx, order.ID)
	if err != nil {
		return o.fail(ctx, order, err)
	}

	req := domain.PaymentRequest{
		OrderID:       o.prefixer.Add(order.ID),
		TransactionID: txnID,
		Order:         payloads.Order,
		ThreeDSecure:  threeDS,
		Session:       session,
		Customer:      payloads.Customer,
		Billing:       payloads.Billing,
		Shipping:      payloads.Shipping,
	}

	o.log(ctx).Info("submitting payment",
		"order_id", order.ID,
		"txn_id", txnID,
		"capture", o.cfg.Capture,
		"flow", o.cfg.Flow.String(),
	)

	var res domain.PaymentResult
	if o.cfg.Capture {
		res, err = o.gateway.Pay(ctx, req)
	} else {
		res, err = o.gateway.Authorize(ctx, req)
	}
	if err != nil {
		return o.fail(ctx, order, err)
	}
	if res.Result != domain.ResultSuccess {
		reason := reasonNotSuccessful
		if res.GatewayCode != "" {
			reason = fmt.Sprintf("%s (%s)", reasonNotSuccessful, res.GatewayCode)
		}
		return o.decline(ctx, order, reason)
	}

	out := o.settle(ctx, order, res.Order, res.Transaction)
	if out.Kind == Settled && out.Captured && !out.Replayed && o.saveCardRequested(order) {
		out.CardError = o.saveCard(ctx, order, session.ID)
	}
	return out
}

func (o *Orchestrator) saveCardRequested(order *domain.Order) bool {
	return o.cfg.SaveCards && o.vault != nil && order.Metadata.Flag(domain.MetaSaveCard)
}

func (o *Orchestrator) returnURL(order *domain.Order, params url.Values) string {
	return o.cfg.URLs.callbackReturn(o.prefixer.Add(order.ID), params)
}

func (o *Orchestrator) publish(ctx context.Context, eventType, orderID string, data any) {
	if o.publisher == nil {
		return
	}
	evt, err := events.NewEvent(eventType, events.AggregateOrder, orderID, data)
	if err != nil {
		o.log(ctx).Error("failed to build event", "type", eventType, "error", err)
		return
	}
	evt.WithCorrelation(middleware.GetCorrelationID(ctx))
	if err := o.publisher.Publish(ctx, evt); err != nil {
		o.log(ctx).Error("failed to publish event", "type", eventType, "order_id", orderID, "error", err)
	}
}
