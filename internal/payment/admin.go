package payment

import (
	"context"
	"fmt"
	"strings"

	"paygate/internal/common/events"
	"paygate/internal/common/money"
	"paygate/internal/payment/domain"
)

// CaptureResult reports a successful capture.
type CaptureResult struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// RefundResult reports a successful refund.
type RefundResult struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// OnCaptureRequest captures the full amount of an authorized order.
func (o *Orchestrator) OnCaptureRequest(ctx context.Context, orderID string) (CaptureResult, error) {
	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		return CaptureResult{}, err
	}
	if order.Status != domain.StatusProcessing {
		return CaptureResult{}, ErrWrongOrderStatus
	}
	if order.Captured() {
		return CaptureResult{}, ErrAlreadyCaptured
	}

	amount, err := order.Amount()
	if err != nil {
		return CaptureResult{}, &ValidationError{Reason: err.Error()}
	}

	prev := order.Meta(domain.MetaOrderCaptured)
	ok, err := o.store.CompareAndSetMeta(ctx, order.ID, domain.MetaOrderCaptured, prev, domain.FlagOn)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("latching capture: %w", err)
	}
	if !ok {
		o.metrics.IncLatchConflict(domain.MetaOrderCaptured)
		return CaptureResult{}, ErrAlreadyCaptured
	}

	res, err := o.captureLatched(ctx, order, amount)
	if err != nil {
		if _, rerr := o.store.CompareAndSetMeta(ctx, order.ID, domain.MetaOrderCaptured, domain.FlagOn, prev); rerr != nil {
			o.log(ctx).Error("failed to revert capture latch", "order_id", order.ID, "error", rerr)
		}
		return CaptureResult{}, err
	}
	return res, nil
}

func (o *Orchestrator) captureLatched(ctx context.Context, order *domain.Order, amount money.Money) (CaptureResult, error) {
	txnID, err := o.allocator.Next(ctx, order.ID)
	if err != nil {
		return CaptureResult{}, err
	}

	res, err := o.gateway.CaptureTxn(ctx, domain.TransactionRequest{
		OrderID:       o.prefixer.Add(order.ID),
		TransactionID: txnID,
		Amount:        amount.StringFixed(),
		Currency:      order.Currency,
	})
	if err != nil {
		o.log(ctx).Error("capture failed", "order_id", order.ID, "error", err)
		return CaptureResult{}, fmt.Errorf("capturing order %s: %w", order.ID, err)
	}
	if res.Result != domain.ResultSuccess {
		return CaptureResult{}, &DeclinedError{Reason: fmt.Sprintf("Capture not successful (%s)", res.GatewayCode)}
	}

	note := fmt.Sprintf("Mastercard payment CAPTURED (ID: %s, Auth Code: %s)", res.Transaction.ID, res.Transaction.AuthorizationCode)
	if err := o.store.AddNote(ctx, order.ID, note); err != nil {
		o.log(ctx).Error("failed to add order note", "order_id", order.ID, "error", err)
	}

	o.log(ctx).Info("payment captured", "order_id", order.ID, "txn_id", res.Transaction.ID)
	o.metrics.IncOutcome("capture", Settled.String())
	o.publish(ctx, events.EventPaymentCaptured, order.ID, events.PaymentCapturedData{
		OrderID:           order.ID,
		TransactionID:     res.Transaction.ID,
		AuthorizationCode: res.Transaction.AuthorizationCode,
		Amount:            amount.StringFixed(),
		Currency:          order.Currency,
	})

	return CaptureResult{
		OrderID:       order.ID,
		TransactionID: res.Transaction.ID,
		Amount:        amount.StringFixed(),
		Currency:      order.Currency,
	}, nil
}

// OnRefundRequest refunds up to the order total. amount is a decimal string in
// the order currency.
func (o *Orchestrator) OnRefundRequest(ctx context.Context, orderID, amount, reason string) (RefundResult, error) {
	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		return RefundResult{}, err
	}
	if !order.Paid() {
		return RefundResult{}, ErrNotPaid
	}

	refund, err := money.Parse(amount, money.Currency(order.Currency))
	if err != nil || !refund.IsPositive() {
		return RefundResult{}, ErrInvalidRefundAmount
	}
	total, err := order.Amount()
	if err != nil {
		return RefundResult{}, &ValidationError{Reason: err.Error()}
	}
	if cmp, err := refund.Compare(total); err != nil || cmp > 0 {
		return RefundResult{}, ErrInvalidRefundAmount
	}

	txnID, err := o.allocator.Next(ctx, order.ID)
	if err != nil {
		return RefundResult{}, err
	}

	res, err := o.gateway.Refund(ctx, domain.TransactionRequest{
		OrderID:       o.prefixer.Add(order.ID),
		TransactionID: txnID,
		Amount:        refund.StringFixed(),
		Currency:      order.Currency,
	})
	if err != nil {
		o.log(ctx).Error("refund failed", "order_id", order.ID, "error", err)
		return RefundResult{}, fmt.Errorf("refunding order %s: %w", order.ID, err)
	}
	if res.Result != domain.ResultSuccess {
		return RefundResult{}, &DeclinedError{Reason: fmt.Sprintf("Refund not successful (%s)", res.GatewayCode)}
	}

	note := fmt.Sprintf("Mastercard registered refund %s %s (ID: %s)", refund.StringFixed(), order.Currency, res.Transaction.ID)
	if reason = strings.TrimSpace(reason); reason != "" {
		note += ": " + reason
	}
	if err := o.store.AddNote(ctx, order.ID, note); err != nil {
		o.log(ctx).Error("failed to add order note", "order_id", order.ID, "error", err)
	}

	o.log(ctx).Info("payment refunded", "order_id", order.ID, "txn_id", res.Transaction.ID, "amount", refund.String())
	o.metrics.IncOutcome("refund", Settled.String())
	o.publish(ctx, events.EventPaymentRefunded, order.ID, events.PaymentRefundedData{
		OrderID:       order.ID,
		TransactionID: res.Transaction.ID,
		Amount:        refund.StringFixed(),
		Currency:      order.Currency,
		Reason:        reason,
	})

	return RefundResult{
		OrderID:       order.ID,
		TransactionID: res.Transaction.ID,
		Amount:        refund.StringFixed(),
		Currency:      order.Currency,
	}, nil
}

// OnProcessPayment starts payment for an order: it goes to pending and the
// customer is sent to the pay page, which opens the configured checkout.
func (o *Orchestrator) OnProcessPayment(ctx context.Context, orderID string) (string, error) {
	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Paid() {
		return o.cfg.URLs.orderReceived(order.ID), nil
	}
	if err := o.store.SetStatus(ctx, order.ID, domain.StatusPending); err != nil {
		return "", fmt.Errorf("marking order pending: %w", err)
	}
	if err := o.store.AddNote(ctx, order.ID, "Awaiting Mastercard payment"); err != nil {
		o.log(ctx).Error("failed to add order note", "order_id", order.ID, "error", err)
	}
	return o.cfg.URLs.checkoutPay(order.ID, "", ""), nil
}
