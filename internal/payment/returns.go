package payment

import (
	"context"
	"errors"
	"net/url"

	"paygate/internal/payment/domain"
)

// ReturnParams are the query and form values of the gateway return callback.
type ReturnParams struct {
	// OrderID is the gateway-side (prefixed) order id.
	OrderID          string
	ResultIndicator  string
	ProcessACSResult bool
	ThreeDSecureID   string
	PaRes            string
	SessionID        string
	SessionVersion   string
}

// ParseReturnParams reads a return callback. The gateway posts the ACS result
// as a form and sends everything else as query parameters.
func ParseReturnParams(values url.Values) ReturnParams {
	return ReturnParams{
		OrderID:          values.Get("order_id"),
		ResultIndicator:  values.Get("resultIndicator"),
		ProcessACSResult: values.Get("process_acs_result") == "1",
		ThreeDSecureID:   values.Get("3DSecureId"),
		PaRes:            values.Get("PaRes"),
		SessionID:        values.Get("session_id"),
		SessionVersion:   values.Get("session_version"),
	}
}

// OnReturn handles the browser coming back from the gateway: either the end
// of a 3DS v1 challenge or the end of a hosted checkout.
func (o *Orchestrator) OnReturn(ctx context.Context, params ReturnParams) (Outcome, error) {
	orderID := o.prefixer.Remove(params.OrderID)
	if orderID == "" {
		return Outcome{}, domain.ErrOrderNotFound
	}

	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			o.log(ctx).Warn("return callback for unknown order", "order_id", params.OrderID)
		}
		return Outcome{}, err
	}

	switch {
	case params.ProcessACSResult:
		return o.resumeThreeDS(ctx, order, params), nil
	case params.ResultIndicator != "":
		if o.cfg.Flow.Checkout == domain.HostedSession {
			return o.reject(ctx, order, ErrWrongFlow), nil
		}
		return o.completeHostedCheckout(ctx, order, params.ResultIndicator), nil
	case order.Paid():
		return o.replay(ctx, order), nil
	default:
		return o.reject(ctx, order, ErrUnexpectedCallback), nil
	}
}
