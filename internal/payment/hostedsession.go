package payment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/oklog/ulid/v2"

	"paygate/internal/payment/domain"
)

// SessionInfo is returned to the hosted session card form.
type SessionInfo struct {
	SessionID  string `json:"session_id"`
	OrderID    string `json:"order_id"`
	MerchantID string `json:"merchant_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	// AuthTransactionID is the id the 3DS2 component authenticates under.
	AuthTransactionID string `json:"authentication_transaction_id,omitempty"`
	SessionJSURL      string `json:"session_js_url"`
	ThreeDS           string `json:"three_ds"`
}

// SavePaymentForm is what the card form posts once the session holds card data.
type SavePaymentForm struct {
	SessionID      string `validate:"required,max=64"`
	SessionVersion string `validate:"max=64"`
	Check3DS       bool
	SaveCard       bool
	// AuthTransactionID is reported by the 3DS2 component.
	AuthTransactionID string `validate:"max=64"`
}

// OnCreateSessionRequest creates a gateway session for the card form and
// attaches the order to it.
func (o *Orchestrator) OnCreateSessionRequest(ctx context.Context, orderID string) (SessionInfo, error) {
	if o.cfg.Flow.Checkout != domain.HostedSession {
		return SessionInfo{}, ErrWrongFlow
	}

	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		return SessionInfo{}, err
	}
	if order.Paid() {
		return SessionInfo{}, fmt.Errorf("order %s: %w", order.ID, domain.ErrAlreadyPaid)
	}

	payloads, err := o.builder.Build(order)
	if err != nil {
		return SessionInfo{}, &ValidationError{Reason: err.Error()}
	}

	session, err := o.gateway.CreateSession(ctx)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("creating session: %w", err)
	}
	if session.ID == "" {
		return SessionInfo{}, &IntegrityError{Op: "create session", Detail: "missing session id"}
	}

	if err := o.gateway.UpdateSession(ctx, domain.UpdateSessionRequest{
		SessionID: session.ID,
		Order:     payloads.Order,
		Customer:  payloads.Customer,
		Billing:   payloads.Billing,
		Shipping:  payloads.Shipping,
	}); err != nil {
		return SessionInfo{}, fmt.Errorf("updating session: %w", err)
	}

	meta := map[string]string{domain.MetaSessionID: session.ID}
	info := SessionInfo{
		SessionID:    session.ID,
		OrderID:      o.prefixer.Add(order.ID),
		MerchantID:   o.cfg.MerchantID,
		Amount:       payloads.Order.Amount,
		Currency:     payloads.Order.Currency,
		SessionJSURL: o.cfg.SessionJSURL,
		ThreeDS:      o.cfg.Flow.ThreeDS.String(),
	}
	if o.cfg.Flow.ThreeDS == domain.ThreeDSV2 {
		info.AuthTransactionID = ulid.Make().String()
		meta[domain.MetaAuthTxnID] = info.AuthTransactionID
	}

	if err := o.store.SetMeta(ctx, order.ID, meta); err != nil {
		return SessionInfo{}, fmt.Errorf("storing session: %w", err)
	}

	o.log(ctx).Info("session created", "order_id", order.ID, "session_id", session.ID)
	return info, nil
}

// OnSavePaymentRequest handles the card form submission: 3DS v1 enrollment
// when configured, otherwise straight to submission.
func (o *Orchestrator) OnSavePaymentRequest(ctx context.Context, orderID string, form SavePaymentForm) (Outcome, error) {
	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}
	if o.cfg.Flow.Checkout != domain.HostedSession {
		return o.fail(ctx, order, ErrWrongFlow), nil
	}
	if order.Paid() {
		return o.replay(ctx, order), nil
	}

	saveCard := domain.FlagOff
	if form.SaveCard {
		saveCard = domain.FlagOn
	}
	if err := o.store.SetMeta(ctx, order.ID, map[string]string{
		domain.MetaSessionID:      form.SessionID,
		domain.MetaSessionVersion: form.SessionVersion,
		domain.MetaSaveCard:       saveCard,
	}); err != nil {
		return Outcome{}, fmt.Errorf("storing session: %w", err)
	}
	if order.Metadata == nil {
		order.Metadata = domain.Metadata{}
	}
	order.Metadata[domain.MetaSaveCard] = saveCard

	session := domain.Session{ID: form.SessionID, Version: form.SessionVersion}

	switch o.cfg.Flow.ThreeDS {
	case domain.ThreeDSV1:
		if form.Check3DS {
			return o.checkEnrollment(ctx, order, session), nil
		}
		return o.submit(ctx, order, session, nil), nil
	case domain.ThreeDSV2:
		authID := form.AuthTransactionID
		if authID == "" {
			authID = order.Meta(domain.MetaAuthTxnID)
		}
		if authID == "" {
			return o.fail(ctx, order, &ValidationError{Reason: "Missing 3DS authentication transaction id"}), nil
		}
		return o.submit(ctx, order, session, &domain.EMVAuthentication{TransactionID: authID}), nil
	default:
		return o.submit(ctx, order, session, nil), nil
	}
}

// checkEnrollment runs the 3DS v1 enrollment check. An ACS redirect suspends
// the attempt until the return callback carries the PARes.
func (o *Orchestrator) checkEnrollment(ctx context.Context, order *domain.Order, session domain.Session) Outcome {
	orderPayload, err := o.builder.Order(order)
	if err != nil {
		return o.fail(ctx, order, &ValidationError{Reason: err.Error()})
	}

	threeDSID := ulid.Make().String()
	res, err := o.gateway.Check3DSEnrollment(ctx, domain.EnrollmentRequest{
		ThreeDSecureID: threeDSID,
		Order:          orderPayload,
		Session:        domain.Session{ID: session.ID},
		ResponseURL:    o.returnURL(order, url.Values{"status": {"3ds_done"}}),
	})
	if err != nil {
		return o.fail(ctx, order, err)
	}
	if res.Recommendation != domain.RecommendProceed {
		return o.decline(ctx, order, reasonNotProceed)
	}
	if res.ThreeDSecureID != "" {
		threeDSID = res.ThreeDSecureID
	}

	if res.Redirect == nil {
		return o.submit(ctx, order, session, nil)
	}

	if err := o.store.SetMeta(ctx, order.ID, map[string]string{domain.MetaThreeDSID: threeDSID}); err != nil {
		return o.fail(ctx, order, fmt.Errorf("storing 3DS id: %w", err))
	}

	o.log(ctx).Info("3DS challenge required", "order_id", order.ID, "three_ds_id", threeDSID)
	o.metrics.IncOutcome(o.cfg.Flow.String(), Challenge.String())

	return Outcome{
		Kind:    Challenge,
		OrderID: order.ID,
		Challenge: &ACSChallenge{
			ACSUrl: res.Redirect.ACSUrl,
			PaReq:  res.Redirect.PaReq,
			TermURL: o.returnURL(order, url.Values{
				"3DSecureId":         {threeDSID},
				"process_acs_result": {"1"},
				"session_id":         {session.ID},
				"session_version":    {session.Version},
			}),
		},
	}
}

// resumeThreeDS submits the cardholder's PARes and, if the gateway recommends
// proceeding, pays with the resulting authentication.
func (o *Orchestrator) resumeThreeDS(ctx context.Context, order *domain.Order, params ReturnParams) Outcome {
	if order.Paid() {
		return o.replay(ctx, order)
	}
	if o.cfg.Flow.ThreeDS != domain.ThreeDSV1 {
		return o.reject(ctx, order, ErrWrongFlow)
	}
	if params.ThreeDSecureID == "" || params.ThreeDSecureID != order.Meta(domain.MetaThreeDSID) {
		return o.fail(ctx, order, ErrThreeDSIDMismatch)
	}
	if params.PaRes == "" {
		return o.fail(ctx, order, ErrMissingPaRes)
	}

	res, err := o.gateway.Process3DSResult(ctx, params.ThreeDSecureID, params.PaRes)
	if err != nil {
		return o.fail(ctx, order, err)
	}
	if res.Recommendation != domain.RecommendProceed {
		return o.decline(ctx, order, reasonNotProceed)
	}

	auth := res.Authentication
	auth.ID = params.ThreeDSecureID

	session := domain.Session{ID: params.SessionID, Version: params.SessionVersion}
	if session.ID == "" {
		session.ID = order.Meta(domain.MetaSessionID)
		session.Version = order.Meta(domain.MetaSessionVersion)
	}
	return o.submit(ctx, order, session, &auth)
}
