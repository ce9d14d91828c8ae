package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"paygate/internal/common/events"
	"paygate/internal/payment/domain"
)

func TestNewOrchestratorRejectsBadConfig(t *testing.T) {
	cfg := testConfig(domain.Flow{Checkout: domain.HostedCheckout, ThreeDS: domain.ThreeDSV1}, true)
	cfg.MerchantID = ""
	cfg.URLs.OrderReceived = "not a url"
	cfg.CheckoutMode = "popup"

	_, err := NewOrchestrator(cfg, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFlow)
	assert.Contains(t, err.Error(), "merchant id is required")
	assert.Contains(t, err.Error(), "order received url")
	assert.Contains(t, err.Error(), `unknown hosted checkout mode "popup"`)
}

func TestScenarioA_HappyPathPurchase(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, true))
	h.seed(t)
	ctx := context.Background()

	h.gw.On("Pay", mock.Anything, mock.MatchedBy(func(r domain.PaymentRequest) bool {
		return r.OrderID == "wc_1001" &&
			r.TransactionID == "wc_1001-1" &&
			r.Session.ID == "SESS1" &&
			r.Order.Amount == "49.99" &&
			r.Order.Currency == "USD" &&
			r.ThreeDSecure == nil &&
			r.Shipping != nil
	})).Return(paySuccess("49.99", domain.GatewayCaptured, "TXN1", "OK123"), nil).Once()

	out, err := h.o.OnSavePaymentRequest(ctx, "1001", SavePaymentForm{SessionID: "SESS1"})
	require.NoError(t, err)

	assert.Equal(t, Settled, out.Kind)
	assert.False(t, out.Replayed)
	assert.True(t, out.Captured)
	assert.Equal(t, "TXN1", out.Transaction.ID)
	assert.Equal(t, "https://shop.example.com/checkout/order-received/1001", out.RedirectURL)

	o := h.order(t)
	assert.True(t, o.Paid())
	assert.True(t, o.Captured())
	assert.Equal(t, domain.StatusProcessing, o.Status)
	assert.Equal(t, "TXN1", o.TransactionID)
	assert.Equal(t, "wc_1001-1", o.Meta(domain.MetaTxnID))
	assert.Empty(t, o.Meta(domain.MetaPaymentClaim))
	assert.Contains(t, h.notes(t), "Mastercard payment CAPTURED (ID: TXN1, Auth Code: OK123)")
	assert.Equal(t, []string{events.EventPaymentSettled}, h.events.types())
}

func TestScenarioB_AmountMismatch(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, true))
	h.seed(t)

	h.gw.On("Pay", mock.Anything, mock.Anything).
		Return(paySuccess("39.99", domain.GatewayCaptured, "TXN1", "OK123"), nil).Once()

	out, err := h.o.OnSavePaymentRequest(context.Background(), "1001", SavePaymentForm{SessionID: "SESS1"})
	require.NoError(t, err)

	assert.Equal(t, Failed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrAmountMismatch)
	assert.Equal(t, "Amount mismatch", out.Reason)
	assert.Contains(t, out.RedirectURL, "status=error")

	o := h.order(t)
	assert.Equal(t, domain.StatusFailed, o.Status)
	assert.False(t, o.Paid())
	assert.False(t, o.Captured())
	assert.Empty(t, o.TransactionID)
}

func TestScenarioC_LegacyThreeDSDecline(t *testing.T) {
	h := newHarness(t, testConfig(hostedV1, true))
	h.seed(t)

	h.gw.On("Check3DSEnrollment", mock.Anything, mock.MatchedBy(func(r domain.EnrollmentRequest) bool {
		return r.Session.ID == "SESS1" && r.Order.Amount == "49.99" && r.ThreeDSecureID != ""
	})).Return(domain.EnrollmentResult{Recommendation: domain.RecommendDoNotProceed}, nil).Once()

	out, err := h.o.OnSavePaymentRequest(context.Background(), "1001", SavePaymentForm{SessionID: "SESS1", Check3DS: true})
	require.NoError(t, err)

	assert.Equal(t, Declined, out.Kind)
	assert.Equal(t, "gatewayRecommendation not proceed", out.Reason)
	assert.True(t, IsDeclined(out.Err))
	assert.Equal(t, domain.StatusFailed, h.order(t).Status)
	assert.Contains(t, h.notes(t), "Mastercard payment declined: gatewayRecommendation not proceed")
	h.gw.AssertNotCalled(t, "Pay", mock.Anything, mock.Anything)
	h.gw.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything)
}

func TestScenarioD_ResultIndicatorMismatch(t *testing.T) {
	h := newHarness(t, testConfig(hostedCheck, true))
	h.seed(t, func(o *domain.Order) {
		o.Metadata[domain.MetaSuccessIndicator] = "ABC"
	})

	out, err := h.o.OnReturn(context.Background(), ReturnParams{OrderID: "wc_1001", ResultIndicator: "XYZ"})
	require.NoError(t, err)

	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, "Result indicator mismatch", out.Reason)
	assert.ErrorIs(t, out.Err, ErrResultIndicatorMismatch)
	assert.False(t, h.order(t).Paid())
	h.gw.AssertNotCalled(t, "RetrieveOrder", mock.Anything, mock.Anything)
}

func TestScenarioE_DuplicateCaptureGuard(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, false))
	h.seed(t, func(o *domain.Order) {
		o.Status = domain.StatusProcessing
		o.Metadata[domain.MetaOrderPaid] = domain.FlagOn
		o.Metadata[domain.MetaOrderCaptured] = domain.FlagOn
	})

	_, err := h.o.OnCaptureRequest(context.Background(), "1001")
	require.Error(t, err)
	assert.EqualError(t, err, "Order already captured")
	h.gw.AssertNotCalled(t, "CaptureTxn", mock.Anything, mock.Anything)
}

func TestEmptyStoredIndicatorNeverMatches(t *testing.T) {
	h := newHarness(t, testConfig(hostedCheck, true))
	h.seed(t)

	out, err := h.o.OnReturn(context.Background(), ReturnParams{OrderID: "wc_1001", ResultIndicator: "ANY"})
	require.NoError(t, err)
	assert.Equal(t, Failed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrResultIndicatorMismatch)
}

func TestHostedCheckoutCompletionIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig(hostedCheck, true))
	h.seed(t, func(o *domain.Order) {
		o.Metadata[domain.MetaSuccessIndicator] = "ABC"
	})
	ctx := context.Background()

	remote := gatewayOrder("49.99", domain.GatewayCaptured)
	remote.Transactions = []domain.TransactionEntry{{
		Result:      domain.ResultSuccess,
		Transaction: domain.Transaction{ID: "TXN9", AuthorizationCode: "AC9"},
	}}
	h.gw.On("RetrieveOrder", mock.Anything, "wc_1001").Return(remote, nil).Once()

	params := ReturnParams{OrderID: "wc_1001", ResultIndicator: "ABC"}
	first, err := h.o.OnReturn(ctx, params)
	require.NoError(t, err)
	second, err := h.o.OnReturn(ctx, params)
	require.NoError(t, err)

	assert.Equal(t, Settled, first.Kind)
	assert.False(t, first.Replayed)
	assert.Equal(t, Settled, second.Kind)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.RedirectURL, second.RedirectURL)
	assert.Equal(t, "TXN9", second.Transaction.ID)
	h.gw.AssertNumberOfCalls(t, "RetrieveOrder", 1)
}

func TestHostedSessionCompletionIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, true))
	h.seed(t)
	ctx := context.Background()

	h.gw.On("Pay", mock.Anything, mock.Anything).
		Return(paySuccess("49.99", domain.GatewayCaptured, "TXN1", "OK123"), nil).Once()

	form := SavePaymentForm{SessionID: "SESS1"}
	first, err := h.o.OnSavePaymentRequest(ctx, "1001", form)
	require.NoError(t, err)
	second, err := h.o.OnSavePaymentRequest(ctx, "1001", form)
	require.NoError(t, err)

	assert.Equal(t, first.RedirectURL, second.RedirectURL)
	assert.True(t, second.Replayed)
	h.gw.AssertNumberOfCalls(t, "Pay", 1)
}

func TestHostedCheckoutRemoteNotSuccessfulDeclines(t *testing.T) {
	h := newHarness(t, testConfig(hostedCheck, true))
	h.seed(t, func(o *domain.Order) {
		o.Metadata[domain.MetaSuccessIndicator] = "ABC"
	})

	remote := gatewayOrder("49.99", domain.GatewayCaptured)
	remote.Result = domain.ResultFailure
	h.gw.On("RetrieveOrder", mock.Anything, "wc_1001").Return(remote, nil).Once()

	out, err := h.o.OnReturn(context.Background(), ReturnParams{OrderID: "wc_1001", ResultIndicator: "ABC"})
	require.NoError(t, err)
	assert.Equal(t, Declined, out.Kind)
	assert.Equal(t, "Payment not successful", out.Reason)
	assert.Equal(t, domain.StatusFailed, h.order(t).Status)
}

func TestAuthorizeModeSettlesUncaptured(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, false))
	h.seed(t)

	h.gw.On("Authorize", mock.Anything, mock.Anything).
		Return(paySuccess("49.99", domain.GatewayAuthorized, "TXN2", "AUTH2"), nil).Once()

	out, err := h.o.OnSavePaymentRequest(context.Background(), "1001", SavePaymentForm{SessionID: "SESS1"})
	require.NoError(t, err)

	assert.Equal(t, Settled, out.Kind)
	assert.False(t, out.Captured)
	o := h.order(t)
	assert.True(t, o.Paid())
	assert.False(t, o.Captured())
	assert.Equal(t, domain.FlagOff, o.Meta(domain.MetaOrderCaptured))
	assert.Contains(t, h.notes(t), "Mastercard payment AUTHORIZED (ID: TXN2, Auth Code: AUTH2)")
	h.gw.AssertNotCalled(t, "Pay", mock.Anything, mock.Anything)
}

func TestDeclineThenRetryUsesNextTransactionID(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, true))
	h.seed(t)
	ctx := context.Background()

	h.gw.On("Pay", mock.Anything, mock.MatchedBy(func(r domain.PaymentRequest) bool {
		return r.TransactionID == "wc_1001-1"
	})).Return(domain.PaymentResult{Result: domain.ResultFailure, GatewayCode: "DECLINED"}, nil).Once()
	h.gw.On("Pay", mock.Anything, mock.MatchedBy(func(r domain.PaymentRequest) bool {
		return r.TransactionID == "wc_1001-2"
	})).Return(paySuccess("49.99", domain.GatewayCaptured, "TXN2", "OK"), nil).Once()

	out, err := h.o.OnSavePaymentRequest(ctx, "1001", SavePaymentForm{SessionID: "SESS1"})
	require.NoError(t, err)
	assert.Equal(t, Declined, out.Kind)
	assert.Equal(t, "Payment not successful (DECLINED)", out.Reason)
	assert.Contains(t, out.RedirectURL, "status=declined")
	assert.Equal(t, domain.StatusFailed, h.order(t).Status)
	assert.False(t, h.order(t).Paid())

	out, err = h.o.OnSavePaymentRequest(ctx, "1001", SavePaymentForm{SessionID: "SESS2"})
	require.NoError(t, err)
	assert.Equal(t, Settled, out.Kind)
	assert.Equal(t, "wc_1001-2", h.order(t).Meta(domain.MetaTxnID))
	assert.Equal(t, []string{events.EventPaymentDeclined, events.EventPaymentSettled}, h.events.types())
}

func TestTransportErrorLeavesOrderStatus(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, true))
	h.seed(t)

	h.gw.On("Pay", mock.Anything, mock.Anything).
		Return(domain.PaymentResult{}, fmt.Errorf("%w: pay: connection reset", domain.ErrTransport)).Once()

	out, err := h.o.OnSavePaymentRequest(context.Background(), "1001", SavePaymentForm{SessionID: "SESS1"})
	require.NoError(t, err)

	assert.Equal(t, Failed, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrTransport)
	assert.Equal(t, "Payment gateway unavailable", out.Reason)

	o := h.order(t)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.False(t, o.Paid())
	assert.Empty(t, o.Meta(domain.MetaPaymentClaim))
}

func TestGatewayErrorResponseIsDecline(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, true))
	h.seed(t)

	h.gw.On("Pay", mock.Anything, mock.Anything).Return(domain.PaymentResult{}, &domain.GatewayError{
		Operation:   "pay",
		StatusCode:  400,
		Cause:       "INVALID_REQUEST",
		Explanation: "Session expired",
	}).Once()

	out, err := h.o.OnSavePaymentRequest(context.Background(), "1001", SavePaymentForm{SessionID: "SESS1"})
	require.NoError(t, err)
	assert.Equal(t, Declined, out.Kind)
	assert.Equal(t, "Session expired", out.Reason)
	assert.Equal(t, domain.StatusFailed, h.order(t).Status)
}

func TestConcurrentDuplicateSubmissionsPayOnce(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, true))
	h.seed(t)
	ctx := context.Background()

	h.gw.On("Pay", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return(paySuccess("49.99", domain.GatewayCaptured, "TXN1", "OK123"), nil).Once()

	const n = 8
	outcomes := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.o.OnSavePaymentRequest(ctx, "1001", SavePaymentForm{SessionID: "SESS1"})
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	h.gw.AssertNumberOfCalls(t, "Pay", 1)

	settled := 0
	for _, out := range outcomes {
		switch out.Kind {
		case Settled:
			if !out.Replayed {
				settled++
			}
		case Failed:
			assert.ErrorIs(t, out.Err, ErrPaymentInProgress)
		default:
			t.Fatalf("unexpected outcome %s", out.Kind)
		}
	}
	assert.Equal(t, 1, settled)
	assert.True(t, h.order(t).Paid())
}

func TestExpiredClaimIsTakenOver(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, true))
	stale := "01ARZ3NDEKTSV4RRFFQ69G5FAV" // 2016
	h.seed(t, func(o *domain.Order) {
		o.Metadata[domain.MetaPaymentClaim] = stale
	})

	h.gw.On("Pay", mock.Anything, mock.Anything).
		Return(paySuccess("49.99", domain.GatewayCaptured, "TXN1", "OK123"), nil).Once()

	out, err := h.o.OnSavePaymentRequest(context.Background(), "1001", SavePaymentForm{SessionID: "SESS1"})
	require.NoError(t, err)
	assert.Equal(t, Settled, out.Kind)
}

func TestLiveClaimBlocksSubmission(t *testing.T) {
	h := newHarness(t, testConfig(hostedSession, true))
	h.seed(t)
	ctx := context.Background()

	token, err := claim(ctx, h.store, h.order(t), time.Minute)
	require.NoError(t, err)

	out, err := h.o.OnSavePaymentRequest(ctx, "1001", SavePaymentForm{SessionID: "SESS1"})
	require.NoError(t, err)
	assert.Equal(t, Failed, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrPaymentInProgress))
	assert.Equal(t, domain.StatusPending, h.order(t).Status)
	assert.Equal(t, token, h.order(t).Meta(domain.MetaPaymentClaim))
	h.gw.AssertNotCalled(t, "Pay", mock.Anything, mock.Anything)
}

func TestSavePaymentRejectsHostedCheckoutFlow(t *testing.T) {
	h := newHarness(t, testConfig(hostedCheck, true))
	h.seed(t)

	out, err := h.o.OnSavePaymentRequest(context.Background(), "1001", SavePaymentForm{SessionID: "SESS1"})
	require.NoError(t, err)
	assert.Equal(t, Failed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrWrongFlow)
}
