package mpgs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/payment/domain"
)

type recordedCall struct {
	operation string
	failed    bool
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *recordingObserver) ObserveGatewayCall(operation string, _ float64, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{operation, failed})
}

func testConfig() Config {
	return Config{
		Region:            "eu",
		Sandbox:           true,
		SandboxMerchantID: "TESTMERCHANT",
		SandboxPassword:   "secret",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithBaseURL(srv.URL + "/api/rest/version/52/merchant/TESTMERCHANT")}, opts...)
	c, err := NewClient(testConfig(), logger, opts...)
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestConfigHost(t *testing.T) {
	tests := []struct {
		region, custom, want string
		wantErr              bool
	}{
		{region: "eu", want: HostEU},
		{region: "", want: HostEU},
		{region: "AP", want: HostAP},
		{region: "na", want: HostNA},
		{region: "uat", want: HostUAT},
		{region: "custom", custom: "https://gw.example.com/", want: "gw.example.com"},
		{region: "custom", wantErr: true},
		{region: "mars", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.region+tt.custom, func(t *testing.T) {
			host, err := Config{Region: tt.region, CustomHost: tt.custom}.Host()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, host)
		})
	}
}

func TestConfigCredentials(t *testing.T) {
	cfg := Config{MerchantID: "LIVE", Password: "lp", SandboxMerchantID: "TEST", SandboxPassword: "tp"}

	cfg.Sandbox = true
	id, pw := cfg.Credentials()
	assert.Equal(t, "TEST", id)
	assert.Equal(t, "tp", pw)

	cfg.Sandbox = false
	id, pw = cfg.Credentials()
	assert.Equal(t, "LIVE", id)
	assert.Equal(t, "lp", pw)

	assert.Error(t, Config{Region: "eu", Sandbox: true}.Validate())
}

func TestScriptURLs(t *testing.T) {
	assert.Equal(t, "https://eu-gateway.mastercard.com/checkout/version/52/checkout.js", CheckoutJSURL(HostEU))
	assert.Equal(t, "https://eu-gateway.mastercard.com/form/version/52/merchant/M1/session.js", SessionJSURL(HostEU, "M1"))
}

func TestBasicAuthAndCreateSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "merchant.TESTMERCHANT", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/rest/version/52/merchant/TESTMERCHANT/session", r.URL.Path)

		_, _ = io.WriteString(w, `{"result":"SUCCESS","session":{"id":"SESSION0001","version":"abc"}}`)
	})

	s, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Session{ID: "SESSION0001", Version: "abc"}, s)
}

func TestCreateCheckoutSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "CREATE_CHECKOUT_SESSION", body["apiOperation"])
		order := body["order"].(map[string]any)
		assert.Equal(t, "wc_7", order["id"])
		assert.Equal(t, "10.00", order["amount"])
		interaction := body["interaction"].(map[string]any)
		assert.Equal(t, "PURCHASE", interaction["operation"])

		_, _ = io.WriteString(w, `{"result":"SUCCESS","session":{"id":"S1"},"successIndicator":"ind-1"}`)
	})

	cs, err := c.CreateCheckoutSession(context.Background(), domain.CheckoutSessionRequest{
		Order:       domain.OrderPayload{ID: "wc_7", Amount: "10.00", Currency: "USD"},
		Interaction: domain.Interaction{Operation: domain.OperationPurchase},
	})
	require.NoError(t, err)
	assert.Equal(t, "S1", cs.Session.ID)
	assert.Equal(t, "ind-1", cs.SuccessIndicator)
}

func TestPayWithLegacyAuthentication(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/rest/version/52/merchant/TESTMERCHANT/order/wc_7/transaction/wc_7-1", r.URL.Path)

		body := decodeBody(t, r)
		assert.Equal(t, "PAY", body["apiOperation"])
		assert.Equal(t, "3ds-1", body["3DSecureId"])
		tds := body["3DSecure"].(map[string]any)
		assert.Equal(t, "05", tds["acsEci"])
		assert.NotContains(t, body, "authentication")

		_, _ = io.WriteString(w, `{
			"result":"SUCCESS",
			"order":{"id":"wc_7","amount":10.00,"currency":"USD","status":"CAPTURED"},
			"transaction":{"id":"wc_7-1","authorizationCode":"A1"}
		}`)
	})

	res, err := c.Pay(context.Background(), domain.PaymentRequest{
		OrderID:       "wc_7",
		TransactionID: "wc_7-1",
		Order:         domain.OrderPayload{Amount: "10.00", Currency: "USD"},
		Session:       domain.Session{ID: "S1"},
		ThreeDSecure:  &domain.LegacyAuthentication{ID: "3ds-1", ACSEci: "05"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSuccess, res.Result)
	assert.Equal(t, domain.GatewayCaptured, res.Order.Status)
	assert.True(t, decimal.RequireFromString("10").Equal(res.Order.Amount))
	assert.Equal(t, "A1", res.Transaction.AuthorizationCode)
}

func TestAuthorizeWithEMVAuthentication(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "AUTHORIZE", body["apiOperation"])
		assert.NotContains(t, body, "3DSecure")
		auth := body["authentication"].(map[string]any)
		assert.Equal(t, "auth-1", auth["transactionId"])

		_, _ = io.WriteString(w, `{"result":"SUCCESS","order":{"status":"AUTHORIZED"},"transaction":{"id":"t"}}`)
	})

	res, err := c.Authorize(context.Background(), domain.PaymentRequest{
		OrderID:       "7",
		TransactionID: "7-1",
		ThreeDSecure:  &domain.EMVAuthentication{TransactionID: "auth-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayAuthorized, res.Order.Status)
}

func TestRetrieveOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{
			"id":"wc_7","amount":"49.99","currency":"EUR","status":"CAPTURED","result":"SUCCESS",
			"transaction":[{"result":"SUCCESS","transaction":{"id":"wc_7-1","authorizationCode":"X"}}]
		}`)
	})

	o, err := c.RetrieveOrder(context.Background(), "wc_7")
	require.NoError(t, err)
	assert.Equal(t, "EUR", o.Currency)
	require.Len(t, o.Transactions, 1)
	assert.Equal(t, "wc_7-1", o.Transactions[0].Transaction.ID)
}

func TestCheck3DSEnrollment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rest/version/52/merchant/TESTMERCHANT/3DSecureId/3ds-1", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "CHECK_3DS_ENROLLMENT", body["apiOperation"])

		_, _ = io.WriteString(w, `{
			"3DSecureId":"3ds-1",
			"response":{"gatewayRecommendation":"PROCEED"},
			"3DSecure":{"authenticationRedirect":{"customized":{"acsUrl":"https://acs.example/","paReq":"PAREQ"}}}
		}`)
	})

	res, err := c.Check3DSEnrollment(context.Background(), domain.EnrollmentRequest{ThreeDSecureID: "3ds-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RecommendProceed, res.Recommendation)
	require.NotNil(t, res.Redirect)
	assert.Equal(t, "PAREQ", res.Redirect.PaReq)
}

func TestProcess3DSResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "PROCESS_ACS_RESULT", body["apiOperation"])
		assert.Equal(t, "PARES", body["3DSecure"].(map[string]any)["paRes"])

		_, _ = io.WriteString(w, `{
			"3DSecureId":"3ds-1",
			"response":{"gatewayRecommendation":"PROCEED"},
			"3DSecure":{"acsEci":"05","xid":"X1","paResStatus":"Y"}
		}`)
	})

	res, err := c.Process3DSResult(context.Background(), "3ds-1", "PARES")
	require.NoError(t, err)
	assert.Equal(t, "3ds-1", res.Authentication.ID)
	assert.Equal(t, "X1", res.Authentication.XID)

	_, err = c.Process3DSResult(context.Background(), "3ds-1", "")
	assert.Error(t, err)
}

func TestCreateCardToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rest/version/52/merchant/TESTMERCHANT/token", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"result":"SUCCESS","token":"9876543210123456",
			"sourceOfFunds":{"provided":{"card":{"brand":"MASTERCARD","number":"512345xxxxxx0008","expiry":"0539"}}}
		}`)
	})

	tok, err := c.CreateCardToken(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "9876543210123456", tok.Token)
	assert.Equal(t, "0539", tok.Expiry)
}

func TestErrorClassification(t *testing.T) {
	obs := &recordingObserver{}

	t.Run("error envelope is a gateway error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"result":"ERROR","error":{"cause":"INVALID_REQUEST","explanation":"Value 'X' is invalid"}}`)
		}, WithObserver(obs))

		_, err := c.RetrieveOrder(context.Background(), "wc_1")
		var gwErr *domain.GatewayError
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, "INVALID_REQUEST", gwErr.Cause)
		assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
		assert.NotErrorIs(t, err, domain.ErrTransport)
	})

	t.Run("server error is transport", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := c.RetrieveOrder(context.Background(), "wc_1")
		assert.ErrorIs(t, err, domain.ErrTransport)
	})

	t.Run("malformed body is transport", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>`)
		})
		_, err := c.CreateSession(context.Background())
		assert.ErrorIs(t, err, domain.ErrTransport)
	})

	t.Run("unreachable host is transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c, err := NewClient(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), WithBaseURL(srv.URL))
		require.NoError(t, err)
		_, err = c.CreateSession(context.Background())
		assert.ErrorIs(t, err, domain.ErrTransport)
	})

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.calls, 1)
	assert.Equal(t, recordedCall{"retrieve_order", true}, obs.calls[0])
}
