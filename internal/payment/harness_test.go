package payment

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"paygate/internal/common/events"
	"paygate/internal/orders"
	"paygate/internal/payment/domain"
)

const testPrefix = "wc_"

func testConfig(flow domain.Flow, capture bool) Config {
	return Config{
		MerchantID:   "TESTMERCHANT",
		MerchantName: "Acme & Sons",
		Capture:      capture,
		Flow:         flow,
		OrderPrefix:  testPrefix,
		URLs: URLs{
			CallbackBase:  "https://pay.example.com/api/v1/callback",
			OrderReceived: "https://shop.example.com/checkout/order-received/{order_id}",
			CheckoutPay:   "https://shop.example.com/checkout/order-pay/{order_id}",
		},
		CheckoutJSURL: "https://eu-gateway.mastercard.com/checkout/version/52/checkout.js",
		SessionJSURL:  "https://eu-gateway.mastercard.com/form/version/52/merchant/TESTMERCHANT/session.js",
	}
}

var (
	hostedSession = domain.Flow{Checkout: domain.HostedSession}
	hostedV1      = domain.Flow{Checkout: domain.HostedSession, ThreeDS: domain.ThreeDSV1}
	hostedV2      = domain.Flow{Checkout: domain.HostedSession, ThreeDS: domain.ThreeDSV2}
	hostedCheck   = domain.Flow{Checkout: domain.HostedCheckout}
	legacyCheck   = domain.Flow{Checkout: domain.LegacyHostedCheckout}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	o      *Orchestrator
	store  *orders.MemoryStore
	gw     *mockGateway
	vault  *mockVault
	events *recordingPublisher
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store:  orders.NewMemoryStore(),
		gw:     &mockGateway{},
		vault:  &mockVault{},
		events: &recordingPublisher{},
	}
	o, err := NewOrchestrator(cfg, h.store, h.gw,
		WithTokenVault(h.vault),
		WithPublisher(h.events),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	h.o = o
	t.Cleanup(func() {
		h.gw.AssertExpectations(t)
		h.vault.AssertExpectations(t)
	})
	return h
}

// seed stores order 1001 for 49.99 USD with distinct billing and shipping
// addresses. mutate adjusts it before insertion.
func (h *harness) seed(t *testing.T, mutate ...func(*domain.Order)) *domain.Order {
	t.Helper()
	o := &domain.Order{
		ID:         "1001",
		CustomerID: "7",
		Email:      "jane@example.com",
		Total:      "49.99",
		Currency:   "USD",
		Status:     domain.StatusPending,
		Billing: domain.Address{
			FirstName: "Jane",
			LastName:  "Doe",
			Address1:  "1 Main St",
			City:      "Springfield",
			State:     "IL",
			Postcode:  "62701",
			Country:   "US",
		},
		Shipping: domain.Address{
			FirstName: "John",
			LastName:  "Doe",
			Address1:  "2 Side St",
			City:      "Springfield",
			Postcode:  "62702",
			Country:   "US",
		},
		Metadata: domain.Metadata{},
	}
	for _, m := range mutate {
		m(o)
	}
	require.NoError(t, h.store.Create(context.Background(), o))
	return o
}

func (h *harness) order(t *testing.T) *domain.Order {
	t.Helper()
	o, err := h.store.Get(context.Background(), "1001")
	require.NoError(t, err)
	return o
}

func (h *harness) notes(t *testing.T) []string {
	t.Helper()
	n, err := h.store.Notes(context.Background(), "1001")
	require.NoError(t, err)
	return n
}

func gatewayOrder(amount string, status domain.GatewayOrderStatus) domain.GatewayOrder {
	return domain.GatewayOrder{
		ID:       testPrefix + "1001",
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
		Status:   status,
		Result:   domain.ResultSuccess,
	}
}

func paySuccess(amount string, status domain.GatewayOrderStatus, txnID, authCode string) domain.PaymentResult {
	return domain.PaymentResult{
		Result:      domain.ResultSuccess,
		Order:       gatewayOrder(amount, status),
		Transaction: domain.Transaction{ID: txnID, AuthorizationCode: authCode},
	}
}
