package payment

import (
	"context"

	"github.com/stretchr/testify/mock"

	"paygate/internal/payment/domain"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateSession(ctx context.Context) (domain.Session, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Session), args.Error(1)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.CheckoutSession), args.Error(1)
}

func (m *mockGateway) UpdateSession(ctx context.Context, req domain.UpdateSessionRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockGateway) RetrieveOrder(ctx context.Context, orderID string) (domain.GatewayOrder, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(domain.GatewayOrder), args.Error(1)
}

func (m *mockGateway) Pay(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.PaymentResult), args.Error(1)
}

func (m *mockGateway) Authorize(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.PaymentResult), args.Error(1)
}

func (m *mockGateway) CaptureTxn(ctx context.Context, req domain.TransactionRequest) (domain.PaymentResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.PaymentResult), args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, req domain.TransactionRequest) (domain.PaymentResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.PaymentResult), args.Error(1)
}

func (m *mockGateway) Check3DSEnrollment(ctx context.Context, req domain.EnrollmentRequest) (domain.EnrollmentResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.EnrollmentResult), args.Error(1)
}

func (m *mockGateway) Process3DSResult(ctx context.Context, threeDSecureID, paRes string) (domain.ACSResult, error) {
	args := m.Called(ctx, threeDSecureID, paRes)
	return args.Get(0).(domain.ACSResult), args.Error(1)
}

func (m *mockGateway) CreateCardToken(ctx context.Context, sessionID string) (domain.CardToken, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(domain.CardToken), args.Error(1)
}

var _ GatewayClient = (*mockGateway)(nil)

type mockVault struct {
	mock.Mock
}

func (m *mockVault) SaveCard(ctx context.Context, card domain.SavedCard) error {
	return m.Called(ctx, card).Error(0)
}
