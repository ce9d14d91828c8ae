package payment

import (
	"context"

	"paygate/internal/payment/domain"
)

// OrderStore is the host store's order record. Every method reads or writes the
// current persisted state; CompareAndSetMeta and Settle must be atomic.
type OrderStore interface {
	// Get returns domain.ErrOrderNotFound for unknown ids.
	Get(ctx context.Context, id string) (*domain.Order, error)
	SetStatus(ctx context.Context, id string, status domain.OrderStatus) error
	SetMeta(ctx context.Context, id string, values map[string]string) error
	// CompareAndSetMeta writes newValue only if key currently holds oldValue
	// (an absent key reads as ""). It reports whether the write happened.
	CompareAndSetMeta(ctx context.Context, id, key, oldValue, newValue string) (bool, error)
	AddNote(ctx context.Context, id, note string) error
	// Settle marks the order paid. It returns domain.ErrAlreadyPaid when the
	// order_paid latch is already set and then changes nothing.
	Settle(ctx context.Context, id string, s domain.Settlement) error
}

// GatewayClient is the card processor API. Network failures and unreadable
// responses wrap domain.ErrTransport; error responses are *domain.GatewayError.
type GatewayClient interface {
	CreateSession(ctx context.Context) (domain.Session, error)
	CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error)
	UpdateSession(ctx context.Context, req domain.UpdateSessionRequest) error
	RetrieveOrder(ctx context.Context, orderID string) (domain.GatewayOrder, error)
	Pay(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error)
	Authorize(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error)
	CaptureTxn(ctx context.Context, req domain.TransactionRequest) (domain.PaymentResult, error)
	Refund(ctx context.Context, req domain.TransactionRequest) (domain.PaymentResult, error)
	Check3DSEnrollment(ctx context.Context, req domain.EnrollmentRequest) (domain.EnrollmentResult, error)
	Process3DSResult(ctx context.Context, threeDSecureID, paRes string) (domain.ACSResult, error)
	CreateCardToken(ctx context.Context, sessionID string) (domain.CardToken, error)
}

// TokenVault persists saved cards.
type TokenVault interface {
	SaveCard(ctx context.Context, card domain.SavedCard) error
}

// Metrics receives orchestration counters.
type Metrics interface {
	IncOutcome(flow, outcome string)
	IncLatchConflict(latch string)
}

type noopMetrics struct{}

func (noopMetrics) IncOutcome(string, string) {}
func (noopMetrics) IncLatchConflict(string) {}
