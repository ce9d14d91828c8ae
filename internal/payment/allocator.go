package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"paygate/internal/payment/domain"
	"paygate/internal/payment/txnid"
)

const maxAllocAttempts = 5

var errAllocContention = errors.New("transaction id allocation contended")

// Allocator hands out the next transaction id for an order and persists it
// before it is used, so every gateway attempt carries a distinct id.
type Allocator struct {
	store    OrderStore
	prefixer txnid.Prefixer
}

// NewAllocator creates an Allocator.
func NewAllocator(store OrderStore, prefixer txnid.Prefixer) *Allocator {
	return &Allocator{store: store, prefixer: prefixer}
}

// Next allocates and stores the id following the order's current txn_id.
func (a *Allocator) Next(ctx context.Context, orderID string) (string, error) {
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		order, err := a.store.Get(ctx, orderID)
		if err != nil {
			return "", err
		}

		prev := order.Meta(domain.MetaTxnID)
		next, err := a.prefixer.Next(orderID, prev)
		if err != nil {
			return "", fmt.Errorf("order %s: %w", orderID, err)
		}

		ok, err := a.store.CompareAndSetMeta(ctx, orderID, domain.MetaTxnID, prev, next)
		if err != nil {
			return "", fmt.Errorf("storing transaction id: %w", err)
		}
		if ok {
			return next, nil
		}
	}
	return "", fmt.Errorf("order %s: %w", orderID, errAllocContention)
}

// claim marks a payment submission as in flight so a concurrent duplicate
// callback cannot submit a second payment. The claim value is a ULID, whose
// timestamp lets a claim abandoned by a crashed process expire after ttl.
func claim(ctx context.Context, store OrderStore, order *domain.Order, ttl time.Duration) (string, error) {
	current := order.Meta(domain.MetaPaymentClaim)
	if current != "" && !claimExpired(current, ttl) {
		return "", ErrPaymentInProgress
	}

	token := ulid.Make().String()
	ok, err := store.CompareAndSetMeta(ctx, order.ID, domain.MetaPaymentClaim, current, token)
	if err != nil {
		return "", fmt.Errorf("claiming order: %w", err)
	}
	if !ok {
		return "", ErrPaymentInProgress
	}
	return token, nil
}

func claimExpired(token string, ttl time.Duration) bool {
	id, err := ulid.Parse(token)
	if err != nil {
		return true
	}
	return time.Since(ulid.Time(id.Time())) > ttl
}

// release drops a claim we still hold. Settle clears it as part of its write.
func release(ctx context.Context, store OrderStore, orderID, token string) error {
	_, err := store.CompareAndSetMeta(ctx, orderID, domain.MetaPaymentClaim, token, "")
	return err
}
