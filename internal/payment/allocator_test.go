package payment

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/orders"
	"paygate/internal/payment/domain"
	"paygate/internal/payment/txnid"
)

func TestAllocatorSequence(t *testing.T) {
	store := orders.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &domain.Order{ID: "77", Total: "1", Currency: "USD"}))
	a := NewAllocator(store, txnid.Prefixer{Prefix: "shop1_"})

	for i := 1; i <= 20; i++ {
		id, err := a.Next(ctx, "77")
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("shop1_77-%d", i), id)

		o, err := store.Get(ctx, "77")
		require.NoError(t, err)
		assert.Equal(t, id, o.Meta(domain.MetaTxnID))
	}
}

func TestAllocatorMalformedPrevious(t *testing.T) {
	store := orders.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &domain.Order{
		ID:       "77",
		Total:    "1",
		Currency: "USD",
		Metadata: domain.Metadata{domain.MetaTxnID: "garbage"},
	}))

	id, err := NewAllocator(store, txnid.Prefixer{}).Next(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, "77-2", id)
}

func TestAllocatorExhaustedPreviousKeepsStoredID(t *testing.T) {
	store := orders.NewMemoryStore()
	ctx := context.Background()
	prev := "77-" + strconv.Itoa(math.MaxInt)
	require.NoError(t, store.Create(ctx, &domain.Order{
		ID:       "77",
		Total:    "1",
		Currency: "USD",
		Metadata: domain.Metadata{domain.MetaTxnID: prev},
	}))

	_, err := NewAllocator(store, txnid.Prefixer{}).Next(ctx, "77")
	assert.ErrorIs(t, err, txnid.ErrSuffixExhausted)

	o, err := store.Get(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, prev, o.Meta(domain.MetaTxnID))
}

func TestAllocatorConcurrentIDsAreDistinct(t *testing.T) {
	store := orders.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &domain.Order{ID: "77", Total: "1", Currency: "USD"}))
	a := NewAllocator(store, txnid.Prefixer{})

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := a.Next(ctx, "77")
			if err != nil {
				assert.ErrorIs(t, err, errAllocContention)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}()
	}
	wg.Wait()
	assert.NotEmpty(t, seen)
}

func TestClaimLifecycle(t *testing.T) {
	store := orders.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &domain.Order{ID: "77", Total: "1", Currency: "USD"}))

	get := func() *domain.Order {
		o, err := store.Get(ctx, "77")
		require.NoError(t, err)
		return o
	}

	token, err := claim(ctx, store, get(), time.Minute)
	require.NoError(t, err)

	_, err = claim(ctx, store, get(), time.Minute)
	assert.ErrorIs(t, err, ErrPaymentInProgress)

	require.NoError(t, release(ctx, store, "77", token))
	assert.Empty(t, get().Meta(domain.MetaPaymentClaim))

	_, err = claim(ctx, store, get(), time.Minute)
	assert.NoError(t, err)
}

func TestClaimExpired(t *testing.T) {
	old := ulid.MustNew(ulid.Timestamp(time.Now().Add(-10*time.Minute)), ulid.DefaultEntropy()).String()
	fresh := ulid.Make().String()

	assert.True(t, claimExpired(old, 2*time.Minute))
	assert.False(t, claimExpired(fresh, 2*time.Minute))
	assert.True(t, claimExpired("not-a-ulid", 2*time.Minute))
}
