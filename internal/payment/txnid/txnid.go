// Package txnid namespaces store order ids for the gateway and derives the
// per-attempt transaction ids "{prefix}{orderId}-{n}".
package txnid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Prefixer adds and strips the order-id namespace shared by every gateway call.
// The zero value is the identity.
type Prefixer struct {
	Prefix string
}

// Add returns the externally visible order id.
func (p Prefixer) Add(orderID string) string {
	return p.Prefix + orderID
}

// Remove maps an inbound gateway order id back to the store id.
func (p Prefixer) Remove(orderID string) string {
	return strings.TrimPrefix(orderID, p.Prefix)
}

// Base is the transaction id stem for an order.
func (p Prefixer) Base(orderID string) string {
	return p.Add(orderID)
}

// First returns the id of the first attempt for an order.
func (p Prefixer) First(orderID string) string {
	return p.Base(orderID) + "-1"
}

// ErrSuffixExhausted reports a prior id whose attempt counter cannot be
// incremented.
var ErrSuffixExhausted = errors.New("transaction id suffix exhausted")

// Next derives the id following prev. An empty prev starts the sequence; a prev
// without a numeric "-n" suffix is treated as attempt 1 of the order's base.
func (p Prefixer) Next(orderID, prev string) (string, error) {
	if prev == "" {
		return p.First(orderID), nil
	}

	base, n, err := split(prev)
	switch {
	case errors.Is(err, strconv.ErrRange):
		return "", fmt.Errorf("%s: %w", prev, ErrSuffixExhausted)
	case err != nil:
		return p.Base(orderID) + "-2", nil
	case n == math.MaxInt:
		return "", fmt.Errorf("%s: %w", prev, ErrSuffixExhausted)
	}
	return base + "-" + strconv.Itoa(n+1), nil
}

var errNoSuffix = errors.New("no attempt suffix")

// split breaks "base-n" into its parts. A suffix too large for an int fails
// with strconv.ErrRange.
func split(id string) (string, int, error) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 {
		return "", 0, errNoSuffix
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, err
	}
	if n < 1 {
		return "", 0, errNoSuffix
	}
	return id[:i], n, nil
}
