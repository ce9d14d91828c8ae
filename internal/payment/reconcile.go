package payment

import (
	"fmt"

	"paygate/internal/common/money"
	"paygate/internal/payment/domain"
)

// Reconcile checks the gateway's view of an order against the local one before
// it may be settled. Currency is compared first and must match byte for byte;
// amounts must agree once both are rounded to the currency's minor units.
func Reconcile(local *domain.Order, remote domain.GatewayOrder) error {
	if local.Currency != remote.Currency {
		return ErrCurrencyMismatch
	}

	localAmount, err := local.Amount()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAmountMismatch, err)
	}
	remoteAmount := money.FromDecimal(remote.Amount, money.Currency(remote.Currency))
	if !localAmount.Equal(remoteAmount) {
		return ErrAmountMismatch
	}
	return nil
}
