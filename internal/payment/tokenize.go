package payment

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"paygate/internal/common/events"
	"paygate/internal/payment/domain"
)

// saveCard tokenizes the card held by the session and stores it against the
// customer. Guest orders have nobody to save the card for.
func (o *Orchestrator) saveCard(ctx context.Context, order *domain.Order, sessionID string) error {
	if order.CustomerID == "" {
		o.log(ctx).Debug("skipping card save for guest order", "order_id", order.ID)
		return nil
	}

	token, err := o.gateway.CreateCardToken(ctx, sessionID)
	if err != nil {
		o.log(ctx).Error("card tokenization failed", "order_id", order.ID, "error", err)
		return fmt.Errorf("tokenizing card: %w", err)
	}

	card, err := savedCard(order.CustomerID, token)
	if err != nil {
		o.log(ctx).Error("unusable card token", "order_id", order.ID, "error", err)
		return err
	}

	if err := o.vault.SaveCard(ctx, card); err != nil {
		o.log(ctx).Error("failed to save card", "order_id", order.ID, "error", err)
		return fmt.Errorf("saving card: %w", err)
	}

	o.log(ctx).Info("card saved", "order_id", order.ID, "customer_id", order.CustomerID, "brand", card.Brand)
	o.publish(ctx, events.EventCardSaved, order.ID, events.CardSavedData{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Brand:      card.Brand,
		Last4:      card.Last4,
	})
	return nil
}

// savedCard maps a gateway token to a saved card. The gateway masks the
// number, leaving the last four digits, and reports expiry as MMYY.
func savedCard(customerID string, t domain.CardToken) (domain.SavedCard, error) {
	if t.Token == "" {
		return domain.SavedCard{}, &IntegrityError{Op: "create card token", Detail: "missing token"}
	}
	if len(t.Number) < 4 {
		return domain.SavedCard{}, &IntegrityError{Op: "create card token", Detail: "missing card number"}
	}
	if len(t.Expiry) != 4 || !digits(t.Expiry) {
		return domain.SavedCard{}, &IntegrityError{Op: "create card token", Detail: fmt.Sprintf("malformed expiry %q", t.Expiry)}
	}
	month := t.Expiry[:2]
	if month < "01" || month > "12" {
		return domain.SavedCard{}, &IntegrityError{Op: "create card token", Detail: fmt.Sprintf("malformed expiry %q", t.Expiry)}
	}

	return domain.SavedCard{
		ID:          ulid.Make().String(),
		CustomerID:  customerID,
		Token:       t.Token,
		Brand:       t.Brand,
		Last4:       t.Number[len(t.Number)-4:],
		ExpiryMonth: month,
		ExpiryYear:  "20" + t.Expiry[2:],
	}, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
