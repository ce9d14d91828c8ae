package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"paygate/internal/common/database"
	"paygate/internal/payment/domain"
)

// MemoryCardVault keeps saved cards in process.
type MemoryCardVault struct {
	mu    sync.Mutex
	cards map[string]domain.SavedCard
}

// NewMemoryCardVault creates an empty vault.
func NewMemoryCardVault() *MemoryCardVault {
	return &MemoryCardVault{cards: make(map[string]domain.SavedCard)}
}

// SaveCard stores a card. Saving the same gateway token for a customer twice
// keeps the first record.
func (v *MemoryCardVault) SaveCard(_ context.Context, card domain.SavedCard) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, c := range v.cards {
		if c.CustomerID == card.CustomerID && c.Token == card.Token {
			return nil
		}
	}
	v.cards[card.ID] = card
	return nil
}

// ListCards returns the customer's cards ordered by id.
func (v *MemoryCardVault) ListCards(_ context.Context, customerID string) ([]domain.SavedCard, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []domain.SavedCard
	for _, c := range v.cards {
		if c.CustomerID == customerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PostgresCardVault keeps saved cards in the saved_cards table.
type PostgresCardVault struct {
	db *database.DB
}

// NewPostgresCardVault creates a PostgresCardVault.
func NewPostgresCardVault(db *database.DB) *PostgresCardVault {
	return &PostgresCardVault{db: db}
}

// SaveCard stores a card, ignoring a token the customer already has.
func (v *PostgresCardVault) SaveCard(ctx context.Context, card domain.SavedCard) error {
	query := `
		INSERT INTO saved_cards (id, customer_id, gateway_token, brand, last4, expiry_month, expiry_year)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (customer_id, gateway_token) DO NOTHING
	`
	_, err := v.db.Pool().Exec(ctx, query,
		card.ID,
		card.CustomerID,
		card.Token,
		card.Brand,
		card.Last4,
		card.ExpiryMonth,
		card.ExpiryYear,
	)
	if err != nil {
		return fmt.Errorf("inserting saved card: %w", err)
	}
	return nil
}

// ListCards returns the customer's cards, newest first.
func (v *PostgresCardVault) ListCards(ctx context.Context, customerID string) ([]domain.SavedCard, error) {
	query := `
		SELECT id, customer_id, gateway_token, brand, last4, expiry_month, expiry_year
		FROM saved_cards
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`
	rows, err := v.db.Pool().Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing saved cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.SavedCard
	for rows.Next() {
		var c domain.SavedCard
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Token, &c.Brand, &c.Last4, &c.ExpiryMonth, &c.ExpiryYear); err != nil {
			return nil, fmt.Errorf("scanning saved card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
