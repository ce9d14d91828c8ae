package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"paygate/internal/common/database"
	"paygate/internal/payment/domain"
)

// PostgresStore keeps orders in the orders and order_notes tables.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts an order.
func (s *PostgresStore) Create(ctx context.Context, order *domain.Order) error {
	billing, err := json.Marshal(order.Billing)
	if err != nil {
		return fmt.Errorf("marshaling billing: %w", err)
	}
	shipping, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("marshaling shipping: %w", err)
	}
	meta := order.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	metadata, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	status := order.Status
	if status == "" {
		status = domain.StatusPending
	}

	query := `
		INSERT INTO orders (
			id, customer_id, email, total, currency, status,
			billing, shipping, metadata, transaction_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
	`

	_, err = s.db.Pool().Exec(ctx, query,
		order.ID,
		order.CustomerID,
		order.Email,
		order.Total,
		order.Currency,
		status,
		billing,
		shipping,
		metadata,
		order.TransactionID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("order %s already exists: %w", order.ID, database.ErrConflict)
		}
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

// Get retrieves an order by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, customer_id, email, total, currency, status,
			   billing, shipping, metadata, COALESCE(transaction_id, ''), version
		FROM orders
		WHERE id = $1
	`
	return scanOrder(s.db.Pool().QueryRow(ctx, query, id), id)
}

func scanOrder(row pgx.Row, id string) (*domain.Order, error) {
	var (
		o                           domain.Order
		billing, shipping, metadata []byte
	)
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.Email,
		&o.Total,
		&o.Currency,
		&o.Status,
		&billing,
		&shipping,
		&metadata,
		&o.TransactionID,
		&o.Version,
	)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}

	if err := json.Unmarshal(billing, &o.Billing); err != nil {
		return nil, fmt.Errorf("decoding billing: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return nil, fmt.Errorf("decoding shipping: %w", err)
	}
	if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if o.Metadata == nil {
		o.Metadata = domain.Metadata{}
	}
	return &o, nil
}

// SetStatus moves the order to status.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.Pool().Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	return nil
}

// SetMeta merges values into the order's metadata.
func (s *PostgresStore) SetMeta(ctx context.Context, id string, values map[string]string) error {
	patch, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	query := `
		UPDATE orders
		SET metadata = metadata || $2::jsonb, version = version + 1, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.Pool().Exec(ctx, query, id, patch)
	if err != nil {
		return fmt.Errorf("updating order metadata: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	return nil
}

// CompareAndSetMeta writes newValue only if key holds oldValue. The comparison
// and the write are one statement, so concurrent callers serialize on the row.
func (s *PostgresStore) CompareAndSetMeta(ctx context.Context, id, key, oldValue, newValue string) (bool, error) {
	query := `
		UPDATE orders
		SET metadata = jsonb_set(metadata, ARRAY[$2::text], to_jsonb($4::text)),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND COALESCE(metadata->>$2, '') = $3
	`
	result, err := s.db.Pool().Exec(ctx, query, id, key, oldValue, newValue)
	if err != nil {
		return false, fmt.Errorf("compare-and-set %s: %w", key, err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.Pool().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking order: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	return false, nil
}

// AddNote appends an audit note.
func (s *PostgresStore) AddNote(ctx context.Context, id, note string) error {
	return addNote(ctx, s.db.Pool(), id, note)
}

func addNote(ctx context.Context, q database.Querier, id, note string) error {
	_, err := q.Exec(ctx, `INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`, id, note)
	if err != nil {
		return fmt.Errorf("inserting order note: %w", err)
	}
	return nil
}

// Notes returns the order's notes, oldest first.
func (s *PostgresStore) Notes(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.Pool().Query(ctx, `SELECT note FROM order_notes WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing order notes: %w", err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning order note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Settle marks the order paid in one transaction. The row lock taken by
// SELECT ... FOR UPDATE makes the paid check and the write atomic.
func (s *PostgresStore) Settle(ctx context.Context, id string, st domain.Settlement) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var paid string
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(metadata->>'order_paid', '') FROM orders WHERE id = $1 FOR UPDATE`, id,
		).Scan(&paid)
		if err != nil {
			if database.IsNotFound(err) {
				return fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
			}
			return fmt.Errorf("locking order: %w", err)
		}
		if (domain.Metadata{domain.MetaOrderPaid: paid}).Flag(domain.MetaOrderPaid) {
			return domain.ErrAlreadyPaid
		}

		patch, err := json.Marshal(map[string]string{
			domain.MetaOrderPaid:     domain.FlagOn,
			domain.MetaOrderCaptured: captureFlag(st.Captured),
			domain.MetaPaymentClaim:  "",
		})
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}

		query := `
			UPDATE orders
			SET metadata = metadata || $2::jsonb,
				status = $3,
				transaction_id = $4,
				paid_at = NOW(),
				version = version + 1,
				updated_at = NOW()
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, query, id, patch, domain.StatusProcessing, st.TransactionID); err != nil {
			return fmt.Errorf("settling order: %w", err)
		}

		if st.Note != "" {
			return addNote(ctx, tx, id, st.Note)
		}
		return nil
	})
}
