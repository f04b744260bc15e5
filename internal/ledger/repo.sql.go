package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/moneymint/moneymint/internal/shared"
)

// TxRepository exposes the operations available inside a ledger write
// transaction.
type TxRepository interface {
	GetCustomerForUpdate(ctx context.Context, ownerID, id string) (Customer, error)
	UpdateCustomerAggregates(ctx context.Context, id string, totalCredit, totalPaid, balance decimal.Decimal) error
	InsertTransaction(ctx context.Context, entry Transaction) error
}

type txRepository struct {
	tx pgx.Tx
}

// GetCustomerForUpdate reads the customer under an exclusive row lock.
// Concurrent writers against the same customer queue here; writers against
// other customers are unaffected.
func (r *txRepository) GetCustomerForUpdate(ctx context.Context, ownerID, id string) (Customer, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE owner_id=$1 AND id=$2 FOR UPDATE`, ownerID, id)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, shared.ErrNotFound
		}
		if isLockTimeout(err) {
			return Customer{}, fmt.Errorf("%w: customer row locked", shared.ErrBusy)
		}
		return Customer{}, fmt.Errorf("ledger: lock customer: %w", err)
	}
	return customer, nil
}

// UpdateCustomerAggregates writes the recomputed totals. Only called with
// values derived from the snapshot read under lock.
func (r *txRepository) UpdateCustomerAggregates(ctx context.Context, id string, totalCredit, totalPaid, balance decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE customers SET total_credit=$2, total_paid=$3, balance=$4, updated_at=NOW() WHERE id=$1`,
		id, totalCredit, totalPaid, balance)
	if err != nil {
		return fmt.Errorf("ledger: update aggregates: %w", err)
	}
	return nil
}

// InsertTransaction appends the immutable ledger entry.
func (r *txRepository) InsertTransaction(ctx context.Context, entry Transaction) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transactions (id, customer_id, owner_id, amount, type, description, transaction_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.CustomerID, entry.OwnerID, entry.Amount, string(entry.Type), entry.Description, entry.TransactionDate, entry.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("ledger: insert transaction: %w", err)
	}
	return nil
}

// 55P03 is lock_not_available, raised when lock_timeout expires.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

// 23503 is foreign_key_violation.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
