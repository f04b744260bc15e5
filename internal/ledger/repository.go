package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moneymint/moneymint/internal/platform/db"
	"github.com/moneymint/moneymint/internal/shared"
)

const customerColumns = `id, owner_id, name, phone, email, address, notes, total_credit, total_paid, balance, is_active, created_at, updated_at`

const transactionColumns = `id, customer_id, owner_id, amount, type, description, transaction_date, created_at`

// Repository persists ledger data in PostgreSQL. Every query is scoped by
// owner id; a row belonging to another owner is indistinguishable from a
// missing one.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds how long a write
// waits for the customer row lock before surfacing a busy error; zero keeps
// the server default.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// WithLedgerTx executes the callback inside a repeatable-read transaction
// with the configured lock timeout applied.
func (r *Repository) WithLedgerTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if r.lockTimeout > 0 {
			// SET LOCAL scopes the timeout to this transaction only.
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())); err != nil {
				return fmt.Errorf("ledger: set lock timeout: %w", err)
			}
		}
		return fn(ctx, &txRepository{tx: tx})
	})
}

// CreateCustomer inserts a new customer row.
func (r *Repository) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO customers (id, owner_id, name, phone, email, address, notes, total_credit, total_paid, balance, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		customer.ID, customer.OwnerID, customer.Name, customer.Phone, customer.Email, customer.Address, customer.Notes,
		customer.TotalCredit, customer.TotalPaid, customer.Balance, customer.IsActive, customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		return Customer{}, fmt.Errorf("ledger: insert customer: %w", err)
	}
	return customer, nil
}

// GetCustomer returns the owner's customer by id.
func (r *Repository) GetCustomer(ctx context.Context, ownerID, id string) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE owner_id=$1 AND id=$2`, ownerID, id)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, shared.ErrNotFound
		}
		return Customer{}, fmt.Errorf("ledger: get customer: %w", err)
	}
	return customer, nil
}

// ListCustomers returns the owner's customers ordered by most recently
// updated first. The order is stable because updated_at is refreshed on
// every mutation including balance updates.
func (r *Repository) ListCustomers(ctx context.Context, ownerID string) ([]Customer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers WHERE owner_id=$1 ORDER BY updated_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list customers: %w", err)
	}
	defer rows.Close()
	customers := []Customer{}
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan customer: %w", err)
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

// UpdateCustomerFields patches non-aggregate customer fields. Aggregates are
// never touched here; RecordTransaction owns them.
func (r *Repository) UpdateCustomerFields(ctx context.Context, ownerID, id string, update CustomerUpdate) (Customer, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{ownerID, id}
	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if update.Name != nil {
		appendSet("name", *update.Name)
	}
	if update.Phone != nil {
		appendSet("phone", *update.Phone)
	}
	if update.Email != nil {
		appendSet("email", *update.Email)
	}
	if update.Address != nil {
		appendSet("address", *update.Address)
	}
	if update.Notes != nil {
		appendSet("notes", *update.Notes)
	}
	if update.IsActive != nil {
		appendSet("is_active", *update.IsActive)
	}
	query := `UPDATE customers SET ` + strings.Join(sets, ", ") + ` WHERE owner_id=$1 AND id=$2 RETURNING ` + customerColumns
	row := r.pool.QueryRow(ctx, query, args...)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, shared.ErrNotFound
		}
		return Customer{}, fmt.Errorf("ledger: update customer: %w", err)
	}
	return customer, nil
}

// DeleteCustomer removes the owner's customer; the transactions FK cascades.
func (r *Repository) DeleteCustomer(ctx context.Context, ownerID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("ledger: delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListTransactionsByCustomer returns a customer's entries, newest
// transaction date first.
func (r *Repository) ListTransactionsByCustomer(ctx context.Context, ownerID, customerID string) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE owner_id=$1 AND customer_id=$2 ORDER BY transaction_date DESC, created_at DESC`, ownerID, customerID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list transactions: %w", err)
	}
	defer rows.Close()
	transactions := []Transaction{}
	for rows.Next() {
		var entry Transaction
		if err := rows.Scan(&entry.ID, &entry.CustomerID, &entry.OwnerID, &entry.Amount, &entry.Type, &entry.Description, &entry.TransactionDate, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan transaction: %w", err)
		}
		transactions = append(transactions, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

// ListTransactionsInRange returns the owner's entries within the inclusive
// range, joined with the owning customer's name. An empty txType lists all
// entry types.
func (r *Repository) ListTransactionsInRange(ctx context.Context, ownerID string, from, to time.Time, txType TransactionType) ([]CollectionEntry, error) {
	query := `SELECT t.id, t.customer_id, c.name, t.amount, t.type, t.description, t.transaction_date
FROM transactions t
JOIN customers c ON c.id = t.customer_id
WHERE t.owner_id=$1 AND t.transaction_date BETWEEN $2 AND $3`
	args := []any{ownerID, from, to}
	if txType != "" {
		args = append(args, string(txType))
		query += ` AND t.type = $4`
	}
	query += ` ORDER BY t.transaction_date DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list transactions in range: %w", err)
	}
	defer rows.Close()
	entries := []CollectionEntry{}
	for rows.Next() {
		var entry CollectionEntry
		if err := rows.Scan(&entry.TransactionID, &entry.CustomerID, &entry.CustomerName, &entry.Amount, &entry.Type, &entry.Description, &entry.TransactionDate); err != nil {
			return nil, fmt.Errorf("ledger: scan collection entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes,
		&c.TotalCredit, &c.TotalPaid, &c.Balance, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
