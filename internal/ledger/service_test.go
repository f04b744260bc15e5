package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/moneymint/moneymint/internal/shared"
	_ "github.com/moneymint/moneymint/internal/testing/guard"
)

type memoryRepo struct {
	mu           sync.Mutex
	customers    map[string]Customer
	transactions []Transaction
	failInsert   bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: make(map[string]Customer)}
}

type memoryTx struct {
	repo       *memoryRepo
	aggregates map[string][3]decimal.Decimal
	staged     []Transaction
}

func (r *memoryRepo) WithLedgerTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// The mutex plays the part of the row lock: same-customer writers
	// serialize, and staged writes apply only on success.
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, aggregates: make(map[string][3]decimal.Decimal)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, agg := range tx.aggregates {
		customer := r.customers[id]
		customer.TotalCredit = agg[0]
		customer.TotalPaid = agg[1]
		customer.Balance = agg[2]
		customer.UpdatedAt = time.Now().UTC()
		r.customers[id] = customer
	}
	r.transactions = append(r.transactions, tx.staged...)
	return nil
}

func (tx *memoryTx) GetCustomerForUpdate(ctx context.Context, ownerID, id string) (Customer, error) {
	customer, ok := tx.repo.customers[id]
	if !ok || customer.OwnerID != ownerID {
		return Customer{}, shared.ErrNotFound
	}
	return customer, nil
}

func (tx *memoryTx) UpdateCustomerAggregates(ctx context.Context, id string, totalCredit, totalPaid, balance decimal.Decimal) error {
	tx.aggregates[id] = [3]decimal.Decimal{totalCredit, totalPaid, balance}
	return nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, entry Transaction) error {
	if tx.repo.failInsert {
		return errors.New("storage: insert failed")
	}
	tx.staged = append(tx.staged, entry)
	return nil
}

func (r *memoryRepo) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[customer.ID] = customer
	return customer, nil
}

func (r *memoryRepo) GetCustomer(ctx context.Context, ownerID, id string) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	customer, ok := r.customers[id]
	if !ok || customer.OwnerID != ownerID {
		return Customer{}, shared.ErrNotFound
	}
	return customer, nil
}

func (r *memoryRepo) ListCustomers(ctx context.Context, ownerID string) ([]Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	customers := []Customer{}
	for _, customer := range r.customers {
		if customer.OwnerID == ownerID {
			customers = append(customers, customer)
		}
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].UpdatedAt.After(customers[j].UpdatedAt) })
	return customers, nil
}

func (r *memoryRepo) UpdateCustomerFields(ctx context.Context, ownerID, id string, update CustomerUpdate) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	customer, ok := r.customers[id]
	if !ok || customer.OwnerID != ownerID {
		return Customer{}, shared.ErrNotFound
	}
	if update.Name != nil {
		customer.Name = *update.Name
	}
	if update.Phone != nil {
		customer.Phone = *update.Phone
	}
	if update.Email != nil {
		customer.Email = *update.Email
	}
	if update.Address != nil {
		customer.Address = *update.Address
	}
	if update.Notes != nil {
		customer.Notes = *update.Notes
	}
	if update.IsActive != nil {
		customer.IsActive = *update.IsActive
	}
	customer.UpdatedAt = time.Now().UTC()
	r.customers[id] = customer
	return customer, nil
}

func (r *memoryRepo) DeleteCustomer(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	customer, ok := r.customers[id]
	if !ok || customer.OwnerID != ownerID {
		return shared.ErrNotFound
	}
	delete(r.customers, id)
	remaining := r.transactions[:0]
	for _, entry := range r.transactions {
		if entry.CustomerID != customer.ID {
			remaining = append(remaining, entry)
		}
	}
	r.transactions = remaining
	return nil
}

func (r *memoryRepo) ListTransactionsByCustomer(ctx context.Context, ownerID, customerID string) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	transactions := []Transaction{}
	for _, entry := range r.transactions {
		if entry.OwnerID == ownerID && entry.CustomerID == customerID {
			transactions = append(transactions, entry)
		}
	}
	sort.Slice(transactions, func(i, j int) bool { return transactions[i].TransactionDate.After(transactions[j].TransactionDate) })
	return transactions, nil
}

func (r *memoryRepo) ListTransactionsInRange(ctx context.Context, ownerID string, from, to time.Time, txType TransactionType) ([]CollectionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := []CollectionEntry{}
	for _, entry := range r.transactions {
		if entry.OwnerID != ownerID {
			continue
		}
		if entry.TransactionDate.Before(from) || entry.TransactionDate.After(to) {
			continue
		}
		if txType != "" && entry.Type != txType {
			continue
		}
		name := r.customers[entry.CustomerID].Name
		entries = append(entries, CollectionEntry{
			TransactionID:   entry.ID,
			CustomerID:      entry.CustomerID,
			CustomerName:    name,
			Amount:          entry.Amount,
			Type:            entry.Type,
			Description:     entry.Description,
			TransactionDate: entry.TransactionDate,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TransactionDate.After(entries[j].TransactionDate) })
	return entries, nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) LedgerChanged(ctx context.Context, ownerID string) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func money(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	amount, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return amount
}

func requireAmount(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, actual.Equal(money(t, expected)), "expected %s, got %s", expected, actual)
}

func TestCreateCustomerZeroAggregates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, "owner-1", CustomerInput{Name: "Ravi"})
	require.NoError(t, err)
	require.NotEmpty(t, customer.ID)
	require.True(t, customer.IsActive)
	requireAmount(t, "0", customer.TotalCredit)
	requireAmount(t, "0", customer.TotalPaid)
	requireAmount(t, "0", customer.Balance)
}

func TestCreateCustomerRequiresName(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)

	_, err := svc.CreateCustomer(context.Background(), "owner-1", CustomerInput{Name: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.customers)
}

func TestOpeningCreditEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	result, err := svc.CreateCustomerWithOpeningEntry(ctx, "owner-1", CustomerInput{Name: "Ravi"},
		&OpeningEntry{Amount: money(t, "5000"), Type: TypeCredit, Description: "Opening balance"})
	require.NoError(t, err)
	require.NoError(t, result.OpeningFailure)
	require.NotNil(t, result.Opening)
	require.Equal(t, TypeCredit, result.Opening.Type)
	requireAmount(t, "5000", result.Opening.Amount)
	requireAmount(t, "5000", result.Customer.TotalCredit)
	requireAmount(t, "0", result.Customer.TotalPaid)
	requireAmount(t, "5000", result.Customer.Balance)

	transactions, err := svc.ListTransactions(ctx, "owner-1", result.Customer.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
}

func TestOpeningEntryPartialFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failInsert = true
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	result, err := svc.CreateCustomerWithOpeningEntry(ctx, "owner-1", CustomerInput{Name: "Ravi"},
		&OpeningEntry{Amount: money(t, "5000"), Type: TypeCredit})
	require.NoError(t, err)
	require.Error(t, result.OpeningFailure)

	// Customer survives, opening entry does not.
	customer, err := svc.GetCustomer(ctx, "owner-1", result.Customer.ID)
	require.NoError(t, err)
	requireAmount(t, "0", customer.TotalCredit)
	require.Empty(t, repo.transactions)
}

func TestRecordPaymentUpdatesBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	result, err := svc.CreateCustomerWithOpeningEntry(ctx, "owner-1", CustomerInput{Name: "Ravi"},
		&OpeningEntry{Amount: money(t, "5000"), Type: TypeCredit})
	require.NoError(t, err)

	_, customer, err := svc.RecordTransaction(ctx, "owner-1", TransactionInput{
		CustomerID: result.Customer.ID,
		Amount:     money(t, "2000"),
		Type:       TypePayment,
	})
	require.NoError(t, err)
	requireAmount(t, "5000", customer.TotalCredit)
	requireAmount(t, "2000", customer.TotalPaid)
	requireAmount(t, "3000", customer.Balance)

	transactions, err := svc.ListTransactions(ctx, "owner-1", result.Customer.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
}

func TestAggregateIdentity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, "owner-1", CustomerInput{Name: "Meena"})
	require.NoError(t, err)

	entries := []struct {
		amount string
		txType TransactionType
	}{
		{"120.50", TypeCredit},
		{"79.99", TypeCredit},
		{"50.25", TypePayment},
		{"300.00", TypeCredit},
		{"449.99", TypePayment},
	}
	for _, e := range entries {
		_, _, err := svc.RecordTransaction(ctx, "owner-1", TransactionInput{
			CustomerID: customer.ID,
			Amount:     money(t, e.amount),
			Type:       e.txType,
		})
		require.NoError(t, err)
	}

	updated, err := svc.GetCustomer(ctx, "owner-1", customer.ID)
	require.NoError(t, err)

	creditSum, paidSum := decimal.Zero, decimal.Zero
	transactions, err := svc.ListTransactions(ctx, "owner-1", customer.ID)
	require.NoError(t, err)
	for _, entry := range transactions {
		if entry.Type == TypeCredit {
			creditSum = creditSum.Add(entry.Amount)
		} else {
			paidSum = paidSum.Add(entry.Amount)
		}
	}
	require.True(t, updated.TotalCredit.Equal(creditSum))
	require.True(t, updated.TotalPaid.Equal(paidSum))
	require.True(t, updated.Balance.Equal(updated.TotalCredit.Sub(updated.TotalPaid)))
	requireAmount(t, "500.50", updated.TotalCredit)
	requireAmount(t, "500.24", updated.TotalPaid)
	requireAmount(t, "0.26", updated.Balance)
}

func TestConcurrentCreditsDoNotLoseUpdates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, "owner-1", CustomerInput{Name: "Ravi"})
	require.NoError(t, err)

	const writers = 25
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.RecordTransaction(ctx, "owner-1", TransactionInput{
				CustomerID: customer.ID,
				Amount:     money(t, "100"),
				Type:       TypeCredit,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	updated, err := svc.GetCustomer(ctx, "owner-1", customer.ID)
	require.NoError(t, err)
	requireAmount(t, "2500", updated.TotalCredit)
	transactions, err := svc.ListTransactions(ctx, "owner-1", customer.ID)
	require.NoError(t, err)
	require.Len(t, transactions, writers)
}

func TestRecordTransactionValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, "owner-1", CustomerInput{Name: "Ravi"})
	require.NoError(t, err)

	for _, amount := range []string{"0", "-5"} {
		_, _, err := svc.RecordTransaction(ctx, "owner-1", TransactionInput{
			CustomerID: customer.ID,
			Amount:     money(t, amount),
			Type:       TypeCredit,
		})
		require.ErrorIs(t, err, shared.ErrValidation)
	}
	_, _, err = svc.RecordTransaction(ctx, "owner-1", TransactionInput{
		CustomerID: customer.ID,
		Amount:     money(t, "10"),
		Type:       TransactionType("REFUND"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	// No side effects from any rejected write.
	require.Empty(t, repo.transactions)
	unchanged, err := svc.GetCustomer(ctx, "owner-1", customer.ID)
	require.NoError(t, err)
	requireAmount(t, "0", unchanged.TotalCredit)
}

func TestRecordTransactionAtomicRollback(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, "owner-1", CustomerInput{Name: "Ravi"})
	require.NoError(t, err)

	repo.failInsert = true
	_, _, err = svc.RecordTransaction(ctx, "owner-1", TransactionInput{
		CustomerID: customer.ID,
		Amount:     money(t, "750"),
		Type:       TypeCredit,
	})
	require.Error(t, err)

	unchanged, err := svc.GetCustomer(ctx, "owner-1", customer.ID)
	require.NoError(t, err)
	requireAmount(t, "0", unchanged.TotalCredit)
	require.Empty(t, repo.transactions)
}

func TestRecordTransactionUnknownCustomer(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)

	_, _, err := svc.RecordTransaction(context.Background(), "owner-1", TransactionInput{
		CustomerID: "6f1e8a52-74b5-4f0e-9f2e-4dfc8f4b1a33",
		Amount:     money(t, "10"),
		Type:       TypeCredit,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOwnerScoping(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, "owner-1", CustomerInput{Name: "Ravi"})
	require.NoError(t, err)

	_, err = svc.GetCustomer(ctx, "owner-2", customer.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, _, err = svc.RecordTransaction(ctx, "owner-2", TransactionInput{
		CustomerID: customer.ID,
		Amount:     money(t, "10"),
		Type:       TypeCredit,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	customers, err := svc.ListCustomers(ctx, "owner-2")
	require.NoError(t, err)
	require.Empty(t, customers)
}

func TestDailyCollectionsPaymentsOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, "owner-1", CustomerInput{Name: "Ravi"})
	require.NoError(t, err)

	today := time.Date(2025, time.March, 14, 11, 30, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	fixtures := []struct {
		amount string
		txType TransactionType
		date   time.Time
	}{
		{"5000", TypeCredit, today},
		{"2000", TypePayment, today},
		{"900", TypePayment, yesterday},
	}
	for _, f := range fixtures {
		_, _, err := svc.RecordTransaction(ctx, "owner-1", TransactionInput{
			CustomerID:      customer.ID,
			Amount:          money(t, f.amount),
			Type:            f.txType,
			TransactionDate: f.date,
		})
		require.NoError(t, err)
	}

	summary, err := svc.DailyCollections(ctx, "owner-1", today)
	require.NoError(t, err)
	require.Equal(t, "2025-03-14", summary.Date)
	requireAmount(t, "2000", summary.TotalCollection)
	require.Len(t, summary.Transactions, 1)
	require.Equal(t, TypePayment, summary.Transactions[0].Type)
	require.Equal(t, "Ravi", summary.Transactions[0].CustomerName)

	// The reported total always equals the sum of the listed amounts.
	sum := decimal.Zero
	for _, entry := range summary.Transactions {
		sum = sum.Add(entry.Amount)
	}
	require.True(t, summary.TotalCollection.Equal(sum))
}

func TestDeleteCustomerCascades(t *testing.T) {
	repo := newMemoryRepo()
	invalidator := &countingInvalidator{}
	svc := NewService(repo, nil, invalidator, nil, nil, nil)
	ctx := context.Background()

	result, err := svc.CreateCustomerWithOpeningEntry(ctx, "owner-1", CustomerInput{Name: "Ravi"},
		&OpeningEntry{Amount: money(t, "5000"), Type: TypeCredit})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCustomer(ctx, "owner-1", result.Customer.ID))

	_, err = svc.GetCustomer(ctx, "owner-1", result.Customer.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	transactions, err := svc.ListTransactions(ctx, "owner-1", result.Customer.ID)
	require.NoError(t, err)
	require.Empty(t, transactions)
	require.GreaterOrEqual(t, invalidator.calls, 3)
}

func TestAmountRoundedToPaise(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, "owner-1", CustomerInput{Name: "Ravi"})
	require.NoError(t, err)

	entry, _, err := svc.RecordTransaction(ctx, "owner-1", TransactionInput{
		CustomerID: customer.ID,
		Amount:     money(t, "99.999"),
		Type:       TypeCredit,
	})
	require.NoError(t, err)
	requireAmount(t, "100.00", entry.Amount)
}
