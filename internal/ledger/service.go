package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/moneymint/moneymint/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithLedgerTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
	GetCustomer(ctx context.Context, ownerID, id string) (Customer, error)
	ListCustomers(ctx context.Context, ownerID string) ([]Customer, error)
	UpdateCustomerFields(ctx context.Context, ownerID, id string, update CustomerUpdate) (Customer, error)
	DeleteCustomer(ctx context.Context, ownerID, id string) error
	ListTransactionsByCustomer(ctx context.Context, ownerID, customerID string) ([]Transaction, error)
	ListTransactionsInRange(ctx context.Context, ownerID string, from, to time.Time, txType TransactionType) ([]CollectionEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort signals that ledger data changed for an owner. The signal
// is fire-and-forget; implementations must never fail the write.
type InvalidatorPort interface {
	LedgerChanged(ctx context.Context, ownerID string)
}

// CollectionsCache caches daily collection summaries keyed by owner version.
type CollectionsCache interface {
	BuildKey(ctx context.Context, ownerID string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error
}

// Service coordinates ledger operations. It is the only writer of
// transaction rows and the only mutator of customer aggregates.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator InvalidatorPort
	idempotency *shared.IdempotencyStore
	collections CollectionsCache
	metrics     *Metrics
	logger      *slog.Logger
}

// NewService builds Service. audit, invalidator, idempotency and collections
// may be nil; the corresponding behaviour is skipped.
func NewService(repo RepositoryPort, audit AuditPort, invalidator InvalidatorPort, idem *shared.IdempotencyStore, collections CollectionsCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, invalidator: invalidator, idempotency: idem, collections: collections, logger: logger}
}

// WithMetrics attaches write counters. Safe to skip; a nil Metrics is inert.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// CreateCustomer inserts a customer with zeroed aggregates.
func (s *Service) CreateCustomer(ctx context.Context, ownerID string, input CustomerInput) (Customer, error) {
	if ownerID == "" {
		return Customer{}, ErrOwnerRequired
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Customer{}, ErrNameRequired
	}
	now := time.Now().UTC()
	customer := Customer{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        input.Name,
		Phone:       input.Phone,
		Email:       input.Email,
		Address:     input.Address,
		Notes:       input.Notes,
		TotalCredit: decimal.Zero,
		TotalPaid:   decimal.Zero,
		Balance:     decimal.Zero,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		s.logger.Error("create customer", slog.String("owner_id", ownerID), slog.Any("error", err))
		return Customer{}, err
	}
	s.metrics.ObserveWrite("customer_create")
	s.recordAudit(ctx, ownerID, "ledger:customer_created", "customer", created.ID, map[string]any{"name": created.Name})
	s.signalChanged(ctx, ownerID)
	return created, nil
}

// CreateCustomerWithOpeningEntry composes customer creation with an optional
// opening transaction. The steps are deliberately not atomic: the customer
// does not yet exist for any concurrent writer to race against, and a failed
// opening entry is reported as partial success rather than rolled back.
func (s *Service) CreateCustomerWithOpeningEntry(ctx context.Context, ownerID string, input CustomerInput, opening *OpeningEntry) (CustomerCreation, error) {
	customer, err := s.CreateCustomer(ctx, ownerID, input)
	if err != nil {
		return CustomerCreation{}, err
	}
	result := CustomerCreation{Customer: customer}
	if opening == nil || opening.Amount.Sign() <= 0 {
		return result, nil
	}
	entry, updated, err := s.RecordTransaction(ctx, ownerID, TransactionInput{
		CustomerID:  customer.ID,
		Amount:      opening.Amount,
		Type:        opening.Type,
		Description: opening.Description,
	})
	if err != nil {
		s.logger.Warn("opening entry failed",
			slog.String("owner_id", ownerID),
			slog.String("customer_id", customer.ID),
			slog.Any("error", err))
		result.OpeningFailure = err
		return result, nil
	}
	result.Customer = updated
	result.Opening = &entry
	return result, nil
}

// RecordTransaction appends a ledger entry and recomputes the customer's
// aggregates inside one atomic unit. The customer row is read under an
// exclusive lock, so concurrent writes against the same customer serialize
// and the computation never sees a stale snapshot. Either both the
// aggregate update and the entry insert commit, or neither does.
func (s *Service) RecordTransaction(ctx context.Context, ownerID string, input TransactionInput) (Transaction, Customer, error) {
	if ownerID == "" {
		return Transaction{}, Customer{}, ErrOwnerRequired
	}
	if !input.Type.Valid() {
		return Transaction{}, Customer{}, ErrInvalidType
	}
	amount := input.Amount.Round(2)
	if amount.Sign() <= 0 {
		return Transaction{}, Customer{}, ErrInvalidAmount
	}
	if _, err := uuid.Parse(input.CustomerID); err != nil {
		return Transaction{}, Customer{}, fmt.Errorf("%w: invalid customer id", shared.ErrValidation)
	}

	insertedKey := false
	idemKey := ""
	if s.idempotency != nil && input.IdempotencyKey != "" {
		idemKey = fmt.Sprintf("%s:%s", ownerID, input.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "ledger"); err != nil {
			return Transaction{}, Customer{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	transactionDate := input.TransactionDate
	if transactionDate.IsZero() {
		transactionDate = now
	}
	entry := Transaction{
		ID:              uuid.NewString(),
		CustomerID:      input.CustomerID,
		Amount:          amount,
		Type:            input.Type,
		Description:     input.Description,
		TransactionDate: transactionDate,
		CreatedAt:       now,
	}
	var updated Customer

	err := s.repo.WithLedgerTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.GetCustomerForUpdate(ctx, ownerID, input.CustomerID)
		if err != nil {
			return err
		}
		newTotalCredit := customer.TotalCredit
		newTotalPaid := customer.TotalPaid
		if input.Type == TypeCredit {
			newTotalCredit = newTotalCredit.Add(amount)
		} else {
			newTotalPaid = newTotalPaid.Add(amount)
		}
		newBalance := newTotalCredit.Sub(newTotalPaid)
		if err := tx.UpdateCustomerAggregates(ctx, customer.ID, newTotalCredit, newTotalPaid, newBalance); err != nil {
			return err
		}
		entry.OwnerID = customer.OwnerID
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		updated = customer
		updated.TotalCredit = newTotalCredit
		updated.TotalPaid = newTotalPaid
		updated.Balance = newBalance
		updated.UpdatedAt = now
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrBusy) {
			s.logger.Error("record transaction",
				slog.String("owner_id", ownerID),
				slog.String("customer_id", input.CustomerID),
				slog.Any("error", err))
		}
		return Transaction{}, Customer{}, err
	}

	s.metrics.ObserveWrite(string(entry.Type))
	s.recordAudit(ctx, ownerID, fmt.Sprintf("ledger:%s", entry.Type), "transaction", entry.ID, map[string]any{
		"customer_id": entry.CustomerID,
		"amount":      entry.Amount.String(),
	})
	s.signalChanged(ctx, ownerID)
	return entry, updated, nil
}

// GetCustomer returns the owner's customer by id.
func (s *Service) GetCustomer(ctx context.Context, ownerID, id string) (Customer, error) {
	if ownerID == "" {
		return Customer{}, ErrOwnerRequired
	}
	return s.repo.GetCustomer(ctx, ownerID, id)
}

// ListCustomers returns the owner's customers, most recently updated first.
func (s *Service) ListCustomers(ctx context.Context, ownerID string) ([]Customer, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	return s.repo.ListCustomers(ctx, ownerID)
}

// UpdateCustomer patches non-aggregate fields.
func (s *Service) UpdateCustomer(ctx context.Context, ownerID, id string, update CustomerUpdate) (Customer, error) {
	if ownerID == "" {
		return Customer{}, ErrOwnerRequired
	}
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		if trimmed == "" {
			return Customer{}, ErrNameRequired
		}
		update.Name = &trimmed
	}
	customer, err := s.repo.UpdateCustomerFields(ctx, ownerID, id, update)
	if err != nil {
		return Customer{}, err
	}
	s.metrics.ObserveWrite("customer_update")
	s.recordAudit(ctx, ownerID, "ledger:customer_updated", "customer", id, nil)
	s.signalChanged(ctx, ownerID)
	return customer, nil
}

// DeleteCustomer removes the customer and, through the cascade, its entries.
func (s *Service) DeleteCustomer(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return ErrOwnerRequired
	}
	if err := s.repo.DeleteCustomer(ctx, ownerID, id); err != nil {
		return err
	}
	s.metrics.ObserveWrite("customer_delete")
	s.recordAudit(ctx, ownerID, "ledger:customer_deleted", "customer", id, nil)
	s.signalChanged(ctx, ownerID)
	return nil
}

// ListTransactions returns a customer's entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, ownerID, customerID string) ([]Transaction, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	return s.repo.ListTransactionsByCustomer(ctx, ownerID, customerID)
}

// DailyCollections summarises the PAYMENT entries recorded on the given day
// in the date's own location. Only payments count: credits record money lent
// out, not collected, so both the listing and the total exclude them.
func (s *Service) DailyCollections(ctx context.Context, ownerID string, date time.Time) (DailyCollections, error) {
	if ownerID == "" {
		return DailyCollections{}, ErrOwnerRequired
	}
	if date.IsZero() {
		date = time.Now()
	}
	year, month, day := date.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, date.Location())
	end := start.Add(24*time.Hour - time.Nanosecond)

	load := func(ctx context.Context) (interface{}, error) {
		entries, err := s.repo.ListTransactionsInRange(ctx, ownerID, start, end, TypePayment)
		if err != nil {
			return nil, err
		}
		total := decimal.Zero
		for _, entry := range entries {
			total = total.Add(entry.Amount)
		}
		return DailyCollections{
			Date:            start.Format("2006-01-02"),
			TotalCollection: total,
			Transactions:    entries,
		}, nil
	}

	if s.collections == nil {
		result, err := load(ctx)
		if err != nil {
			return DailyCollections{}, err
		}
		return result.(DailyCollections), nil
	}
	key, err := s.collections.BuildKey(ctx, ownerID, "collections", ownerID, start.Format("2006-01-02"))
	if err != nil {
		s.logger.Warn("collections cache key", slog.Any("error", err))
		result, err := load(ctx)
		if err != nil {
			return DailyCollections{}, err
		}
		return result.(DailyCollections), nil
	}
	var summary DailyCollections
	if err := s.collections.FetchJSON(ctx, key, &summary, load); err != nil {
		return DailyCollections{}, err
	}
	return summary, nil
}

func (s *Service) recordAudit(ctx context.Context, ownerID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		OwnerID:  ownerID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) signalChanged(ctx context.Context, ownerID string) {
	if s.invalidator == nil {
		return
	}
	s.invalidator.LedgerChanged(ctx, ownerID)
}
