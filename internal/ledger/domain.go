package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/moneymint/moneymint/internal/shared"
)

// TransactionType enumerates supported ledger entry types.
type TransactionType string

const (
	// TypeCredit increases what the customer owes.
	TypeCredit TransactionType = "CREDIT"
	// TypePayment decreases what the customer owes (money collected).
	TypePayment TransactionType = "PAYMENT"
)

// Valid reports whether the type is one of the known entry types.
func (t TransactionType) Valid() bool {
	return t == TypeCredit || t == TypePayment
}

// Customer is a ledger account holder. TotalCredit, TotalPaid and Balance
// are maintained exclusively by RecordTransaction; Balance always equals
// TotalCredit minus TotalPaid.
type Customer struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone,omitempty"`
	Email       string          `json:"email,omitempty"`
	Address     string          `json:"address,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	TotalCredit decimal.Decimal `json:"totalCredit"`
	TotalPaid   decimal.Decimal `json:"totalPaid"`
	Balance     decimal.Decimal `json:"balance"`
	IsActive    bool            `json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Transaction is an immutable ledger entry. TransactionDate is when the
// economic event occurred and may be backdated; CreatedAt is always the row
// creation time.
type Transaction struct {
	ID              string          `json:"id"`
	CustomerID      string          `json:"customerId"`
	OwnerID         string          `json:"ownerId"`
	Amount          decimal.Decimal `json:"amount"`
	Type            TransactionType `json:"type"`
	Description     string          `json:"description,omitempty"`
	TransactionDate time.Time       `json:"transactionDate"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// CustomerInput carries caller-settable fields for creating a customer.
// Aggregate fields are initialised to zero regardless of input.
type CustomerInput struct {
	Name    string
	Phone   string
	Email   string
	Address string
	Notes   string
}

// CustomerUpdate carries a partial update of non-aggregate fields.
// Nil pointers leave the stored value untouched.
type CustomerUpdate struct {
	Name     *string
	Phone    *string
	Email    *string
	Address  *string
	Notes    *string
	IsActive *bool
}

// TransactionInput describes a request to record a ledger entry.
type TransactionInput struct {
	CustomerID      string
	Amount          decimal.Decimal
	Type            TransactionType
	Description     string
	TransactionDate time.Time
	IdempotencyKey  string
}

// OpeningEntry is the optional first transaction bundled with a new customer.
type OpeningEntry struct {
	Amount      decimal.Decimal
	Type        TransactionType
	Description string
}

// CustomerCreation reports the outcome of creating a customer with an
// optional opening entry. The two steps are deliberately not atomic: a
// failed opening entry leaves the customer in place and is reported here.
type CustomerCreation struct {
	Customer       Customer
	Opening        *Transaction
	OpeningFailure error
}

// CollectionEntry is a transaction joined with its customer's name, used by
// daily collection reports.
type CollectionEntry struct {
	TransactionID   string          `json:"transactionId"`
	CustomerID      string          `json:"customerId"`
	CustomerName    string          `json:"customerName"`
	Amount          decimal.Decimal `json:"amount"`
	Type            TransactionType `json:"type"`
	Description     string          `json:"description,omitempty"`
	TransactionDate time.Time       `json:"transactionDate"`
}

// DailyCollections summarises the payments collected on a single day.
// TotalCollection is the exact decimal sum of the listed amounts.
type DailyCollections struct {
	Date            string            `json:"date"`
	TotalCollection decimal.Decimal   `json:"totalCollection"`
	Transactions    []CollectionEntry `json:"transactions"`
}

var (
	// ErrNameRequired indicates a missing or blank customer name.
	ErrNameRequired = fmt.Errorf("%w: customer name is required", shared.ErrValidation)
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be greater than zero", shared.ErrValidation)
	// ErrInvalidType indicates an unknown transaction type.
	ErrInvalidType = fmt.Errorf("%w: transaction type must be CREDIT or PAYMENT", shared.ErrValidation)
	// ErrOwnerRequired indicates a missing owner id.
	ErrOwnerRequired = fmt.Errorf("%w: owner id is required", shared.ErrValidation)
)
