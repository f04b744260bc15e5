package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/moneymint/moneymint/internal/ledger"
)

func amt(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return d
}

func TestFormatINRGrouping(t *testing.T) {
	require.Equal(t, "₹1,23,456.78", FormatINR(amt(t, "123456.78")))
	require.Equal(t, "₹500.00", FormatINR(amt(t, "500")))
}

func TestBuildStatementHTMLRunningBalance(t *testing.T) {
	customer := ledger.Customer{
		Name:        "Ravi Kumar",
		Phone:       "9876543210",
		TotalCredit: amt(t, "5000"),
		TotalPaid:   amt(t, "2000"),
		Balance:     amt(t, "3000"),
	}
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	// Newest first, as the transaction listing returns them.
	transactions := []ledger.Transaction{
		{Type: ledger.TypePayment, Amount: amt(t, "2000"), Description: "Weekly payment", TransactionDate: day.AddDate(0, 0, 4)},
		{Type: ledger.TypeCredit, Amount: amt(t, "5000"), Description: "Opening balance", TransactionDate: day},
	}

	html, err := BuildStatementHTML(customer, transactions)
	require.NoError(t, err)

	require.Contains(t, html, "Ravi Kumar")
	require.Contains(t, html, "9876543210")
	require.Contains(t, html, "Opening balance")
	require.Contains(t, html, "Weekly payment")
	require.Contains(t, html, "₹5,000.00")
	require.Contains(t, html, "₹3,000.00")

	// The credit row precedes the payment row: oldest first.
	require.Less(t, strings.Index(html, "Opening balance"), strings.Index(html, "Weekly payment"))
}

func TestBuildStatementHTMLEmpty(t *testing.T) {
	customer := ledger.Customer{
		Name:        "Meena",
		TotalCredit: decimal.Zero,
		TotalPaid:   decimal.Zero,
		Balance:     decimal.Zero,
	}
	html, err := BuildStatementHTML(customer, nil)
	require.NoError(t, err)
	require.Contains(t, html, "Meena")
	require.Contains(t, html, "₹0.00")
}
