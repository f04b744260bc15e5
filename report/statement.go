package report

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/moneymint/moneymint/internal/ledger"
)

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders an amount with Indian digit grouping, e.g. ₹1,23,456.78.
func FormatINR(amount decimal.Decimal) string {
	f, _ := amount.Float64()
	return inrPrinter.Sprintf("₹%v", number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

type statementRow struct {
	Date        string
	Description string
	Credit      string
	Payment     string
	Balance     string
}

type statementData struct {
	Customer    ledger.Customer
	GeneratedAt string
	Rows        []statementRow
	TotalCredit string
	TotalPaid   string
	Balance     string
}

var statementTemplate = template.Must(template.New("statement").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Statement - {{.Customer.Name}}</title>
<style>
body { font-family: sans-serif; font-size: 12px; color: #1a1a1a; }
h1 { font-size: 18px; margin-bottom: 0; }
.meta { color: #555; margin-bottom: 16px; }
table { width: 100%; border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 6px 8px; text-align: left; }
th { background: #f2f2f2; }
td.amount { text-align: right; font-variant-numeric: tabular-nums; }
tfoot td { font-weight: bold; }
</style>
</head>
<body>
<h1>Account Statement</h1>
<div class="meta">
<p>{{.Customer.Name}}{{if .Customer.Phone}} &middot; {{.Customer.Phone}}{{end}}</p>
<p>Generated {{.GeneratedAt}}</p>
</div>
<table>
<thead>
<tr><th>Date</th><th>Description</th><th>Credit</th><th>Payment</th><th>Balance</th></tr>
</thead>
<tbody>
{{range .Rows}}<tr><td>{{.Date}}</td><td>{{.Description}}</td><td class="amount">{{.Credit}}</td><td class="amount">{{.Payment}}</td><td class="amount">{{.Balance}}</td></tr>
{{end}}</tbody>
<tfoot>
<tr><td colspan="2">Totals</td><td class="amount">{{.TotalCredit}}</td><td class="amount">{{.TotalPaid}}</td><td class="amount">{{.Balance}}</td></tr>
</tfoot>
</table>
</body>
</html>`))

// BuildStatementHTML renders the customer's statement with a running balance.
// Transactions are expected newest first and are replayed oldest first.
func BuildStatementHTML(customer ledger.Customer, transactions []ledger.Transaction) (string, error) {
	rows := make([]statementRow, 0, len(transactions))
	running := decimal.Zero
	for i := len(transactions) - 1; i >= 0; i-- {
		entry := transactions[i]
		row := statementRow{
			Date:        entry.TransactionDate.Format("02 Jan 2006"),
			Description: entry.Description,
		}
		if entry.Type == ledger.TypeCredit {
			running = running.Add(entry.Amount)
			row.Credit = FormatINR(entry.Amount)
		} else {
			running = running.Sub(entry.Amount)
			row.Payment = FormatINR(entry.Amount)
		}
		row.Balance = FormatINR(running)
		rows = append(rows, row)
	}

	data := statementData{
		Customer:    customer,
		GeneratedAt: time.Now().Format("02 Jan 2006 15:04"),
		Rows:        rows,
		TotalCredit: FormatINR(customer.TotalCredit),
		TotalPaid:   FormatINR(customer.TotalPaid),
		Balance:     FormatINR(customer.Balance),
	}
	var buf bytes.Buffer
	if err := statementTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// StatementSource provides the data a statement needs.
type StatementSource interface {
	GetCustomer(ctx context.Context, ownerID, id string) (ledger.Customer, error)
	ListTransactions(ctx context.Context, ownerID, customerID string) ([]ledger.Transaction, error)
}
