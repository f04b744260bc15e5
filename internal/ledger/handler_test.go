package ledger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/moneymint/moneymint/internal/shared"
)

func newTestRouter(t *testing.T) (*chi.Mux, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	handler := NewHandler(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), svc)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if owner := r.Header.Get("X-Owner-ID"); owner != "" {
				r = r.WithContext(shared.ContextWithOwner(r.Context(), owner))
			}
			next.ServeHTTP(w, r)
		})
	})
	handler.MountRoutes(router)
	return router, repo
}

func doJSON(t *testing.T, router http.Handler, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateCustomerWithOpening(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/customers", "owner-1", map[string]any{
		"name":          "Ravi Kumar",
		"phone":         "9876543210",
		"openingAmount": "5000",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createCustomerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Ravi Kumar", resp.Customer.Name)
	require.NotNil(t, resp.Opening)
	require.Equal(t, TypeCredit, resp.Opening.Type)
	require.True(t, resp.Customer.Balance.Equal(decimal.NewFromInt(5000)))
	require.Empty(t, resp.OpeningError)
}

func TestHandlerCreateCustomerValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/customers", "owner-1", map[string]any{"phone": "123"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestHandlerRequiresOwner(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/customers", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRecordTransactionFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/customers", "owner-1", map[string]any{"name": "Meena"})
	require.Equal(t, http.StatusCreated, created.Code)
	var createdResp createCustomerResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdResp))

	rec := doJSON(t, router, http.MethodPost, "/transactions", "owner-1", map[string]any{
		"customerId": createdResp.Customer.ID,
		"amount":     "1250.50",
		"type":       "CREDIT",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var txResp recordTransactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txResp))
	require.True(t, txResp.Customer.Balance.Equal(decimal.RequireFromString("1250.50")))
	require.Equal(t, TypeCredit, txResp.Transaction.Type)

	list := doJSON(t, router, http.MethodGet, "/customers/"+createdResp.Customer.ID+"/transactions", "owner-1", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var listResp struct {
		Transactions []Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &listResp))
	require.Len(t, listResp.Transactions, 1)
}

func TestHandlerRecordTransactionRejectsBadType(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/transactions", "owner-1", map[string]any{
		"customerId": "6f1e8a52-74b5-4f0e-9f2e-4dfc8f4b1a33",
		"amount":     "10",
		"type":       "REFUND",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRecordTransactionUnknownCustomer(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/transactions", "owner-1", map[string]any{
		"customerId": "6f1e8a52-74b5-4f0e-9f2e-4dfc8f4b1a33",
		"amount":     "10",
		"type":       "PAYMENT",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerUpdateAndDeleteCustomer(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/customers", "owner-1", map[string]any{"name": "Ravi"})
	var createdResp createCustomerResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdResp))
	id := createdResp.Customer.ID

	updated := doJSON(t, router, http.MethodPatch, "/customers/"+id, "owner-1", map[string]any{"notes": "pays weekly"})
	require.Equal(t, http.StatusOK, updated.Code)
	var customer Customer
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &customer))
	require.Equal(t, "pays weekly", customer.Notes)

	// Other owners cannot see or delete the record.
	other := doJSON(t, router, http.MethodDelete, "/customers/"+id, "owner-2", nil)
	require.Equal(t, http.StatusNotFound, other.Code)

	deleted := doJSON(t, router, http.MethodDelete, "/customers/"+id, "owner-1", nil)
	require.Equal(t, http.StatusNoContent, deleted.Code)

	missing := doJSON(t, router, http.MethodGet, "/customers/"+id, "owner-1", nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestHandlerDailyCollections(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/customers", "owner-1", map[string]any{"name": "Ravi"})
	var createdResp createCustomerResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdResp))

	for _, payload := range []map[string]any{
		{"customerId": createdResp.Customer.ID, "amount": "5000", "type": "CREDIT"},
		{"customerId": createdResp.Customer.ID, "amount": "2000", "type": "PAYMENT"},
	} {
		rec := doJSON(t, router, http.MethodPost, "/transactions", "owner-1", payload)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/collections/daily", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary DailyCollections
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, time.Now().Format("2006-01-02"), summary.Date)
	require.True(t, summary.TotalCollection.Equal(decimal.NewFromInt(2000)))
	require.Len(t, summary.Transactions, 1)

	bad := doJSON(t, router, http.MethodGet, "/collections/daily?date=14-03-2025", "owner-1", nil)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}
