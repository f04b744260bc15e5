package ledger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/moneymint/moneymint/internal/platform/httpx"
	"github.com/moneymint/moneymint/internal/shared"
)

// Handler wires the JSON API for the ledger module. It only marshals core
// inputs and outputs; identity arrives pre-verified in the request context.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/customers", h.handleCreateCustomer)
	r.Get("/customers", h.handleListCustomers)
	r.Get("/customers/{customerID}", h.handleGetCustomer)
	r.Patch("/customers/{customerID}", h.handleUpdateCustomer)
	r.Delete("/customers/{customerID}", h.handleDeleteCustomer)
	r.Get("/customers/{customerID}/transactions", h.handleListTransactions)
	r.Post("/transactions", h.handleRecordTransaction)
	r.Get("/collections/daily", h.handleDailyCollections)
}

type createCustomerRequest struct {
	Name               string `json:"name" validate:"required"`
	Phone              string `json:"phone" validate:"omitempty,max=32"`
	Email              string `json:"email" validate:"omitempty,email"`
	Address            string `json:"address"`
	Notes              string `json:"notes"`
	OpeningAmount      string `json:"openingAmount"`
	OpeningType        string `json:"openingType" validate:"omitempty,oneof=CREDIT PAYMENT"`
	OpeningDescription string `json:"openingDescription"`
}

type createCustomerResponse struct {
	Customer     Customer     `json:"customer"`
	Opening      *Transaction `json:"opening,omitempty"`
	OpeningError string       `json:"openingError,omitempty"`
}

func (h *Handler) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req createCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CustomerInput{Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address, Notes: req.Notes}

	var opening *OpeningEntry
	if req.OpeningAmount != "" {
		amount, err := decimal.NewFromString(req.OpeningAmount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "openingAmount must be a decimal number")
			return
		}
		openingType := TransactionType(req.OpeningType)
		if openingType == "" {
			openingType = TypeCredit
		}
		opening = &OpeningEntry{Amount: amount, Type: openingType, Description: req.OpeningDescription}
	}

	result, err := h.service.CreateCustomerWithOpeningEntry(r.Context(), ownerID, input, opening)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := createCustomerResponse{Customer: result.Customer, Opening: result.Opening}
	if result.OpeningFailure != nil {
		resp.OpeningError = shared.UserSafeMessage(result.OpeningFailure)
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	customers, err := h.service.ListCustomers(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (h *Handler) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), ownerID, chi.URLParam(r, "customerID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

type updateCustomerRequest struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email" validate:"omitempty"`
	Address  *string `json:"address"`
	Notes    *string `json:"notes"`
	IsActive *bool   `json:"isActive"`
}

func (h *Handler) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req updateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	customer, err := h.service.UpdateCustomer(r.Context(), ownerID, chi.URLParam(r, "customerID"), CustomerUpdate{
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  req.Address,
		Notes:    req.Notes,
		IsActive: req.IsActive,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCustomer(r.Context(), ownerID, chi.URLParam(r, "customerID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	transactions, err := h.service.ListTransactions(r.Context(), ownerID, chi.URLParam(r, "customerID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

type recordTransactionRequest struct {
	CustomerID      string `json:"customerId" validate:"required,uuid4"`
	Amount          string `json:"amount" validate:"required"`
	Type            string `json:"type" validate:"required,oneof=CREDIT PAYMENT"`
	Description     string `json:"description"`
	TransactionDate string `json:"transactionDate"`
}

type recordTransactionResponse struct {
	Transaction Transaction `json:"transaction"`
	Customer    Customer    `json:"customer"`
}

func (h *Handler) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req recordTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	var transactionDate time.Time
	if req.TransactionDate != "" {
		transactionDate, err = time.Parse(time.RFC3339, req.TransactionDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transactionDate must be RFC3339")
			return
		}
	}
	entry, customer, err := h.service.RecordTransaction(r.Context(), ownerID, TransactionInput{
		CustomerID:      req.CustomerID,
		Amount:          amount,
		Type:            TransactionType(req.Type),
		Description:     req.Description,
		TransactionDate: transactionDate,
		IdempotencyKey:  r.Header.Get("X-Idempotency-Key"),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// The returned balance is the post-commit value, suitable for write
	// confirmation views.
	httpx.JSON(w, http.StatusCreated, recordTransactionResponse{Transaction: entry, Customer: customer})
}

func (h *Handler) handleDailyCollections(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	summary, err := h.service.DailyCollections(r.Context(), ownerID, date)
	if err != nil {
		h.logger.Error("daily collections", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := shared.OwnerFromContext(r.Context())
	if ownerID == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing owner identity")
		return "", false
	}
	return ownerID, true
}
