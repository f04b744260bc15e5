package report

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/moneymint/moneymint/internal/platform/httpx"
	"github.com/moneymint/moneymint/internal/shared"
)

// Handler manages report endpoints.
type Handler struct {
	client *Client
	source StatementSource
	logger *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, source StatementSource, logger *slog.Logger) *Handler {
	return &Handler{client: client, source: source, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/customers/{customerID}/statement.pdf", h.statement)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	ownerID := shared.OwnerFromContext(r.Context())
	if ownerID == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing owner identity")
		return
	}
	customerID := chi.URLParam(r, "customerID")
	customer, err := h.source.GetCustomer(r.Context(), ownerID, customerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	transactions, err := h.source.ListTransactions(r.Context(), ownerID, customerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	html, err := BuildStatementHTML(customer, transactions)
	if err != nil {
		h.logger.Error("build statement html", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.client.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render statement pdf", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=statement.pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
