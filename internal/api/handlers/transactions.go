package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/mailledger/internal/api/middleware"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/rs/zerolog"
)

// TransactionRepository is the transaction storage the API reads and edits.
type TransactionRepository interface {
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, update domain.TransactionUpdate) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
}

// TransactionsHandler handles transaction-related requests
type TransactionsHandler struct {
	repo TransactionRepository
	log  zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler
func NewTransactionsHandler(repo TransactionRepository, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo: repo,
		log:  log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := domain.TransactionFilter{
		Merchant:    query.Get("merchant"),
		StartDate:   query.Get("start_date"),
		EndDate:     query.Get("end_date"),
		Category:    query.Get("category"),
		Subcategory: query.Get("subcategory"),
		AccountName: query.Get("account_name"),
	}

	for name, value := range map[string]string{"start_date": filter.StartDate, "end_date": filter.EndDate} {
		if value == "" {
			continue
		}
		if _, err := domain.ParseDate(value); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid "+name+", expected YYYY-MM-DD")
			return
		}
	}

	transactions, err := h.repo.ListTransactions(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	tx, err := h.repo.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, id, "Failed to get transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// UpdateTransaction handles PATCH /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var update domain.TransactionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if update.IsEmpty() {
		middleware.WriteError(w, http.StatusBadRequest, "No fields to update")
		return
	}
	if update.TransactionDate != nil {
		if _, err := domain.ParseDate(*update.TransactionDate); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid transaction_date, expected YYYY-MM-DD")
			return
		}
	}
	if update.Amount != nil {
		if _, err := domain.ParseAmount(*update.Amount); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid amount")
			return
		}
	}

	tx, err := h.repo.UpdateTransaction(r.Context(), id, update)
	if err != nil {
		h.writeStoreError(w, err, id, "Failed to update transaction")
		return
	}

	h.log.Info().Str("transaction_id", id).Msg("Transaction updated")
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.repo.DeleteTransaction(r.Context(), id); err != nil {
		h.writeStoreError(w, err, id, "Failed to delete transaction")
		return
	}

	h.log.Info().Str("transaction_id", id).Msg("Transaction deleted")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"transaction_id": id,
		"status":         "deleted",
	})
}

func (h *TransactionsHandler) writeStoreError(w http.ResponseWriter, err error, id, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("transaction_id", id).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}
