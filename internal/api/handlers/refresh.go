package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dvloznov/mailledger/internal/api/middleware"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/pipeline"
	"github.com/rs/zerolog"
)

// Refresher runs a synchronous mailbox refresh.
type Refresher interface {
	Refresh(ctx context.Context, opts pipeline.RefreshOptions) (pipeline.Summary, error)
}

// Ensure pipeline.Runner implements Refresher interface.
var _ Refresher = (*pipeline.Runner)(nil)

// UserDataLister reads the per-user refresh bookkeeping.
type UserDataLister interface {
	ListUserData(ctx context.Context) ([]domain.UserData, error)
}

// RefreshHandler handles refresh and user data requests
type RefreshHandler struct {
	runner   Refresher
	userData UserDataLister
	log      zerolog.Logger
}

// NewRefreshHandler creates a new refresh handler
func NewRefreshHandler(runner Refresher, userData UserDataLister, log zerolog.Logger) *RefreshHandler {
	return &RefreshHandler{
		runner:   runner,
		userData: userData,
		log:      log,
	}
}

// RefreshRequest is the optional body of POST /api/transactions/refresh.
type RefreshRequest struct {
	Cutoff string `json:"cutoff"`
}

// RefreshResponse is the run summary plus a human-readable message.
type RefreshResponse struct {
	pipeline.Summary
	Message string `json:"message"`
}

// Refresh handles POST /api/transactions/refresh
func (h *RefreshHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	summary, err := h.runner.Refresh(r.Context(), pipeline.RefreshOptions{Cutoff: req.Cutoff})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to refresh transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to refresh transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, RefreshResponse{
		Summary: summary,
		Message: fmt.Sprintf("%d transactions imported successfully", summary.Written),
	})
}

// ListUserData handles GET /api/user_data
func (h *RefreshHandler) ListUserData(w http.ResponseWriter, r *http.Request) {
	rows, err := h.userData.ListUserData(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list user data")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list user data")
		return
	}
	if rows == nil {
		rows = []domain.UserData{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_data": rows,
		"count":     len(rows),
	})
}
