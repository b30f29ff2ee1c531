package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/mailledger/internal/api/middleware"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/rules"
	"github.com/rs/zerolog"
)

// RuleService manages merchant rules and their backfill.
type RuleService interface {
	List(ctx context.Context) ([]domain.MerchantRule, error)
	Create(ctx context.Context, original, renamed string) (domain.MerchantRule, int, error)
	Update(ctx context.Context, ruleID string, update rules.RuleUpdate) (domain.MerchantRule, int, error)
	Delete(ctx context.Context, ruleID string) error
}

// Ensure rules.Service implements RuleService interface.
var _ RuleService = (*rules.Service)(nil)

// RulesHandler handles merchant rule requests
type RulesHandler struct {
	service RuleService
	log     zerolog.Logger
}

// NewRulesHandler creates a new rules handler
func NewRulesHandler(service RuleService, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{
		service: service,
		log:     log,
	}
}

// CreateRuleRequest is the body of POST /api/transaction_rules.
type CreateRuleRequest struct {
	MerchantOriginalName string `json:"merchant_original_name"`
	MerchantRenamedName  string `json:"merchant_renamed_name"`
}

// RuleResponse reports a stored rule and how many transactions it rewrote.
type RuleResponse struct {
	Rule                   domain.MerchantRule `json:"rule"`
	BackfilledTransactions int                 `json:"backfilled_transactions"`
}

// ListRules handles GET /api/transaction_rules
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	if list == nil {
		list = []domain.MerchantRule{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": list,
		"count": len(list),
	})
}

// CreateRule handles POST /api/transaction_rules
func (h *RulesHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rule, n, err := h.service.Create(r.Context(), req.MerchantOriginalName, req.MerchantRenamedName)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("rule_id", rule.RuleID).Msg("Failed to create rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}

	h.log.Info().Str("rule_id", rule.RuleID).Int("backfilled", n).Msg("Rule created")
	middleware.WriteJSON(w, http.StatusCreated, RuleResponse{Rule: rule, BackfilledTransactions: n})
}

// UpdateRule handles PATCH /api/transaction_rules/{id}
func (h *RulesHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var update rules.RuleUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rule, n, err := h.service.Update(r.Context(), id, update)
	if err != nil {
		h.writeServiceError(w, err, id, "Failed to update rule")
		return
	}

	h.log.Info().Str("rule_id", id).Int("backfilled", n).Msg("Rule updated")
	middleware.WriteJSON(w, http.StatusOK, RuleResponse{Rule: rule, BackfilledTransactions: n})
}

// DeleteRule handles DELETE /api/transaction_rules/{id}
func (h *RulesHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, id, "Failed to delete rule")
		return
	}

	h.log.Info().Str("rule_id", id).Msg("Rule deleted")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"rule_id": id,
		"status":  "deleted",
	})
}

func (h *RulesHandler) writeServiceError(w http.ResponseWriter, err error, id, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Rule not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("rule_id", id).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}
