// Package handlers implements the HTTP endpoints of the API server.
package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/mailledger/internal/api/middleware"
)

// Set groups the handlers served by one mux. Nil handlers leave their routes unregistered.
type Set struct {
	Transactions *TransactionsHandler
	Rules        *RulesHandler
	Refresh      *RefreshHandler
	Push         *PushHandler
	Now          func() time.Time
}

// Register adds every route of s to mux.
func Register(mux *http.ServeMux, s Set) {
	now := s.Now
	if now == nil {
		now = time.Now
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   now().Format(time.RFC3339),
		})
	})

	if h := s.Transactions; h != nil {
		mux.HandleFunc("GET /api/transactions", h.ListTransactions)
		mux.HandleFunc("GET /api/transactions/{id}", h.GetTransaction)
		mux.HandleFunc("PATCH /api/transactions/{id}", h.UpdateTransaction)
		mux.HandleFunc("DELETE /api/transactions/{id}", h.DeleteTransaction)
	}

	if h := s.Rules; h != nil {
		mux.HandleFunc("GET /api/transaction_rules", h.ListRules)
		mux.HandleFunc("POST /api/transaction_rules", h.CreateRule)
		mux.HandleFunc("PATCH /api/transaction_rules/{id}", h.UpdateRule)
		mux.HandleFunc("DELETE /api/transaction_rules/{id}", h.DeleteRule)
	}

	if h := s.Refresh; h != nil {
		mux.HandleFunc("POST /api/transactions/refresh", h.Refresh)
		mux.HandleFunc("GET /api/user_data", h.ListUserData)
	}

	if h := s.Push; h != nil {
		mux.HandleFunc("POST /pubsub/push", h.Push)
	}
}
