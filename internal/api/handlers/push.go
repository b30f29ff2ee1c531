package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dvloznov/mailledger/internal/api/middleware"
	"github.com/dvloznov/mailledger/internal/queue"
	"github.com/rs/zerolog"
)

// PushHandler receives Pub/Sub push deliveries and hands them to the writer.
// Any non-2xx response makes Pub/Sub redeliver, so only handler failures get a 5xx.
type PushHandler struct {
	handle queue.Handler
	log    zerolog.Logger
}

// NewPushHandler creates a new push handler
func NewPushHandler(handle queue.Handler, log zerolog.Logger) *PushHandler {
	return &PushHandler{
		handle: handle,
		log:    log,
	}
}

// Push handles POST /pubsub/push
func (h *PushHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req queue.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warn().Err(err).Msg("Rejecting malformed push request")
		middleware.WriteError(w, http.StatusBadRequest, "Invalid push request")
		return
	}

	env, err := req.Envelope()
	if err != nil {
		h.log.Warn().Err(err).Str("pubsub_id", req.Message.MessageID).Msg("Rejecting undecodable envelope")
		middleware.WriteError(w, http.StatusBadRequest, "Invalid message envelope")
		return
	}

	if err := h.handle(r.Context(), env); err != nil {
		h.log.Error().Err(err).Str("message_id", env.MessageID).Msg("Failed to handle pushed message")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to handle message")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
