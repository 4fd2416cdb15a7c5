package handler

import (
	"context"
	"net/http"
)

// InlineTrigger fires the opportunistic checks. *trigger.InlineChecks
// satisfies it.
type InlineTrigger interface {
	ChatBacklog(ctx context.Context)
	Moderation(ctx context.Context)
}

// InlineHandler lets upstream handlers (chat send, admin listing) nudge the
// aggregators without waiting for them.
type InlineHandler struct {
	checks InlineTrigger
}

func NewInlineHandler(checks InlineTrigger) *InlineHandler {
	return &InlineHandler{checks: checks}
}

// Chat handles POST /api/v1/inline/chat
func (h *InlineHandler) Chat(w http.ResponseWriter, r *http.Request) {
	h.checks.ChatBacklog(r.Context())
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Moderation handles POST /api/v1/inline/moderation
func (h *InlineHandler) Moderation(w http.ResponseWriter, r *http.Request) {
	h.checks.Moderation(r.Context())
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
