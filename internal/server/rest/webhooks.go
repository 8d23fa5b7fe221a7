package rest

import (
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/server/patreon"
)

// maxWebhookBody bounds a webhook payload.
const maxWebhookBody = 1 << 20

// patreonWebhook handles POST /webhooks/patreon. The signature covers the raw
// body, so it is read whole before parsing.
func (h *Handler) patreonWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %w", common.ErrInvalidRequest, err))
		return
	}

	h.logger.Info(r.Context(), "patreon webhook received", "event", r.Header.Get(patreon.EventHeader))

	if err := h.subscriptions.HandleWebhook(r.Context(), body, r.Header.Get(patreon.SignatureHeader)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"success": "Member updated"})
}
