package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
)

// InvalidateResponse acknowledges an applied invalidation.
type InvalidateResponse struct {
	EventID string                  `json:"event_id"`
	Kind    domain.InvalidationKind `json:"kind"`
}

// Invalidate applies an invalidation event posted by an operator, the same
// way as one received from the event bus.
func (h *Handlers) Invalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var event domain.InvalidationEvent
	if err := decode(w, r, &event); err != nil {
		h.badRequest(ctx, w, "Invalid request payload", err.Error())
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}

	if err := h.invalidation.HandleInvalidation(ctx, event); err != nil {
		h.badRequest(ctx, w, "Invalid invalidation event", err.Error())
		return
	}
	h.logger.Info(ctx, "Manual cache invalidation applied", "event_id", event.EventID, "kind", string(event.Kind))
	h.writeJSON(ctx, w, http.StatusAccepted, InvalidateResponse{EventID: event.EventID, Kind: event.Kind})
}
