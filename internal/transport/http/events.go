package httptransport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"loyaltycore/internal/notify"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/httputil"
	"loyaltycore/pkg/requestcontext"
)

// EventsHandler streams notifications for one target over server-sent
// events. The dispatcher contract is transport-agnostic; SSE is this
// server's delivery choice for in-process subscribers.
type EventsHandler struct {
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

// NewEventsHandler constructs the SSE handler.
func NewEventsHandler(dispatcher *notify.Dispatcher, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher, logger: logger}
}

// HandleStream handles GET /events?target=<id>. The connection stays open
// until the client disconnects; each event is one SSE message named by its
// event type.
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "target query parameter is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming not supported"))
		return
	}

	sub := h.dispatcher.Subscribe(target)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	h.logger.InfoContext(ctx, "event stream opened", "request_id", requestID, "target", target)

	for {
		select {
		case <-ctx.Done():
			h.logger.InfoContext(ctx, "event stream closed", "request_id", requestID, "target", target)
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.WarnContext(ctx, "marshal event failed", "request_id", requestID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
