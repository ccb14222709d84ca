package gateway

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/quiver/internal/observability"
	"github.com/harun/quiver/pkg/toolmanager"
)

// Hub broadcasts dispatch progress to every authenticated observer. It
// satisfies toolmanager.ProgressReporter, so a manager wired with it reports
// each tool call as it starts and settles. Broadcasts from concurrent
// in-flight calls are safe; per-client write locks keep frames whole.
type Hub struct {
	clients *Registry
	logger  zerolog.Logger
	seq     atomic.Int64
}

// NewHub creates a hub over the given client registry.
func NewHub(clients *Registry, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: clients,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

// ToolCallStarted reports that a tool call entered execution.
func (h *Hub) ToolCallStarted(call toolmanager.ToolCall) {
	h.Broadcast(EventToolCallStarted, map[string]interface{}{
		"call_id": call.ID,
		"tool":    call.Name,
	})
}

// ToolCallFinished reports that a tool call settled.
func (h *Hub) ToolCallFinished(resp toolmanager.ToolCallResponse) {
	data := map[string]interface{}{
		"call_id":    resp.ID,
		"tool":       resp.Name,
		"successful": resp.Successful(),
	}
	if !resp.Successful() {
		data["error_message"] = resp.ErrorMessage
	}
	h.Broadcast(EventToolCallFinished, data)
}

// Broadcast sends an event to every authenticated client. Clients that fail
// to take the write are skipped; the read loop notices the broken connection
// and cleans up.
func (h *Hub) Broadcast(event string, data interface{}) {
	msg := ProgressEvent{
		Event:     event,
		Seq:       h.seq.Add(1),
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}

	clients := h.clients.Authenticated()
	observability.RecordGatewayEvent(event)
	if len(clients) == 0 {
		return
	}

	failed := 0
	for _, client := range clients {
		if err := client.WriteJSON(msg); err != nil {
			h.logger.Warn().
				Err(err).
				Str("client_id", client.ID).
				Str("event", event).
				Msg("Failed to broadcast to client")
			failed++
		}
	}

	h.logger.Debug().
		Str("event", event).
		Int64("seq", msg.Seq).
		Int("clients", len(clients)).
		Int("failed", failed).
		Msg("Progress event broadcast")
}
