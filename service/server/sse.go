package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	natspkg "github.com/brojonat/solvent/service/nats"
)

// AlertStreamer delivers alerts published after the call. An empty address
// streams every address. *natspkg.Subscriber implements it.
type AlertStreamer interface {
	StreamAlerts(ctx context.Context, address string) (<-chan *natspkg.AlertEvent, error)
}

var _ AlertStreamer = (*natspkg.Subscriber)(nil)

const keepaliveInterval = 10 * time.Second

// handleStreamAlerts streams watch alerts as server-sent events.
// GET /api/v1/stream/alerts[/{address}]
func handleStreamAlerts(streamer AlertStreamer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		desc := address
		if address == "" {
			desc = "all addresses"
		} else if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		events, err := streamer.StreamAlerts(r.Context(), address)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to subscribe to alerts", "address", desc, "error", err)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flush := func() {
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}

		logger.DebugContext(r.Context(), "SSE client connected",
			"address", desc,
			"remote_addr", r.RemoteAddr,
		)

		connected, _ := json.Marshal(map[string]string{"address": desc})
		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
		flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal alert", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: alert\ndata: %s\n\n", data)
				flush()

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"address", desc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
