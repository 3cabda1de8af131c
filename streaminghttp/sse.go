package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/netra-systems/zen-sub153/broker"
	"github.com/netra-systems/zen-sub153/internal/engine"
	"github.com/netra-systems/zen-sub153/mcp"
)

// SSE event names.
const (
	EventConnected = "connected"
	EventMessage   = "message"
	EventHeartbeat = "heartbeat"
)

// ConnectedEvent is the data of the first event on every stream.
type ConnectedEvent struct {
	SessionID  string                 `json:"sessionId"`
	ServerInfo mcp.ImplementationInfo `json:"serverInfo"`
}

type eventWriter struct {
	w io.Writer
	f http.Flusher
}

// write emits one Server-Sent Event and flushes it. id and event are omitted
// when empty.
func (ew eventWriter) write(id, event string, payload []byte) error {
	if id != "" {
		if _, err := fmt.Fprintf(ew.w, "id: %s\n", id); err != nil {
			return fmt.Errorf("failed to write SSE event ID: %w", err)
		}
	}
	if event != "" {
		if _, err := fmt.Fprintf(ew.w, "event: %s\n", event); err != nil {
			return fmt.Errorf("failed to write SSE event name: %w", err)
		}
	}
	if _, err := fmt.Fprintf(ew.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	ew.f.Flush()
	return nil
}

// handleStream serves the SSE stream of the caller's session: a connected
// event, then queued messages in order, with heartbeats in between, until the
// client disconnects. A Last-Event-ID header resumes after that event.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := h.requestContext(r)
	start := h.clock.Now()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "client must accept text/event-stream")
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}
	c, ok := h.identify(ctx, w, r)
	if !ok {
		return
	}
	h.grant(c)

	stream, err := h.broker.Subscribe(ctx, c.sessionID, r.Header.Get(lastEventIDHeader))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to subscribe")
		h.log.ErrorContext(ctx, "sse.subscribe.fail", slog.String("err", err.Error()))
		return
	}
	defer func() {
		_ = stream.Close()
	}()

	h.trackStream(c.sessionID, 1)
	defer h.trackStream(c.sessionID, -1)

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(mcpSessionIDHeader, c.sessionID)
	w.WriteHeader(http.StatusOK)

	ew := eventWriter{w: w, f: f}
	hello, _ := json.Marshal(ConnectedEvent{SessionID: c.sessionID, ServerInfo: h.eng.ServerInfo()})
	if err := ew.write("", EventConnected, hello); err != nil {
		h.log.InfoContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.start", slog.String("session_id", c.sessionID))

	events, errs := pump(ctx, stream)
	ticker := h.clock.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.Int64("dur_ms", h.clock.Since(start).Milliseconds()))
			return
		case env := <-events:
			if err := ew.write(env.ID, EventMessage, env.Data); err != nil {
				h.log.InfoContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
				return
			}
			h.log.DebugContext(ctx, "sse.message.deliver", slog.String("event_id", env.ID))
		case err := <-errs:
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				h.log.InfoContext(ctx, "sse.stream.closed")
			} else {
				h.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()))
			}
			return
		case <-ticker.Chan():
			msg, err := engine.Notification(mcp.HeartbeatNotification, mcp.HeartbeatParams{
				Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				continue
			}
			if err := ew.write("", EventHeartbeat, msg); err != nil {
				h.log.InfoContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
				return
			}
		}
	}
}

// pump moves envelopes off stream until it fails or ctx is done. The error
// channel receives the terminal error.
func pump(ctx context.Context, stream broker.MessageStream) (<-chan broker.MessageEnvelope, <-chan error) {
	events := make(chan broker.MessageEnvelope)
	errs := make(chan error, 1)
	go func() {
		for {
			env, err := stream.Next(ctx)
			if err != nil {
				errs <- err
				return
			}
			select {
			case events <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, errs
}
