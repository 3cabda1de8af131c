package streaminghttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/netra-systems/zen-sub153/internal/engine"
	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
	"github.com/netra-systems/zen-sub153/mcp"
)

// restRoutes maps convenience routes onto the method they invoke. The request
// body is the params object.
var restRoutes = map[string]mcp.Method{
	"/tools/list":             mcp.ToolsListMethod,
	"/tools/call":             mcp.ToolsCallMethod,
	"/resources/list":         mcp.ResourcesListMethod,
	"/resources/read":         mcp.ResourcesReadMethod,
	"/prompts/list":           mcp.PromptsListMethod,
	"/prompts/get":            mcp.PromptsGetMethod,
	"/sampling/createMessage": mcp.SamplingCreateMessageMethod,
}

// readBody reads a bounded JSON body. An empty body is allowed and returned
// as nil. On failure the response has been written.
func (h *Handler) readBody(ctx context.Context, w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			h.log.WarnContext(ctx, "http.body.too_large", slog.Int64("limit", mbe.Limit))
			return nil, false
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		h.log.WarnContext(ctx, "http.body.read_fail", slog.String("err", err.Error()))
		return nil, false
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, true
	}
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return nil, false
	}
	return body, true
}

// handlePost answers a single JSON-RPC message. Notifications are
// acknowledged with 202 and no body.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := h.requestContext(r)
	c, ok := h.identify(ctx, w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(ctx, w, r)
	if !ok {
		return
	}
	if len(body) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty request body")
		return
	}
	if jsonrpc.IsBatch(body) {
		writeJSONError(w, http.StatusBadRequest, "batch arrays must be posted to "+h.basePath+"/batch")
		h.log.InfoContext(ctx, "jsonrpc.batch.misrouted")
		return
	}
	h.exchange(ctx, w, c, body)
}

// handleBatch answers a JSON-RPC batch array.
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := h.requestContext(r)
	c, ok := h.identify(ctx, w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(ctx, w, r)
	if !ok {
		return
	}
	if !jsonrpc.IsBatch(body) {
		writeJSONError(w, http.StatusBadRequest, "batch body must be a JSON array")
		return
	}
	h.exchange(ctx, w, c, body)
}

func (h *Handler) exchange(ctx context.Context, w http.ResponseWriter, c caller, body []byte) {
	granted := h.grant(c)
	out := h.eng.HandleBytes(ctx, c.sessionID, body)
	if !granted {
		// initialize may just have created the session
		h.grant(c)
	}
	w.Header().Set(mcpSessionIDHeader, c.sessionID)
	if out == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleREST(method mcp.Method) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := h.requestContext(r)
		c, ok := h.identify(ctx, w, r)
		if !ok {
			return
		}
		params, ok := h.readBody(ctx, w, r)
		if !ok {
			return
		}
		if len(params) > 0 && params[0] != '{' {
			writeJSONError(w, http.StatusBadRequest, "request body must be a JSON object")
			return
		}
		h.grant(c)

		req := &jsonrpc.Request{
			JSONRPCVersion: jsonrpc.ProtocolVersion,
			Method:         string(method),
			Params:         params,
			ID:             jsonrpc.NewRequestID("rest-" + uuid.NewString()),
		}
		resp := h.eng.Dispatch(ctx, c.sessionID, req)
		w.Header().Set(mcpSessionIDHeader, c.sessionID)
		if resp.Error != nil {
			b, err := json.Marshal(map[string]any{"error": resp.Error})
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "failed to encode error")
				return
			}
			writeJSON(w, statusFor(resp.Error), b)
			return
		}
		writeJSON(w, http.StatusOK, resp.Result)
	}
}

// statusFor maps a JSON-RPC error onto the HTTP status of a REST reply.
func statusFor(e *jsonrpc.Error) int {
	switch e.Code {
	case jsonrpc.ErrorCodeParseError, jsonrpc.ErrorCodeInvalidRequest, jsonrpc.ErrorCodeInvalidParams:
		return http.StatusBadRequest
	case jsonrpc.ErrorCodeMethodNotFound:
		return http.StatusNotFound
	case jsonrpc.ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	case jsonrpc.ErrorCodeBusinessError:
		if nf, ok := e.Data.(engine.NotFoundData); ok && nf.Reason == engine.ReasonNotFound {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
