package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
)

// HandleBytes processes one JSON-RPC payload, a single request object or a
// batch array, and returns the encoded reply. It returns nil when there is
// nothing to send: a lone notification or a batch made only of
// notifications.
func (e *Engine) HandleBytes(ctx context.Context, sessionID string, data []byte) []byte {
	single, batch := e.handle(ctx, sessionID, data)
	var out any
	switch {
	case batch != nil:
		out = batch
	case single != nil:
		out = single
	default:
		return nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.encode_response.fail", slog.String("err", err.Error()))
		b, _ = json.Marshal(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInternalError, "Internal error: "+err.Error(), nil))
	}
	return b
}

// HandleValue is HandleBytes for callers holding an already parsed payload:
// a map or slice from encoding/json, a json.RawMessage, or raw []byte/string
// text. String input gets the encoded reply back as a string. Other input
// gets a *jsonrpc.Response or a []*jsonrpc.Response. Nothing to send is nil.
func (e *Engine) HandleValue(ctx context.Context, sessionID string, v any) any {
	var data []byte
	switch t := v.(type) {
	case string:
		if out := e.HandleBytes(ctx, sessionID, []byte(t)); out != nil {
			return string(out)
		}
		return nil
	case []byte:
		data = t
	case json.RawMessage:
		data = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return parseError(err)
		}
		data = b
	}
	single, batch := e.handle(ctx, sessionID, data)
	switch {
	case batch != nil:
		return batch
	case single != nil:
		return single
	}
	return nil
}

// handle returns either a single response or, for batches, the non-empty
// list of responses. Both are nil when nothing is to be sent.
func (e *Engine) handle(ctx context.Context, sessionID string, data []byte) (single *jsonrpc.Response, batch []*jsonrpc.Response) {
	defer func() {
		if p := recover(); p != nil {
			e.log.ErrorContext(ctx, "engine.handle_payload.panic", slog.Any("panic", p), slog.String("stack", string(debug.Stack())))
			single, batch = jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInternalError, fmt.Sprintf("Internal error: %v", p), nil), nil
		}
	}()

	data = bytes.TrimSpace(data)
	if !jsonrpc.IsBatch(data) {
		return e.handleOne(ctx, sessionID, data), nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return parseError(err), nil
	}
	for _, item := range items {
		if resp := e.handleOne(ctx, sessionID, item); resp != nil {
			batch = append(batch, resp)
		}
	}
	return nil, batch
}

func (e *Engine) handleOne(ctx context.Context, sessionID string, data []byte) *jsonrpc.Response {
	req, err := jsonrpc.DecodeRequest(data)
	if err != nil {
		var ire *jsonrpc.InvalidRequestError
		if errors.As(err, &ire) {
			e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", ire.Reason))
			return jsonrpc.NewErrorResponse(ire.ID, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request: "+ire.Reason, nil)
		}
		e.log.InfoContext(ctx, "engine.handle_request.parse_error", slog.String("err", err.Error()))
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return parseError(syn)
		}
		return parseError(err)
	}
	return e.Dispatch(ctx, sessionID, req)
}

func parseError(err error) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "Parse error: "+err.Error(), nil)
}
