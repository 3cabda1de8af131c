package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
	"github.com/netra-systems/zen-sub153/internal/logctx"
	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/sessions"
)

// Dispatch runs one decoded request under sessionID and returns its response,
// or nil when req is a notification. Dispatch never panics.
func (e *Engine) Dispatch(ctx context.Context, sessionID string, req *jsonrpc.Request) *jsonrpc.Response {
	start := e.clock.Now()
	msgType := "request"
	if req.IsNotification() {
		msgType = "notification"
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: msgType})
	if sessionID != "" {
		sd := &logctx.SessionData{SessionID: sessionID}
		if sess, ok := e.store.Get(sessionID); ok {
			sd.Transport = string(sess.Transport)
			sd.ProtocolVersion = sess.ProtocolVersion
		}
		ctx = logctx.WithSessionData(ctx, sd)
	}
	log := e.log.With(slog.String("method", req.Method))

	result, err := e.invoke(ctx, sessionID, req)
	dur := slog.Int64("dur_ms", e.clock.Since(start).Milliseconds())

	if err != nil {
		c := classify(req.Method, err)
		attrs := []any{dur, slog.Int("code", int(c.code)), slog.String("err", err.Error())}
		var pe *panicError
		if errors.As(err, &pe) {
			attrs = append(attrs, slog.String("stack", string(pe.stack)))
		}
		log.Log(ctx, c.level, c.event, attrs...)
		if req.IsNotification() {
			return nil
		}
		return jsonrpc.NewErrorResponse(req.ID, c.code, c.msg, c.data)
	}

	if req.IsNotification() {
		log.DebugContext(ctx, "engine.handle_notification.ok", dur)
		return nil
	}
	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.encode_fail", dur, slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "Internal error: "+err.Error(), nil)
	}
	log.InfoContext(ctx, "engine.handle_request.ok", dur)
	return resp
}

// invoke applies session bookkeeping and routes to the method handler,
// converting panics into errors.
func (e *Engine) invoke(ctx context.Context, sessionID string, req *jsonrpc.Request) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, &panicError{value: p, stack: debug.Stack()}
		}
	}()

	if sessionID != "" {
		if err := e.store.Touch(sessionID); errors.Is(err, sessions.ErrRateLimited) {
			return nil, err
		}
	}

	method, ok := mcp.ParseMethod(req.Method)
	if !ok {
		return nil, errMethodUnavailable
	}
	return e.call(ctx, method, sessionID, req.Params)
}

func (e *Engine) call(ctx context.Context, method mcp.Method, sessionID string, params json.RawMessage) (any, error) {
	switch method {
	case mcp.InitializeMethod:
		return e.handleInitialize(ctx, sessionID, params)
	case mcp.InitializedNotificationMethod:
		return struct{}{}, nil
	case mcp.PingMethod:
		return e.handlePing()
	case mcp.ToolsListMethod:
		return e.handleToolsList(ctx, sessionID)
	case mcp.ToolsCallMethod:
		return e.handleToolsCall(ctx, sessionID, params)
	case mcp.ResourcesListMethod:
		return e.handleResourcesList(ctx, sessionID)
	case mcp.ResourcesReadMethod:
		return e.handleResourcesRead(ctx, sessionID, params)
	case mcp.PromptsListMethod:
		return e.handlePromptsList(ctx, sessionID)
	case mcp.PromptsGetMethod:
		return e.handlePromptsGet(ctx, sessionID, params)
	case mcp.SamplingCreateMessageMethod:
		return e.handleCreateMessage(ctx, params)
	}
	return nil, errMethodUnavailable
}
