package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/netra-systems/zen-sub153/internal/logctx"
	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/mcpservice"
	"github.com/netra-systems/zen-sub153/sessions"
)

// decodeParams unmarshals params into dst. Absent params leave dst zero.
func decodeParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return &mcpservice.InvalidParamsError{Reason: err.Error()}
	}
	return nil
}

func (e *Engine) handleInitialize(ctx context.Context, sessionID string, params json.RawMessage) (*mcp.InitializeResult, error) {
	var req mcp.InitializeRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}

	// The transport-resolved session wins. A client-proposed id is adopted
	// only when the transport supplied none and the id is not in use.
	id := sessionID
	if id == "" && req.SessionID != "" {
		if _, taken := e.store.Get(req.SessionID); !taken {
			id = req.SessionID
		}
	}
	transport := req.Transport
	if !transport.IsValid() {
		transport, _ = TransportFrom(ctx)
	}
	version := req.ProtocolVersion
	if version == "" {
		version = mcp.LatestProtocolVersion
	}

	sess := e.store.Create(ctx, sessions.CreateParams{
		ID:              id,
		Transport:       transport,
		ProtocolVersion: version,
		Client:          req.ClientInfo,
		Capabilities:    req.Capabilities,
	})

	return &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    e.Capabilities(),
		ServerInfo:      e.info,
		SessionID:       sess.ID,
		Instructions:    e.instructions,
	}, nil
}

func (e *Engine) handlePing() (*mcp.PingResult, error) {
	return &mcp.PingResult{Timestamp: e.clock.Now().UTC().Format(time.RFC3339)}, nil
}

func (e *Engine) handleToolsList(ctx context.Context, sessionID string) (*mcp.ListToolsResult, error) {
	if e.regs.Tools == nil {
		return nil, errMethodUnavailable
	}
	return &mcp.ListToolsResult{Tools: e.regs.Tools.List(ctx, sessionID)}, nil
}

func (e *Engine) handleToolsCall(ctx context.Context, sessionID string, params json.RawMessage) (*mcp.CallToolResult, error) {
	if e.regs.Tools == nil {
		return nil, errMethodUnavailable
	}
	var req mcp.CallToolRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, &mcpservice.RequiredError{Field: "name"}
	}
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: req.Name})
	return e.regs.Tools.Execute(ctx, req.Name, req.Arguments, sessionID), nil
}

func (e *Engine) handleResourcesList(ctx context.Context, sessionID string) (*mcp.ListResourcesResult, error) {
	if e.regs.Resources == nil {
		return nil, errMethodUnavailable
	}
	return &mcp.ListResourcesResult{Resources: e.regs.Resources.List(ctx, sessionID)}, nil
}

func (e *Engine) handleResourcesRead(ctx context.Context, sessionID string, params json.RawMessage) (*mcp.ReadResourceResult, error) {
	if e.regs.Resources == nil {
		return nil, errMethodUnavailable
	}
	var req mcp.ReadResourceRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	if req.URI == "" {
		return nil, &mcpservice.RequiredError{Field: "uri"}
	}
	blocks, err := e.regs.Resources.Read(ctx, req.URI, sessionID)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{Contents: blocks}, nil
}

func (e *Engine) handlePromptsList(ctx context.Context, sessionID string) (*mcp.ListPromptsResult, error) {
	if e.regs.Prompts == nil {
		return nil, errMethodUnavailable
	}
	return &mcp.ListPromptsResult{Prompts: e.regs.Prompts.List(ctx, sessionID)}, nil
}

func (e *Engine) handlePromptsGet(ctx context.Context, sessionID string, params json.RawMessage) (*mcp.GetPromptResult, error) {
	if e.regs.Prompts == nil {
		return nil, errMethodUnavailable
	}
	var req mcp.GetPromptRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, &mcpservice.RequiredError{Field: "name"}
	}
	return e.regs.Prompts.Get(ctx, req.Name, req.Arguments, sessionID)
}

func (e *Engine) handleCreateMessage(ctx context.Context, params json.RawMessage) (*mcp.CreateMessageResult, error) {
	if e.sampler == nil {
		return nil, errMethodUnavailable
	}
	var req mcp.CreateMessageRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	if len(req.Messages) == 0 {
		return nil, &mcpservice.RequiredError{Field: "messages"}
	}
	return e.sampler.CreateMessage(ctx, &req)
}
