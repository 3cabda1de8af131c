package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/netra-systems/zen-sub153/mcp"
)

// ToolHandler executes a tool invocation. The returned value is wrapped into
// the tool result by the registry: a []mcp.ContentBlock is used verbatim,
// a string becomes one text block and anything else is JSON encoded into one
// text block.
type ToolHandler interface {
	Invoke(ctx context.Context, args map[string]any, sessionID string) (any, error)
}

// ToolFunc adapts a plain function into a ToolHandler that runs on the
// caller's goroutine.
type ToolFunc func(ctx context.Context, args map[string]any, sessionID string) (any, error)

// Invoke implements ToolHandler.
func (f ToolFunc) Invoke(ctx context.Context, args map[string]any, sessionID string) (any, error) {
	return f(ctx, args, sessionID)
}

// AsyncToolFunc adapts a function into a ToolHandler that runs on its own
// goroutine. Invoke returns as soon as either the function finishes or ctx is
// done, whichever comes first; in the latter case the function's eventual
// result is discarded.
type AsyncToolFunc func(ctx context.Context, args map[string]any, sessionID string) (any, error)

type asyncResult struct {
	val any
	err error
}

// Invoke implements ToolHandler.
func (f AsyncToolFunc) Invoke(ctx context.Context, args map[string]any, sessionID string) (any, error) {
	done := make(chan asyncResult, 1)
	go func() {
		var res asyncResult
		defer func() {
			if p := recover(); p != nil {
				res = asyncResult{err: fmt.Errorf("tool panicked: %v", p)}
			}
			done <- res
		}()
		res.val, res.err = f(ctx, args, sessionID)
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.val, res.err
	}
}

// Tool is a registered tool descriptor.
type Tool struct {
	Name         string
	Description  string
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
	Category     string
	Version      string
	Handler      ToolHandler
	AuthRequired bool
	Permissions  []string
}

// Summary returns the public listing fields.
func (t Tool) Summary() mcp.Tool {
	return mcp.Tool{
		Name:         t.Name,
		Description:  t.Description,
		InputSchema:  t.InputSchema,
		OutputSchema: t.OutputSchema,
		Category:     t.Category,
	}
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	category                  string
	version                   string
	authRequired              bool
	permissions               []string
	async                     bool
	allowAdditionalProperties bool // default false (strict)
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolCategory tags the tool with a category.
func WithToolCategory(category string) ToolOption {
	return func(c *toolConfig) { c.category = category }
}

// WithToolVersion tags the tool with a version.
func WithToolVersion(v string) ToolOption {
	return func(c *toolConfig) { c.version = v }
}

// WithToolAuth marks the tool as requiring a session, and optionally a set
// of permissions.
func WithToolAuth(permissions ...string) ToolOption {
	return func(c *toolConfig) {
		c.authRequired = true
		c.permissions = append(c.permissions, permissions...)
	}
}

// WithToolAsync runs the handler through AsyncToolFunc.
func WithToolAsync() ToolOption {
	return func(c *toolConfig) { c.async = true }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), the generated schema sets additionalProperties=false and
// runtime decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a Tool from a typed args struct A. The input schema is
// reflected from A using invopop/jsonschema, and the handler decodes the
// argument map into A before calling fn.
func NewTool[A any](name string, fn func(ctx context.Context, sessionID string, args A) (any, error), opts ...ToolOption) Tool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	call := func(ctx context.Context, raw map[string]any, sessionID string) (any, error) {
		a, err := decodeArgs[A](raw, cfg.allowAdditionalProperties)
		if err != nil {
			return nil, err
		}
		return fn(ctx, sessionID, a)
	}

	var h ToolHandler = ToolFunc(call)
	if cfg.async {
		h = AsyncToolFunc(call)
	}

	return Tool{
		Name:         name,
		Description:  cfg.description,
		InputSchema:  reflectInputSchema[A](cfg.allowAdditionalProperties),
		Category:     cfg.category,
		Version:      cfg.version,
		Handler:      h,
		AuthRequired: cfg.authRequired,
		Permissions:  cfg.permissions,
	}
}

func decodeArgs[A any](raw map[string]any, allowAdditional bool) (A, error) {
	var a A
	if len(raw) == 0 {
		return a, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if !allowAdditional {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&a); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return a, nil
}

// TextResult is a small helper to build a text CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(s)}}
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(fmt.Sprintf(format, a...))}, IsError: true}
}

// wrapToolOutput converts a handler's return value into content blocks.
func wrapToolOutput(v any) ([]mcp.ContentBlock, error) {
	switch x := v.(type) {
	case []mcp.ContentBlock:
		return x, nil
	case mcp.ContentBlock:
		return []mcp.ContentBlock{x}, nil
	case string:
		return []mcp.ContentBlock{mcp.TextContent(x)}, nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("encode tool result: %w", err)
		}
		return []mcp.ContentBlock{mcp.TextContent(string(b))}, nil
	}
}
