package mcpservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/netra-systems/zen-sub153/history"
	"github.com/netra-systems/zen-sub153/mcp"
)

type registeredTool struct {
	Tool
	schema *jsonschema.Resolved
}

// ToolRegistry owns a mutable, threadsafe set of tool descriptors and
// executes them. Execution never returns a Go error to the caller; every
// failure is rendered into a CallToolResult with IsError set.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool

	opts     options
	notifier ChangeNotifier
}

// NewToolRegistry constructs a registry holding defs.
func NewToolRegistry(opts []Option, defs ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]*registeredTool), opts: newOptions(opts)}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register inserts or overwrites a tool by name. The input schema is
// compiled for later validation; a schema that fails to compile is logged
// and the tool is registered without validation.
func (r *ToolRegistry) Register(t Tool) {
	rt := &registeredTool{Tool: t}
	if len(t.InputSchema) > 0 {
		resolved, err := compileSchema(t.InputSchema)
		if err != nil {
			r.opts.logger.Warn("tools.register.schema_invalid", slog.String("tool", t.Name), slog.String("err", err.Error()))
		}
		rt.schema = resolved
	}

	r.mu.Lock()
	_, exists := r.tools[t.Name]
	r.tools[t.Name] = rt
	r.mu.Unlock()

	if exists {
		r.opts.logger.Warn("tools.register.overwrite", slog.String("tool", t.Name))
	}
	r.notifier.Notify()
}

// Unregister removes a tool if present. It reports whether anything was removed.
func (r *ToolRegistry) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	r.mu.Unlock()
	if ok {
		r.notifier.Notify()
	}
	return ok
}

// Get returns the descriptor registered under name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return t.Tool, true
}

// Len reports how many tools are registered.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns the public summaries visible to the session, sorted by name.
func (r *ToolRegistry) List(ctx context.Context, sessionID string) []mcp.Tool {
	r.mu.RLock()
	all := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		all = append(all, t.Tool)
	}
	r.mu.RUnlock()

	out := make([]mcp.Tool, 0, len(all))
	for _, t := range all {
		if r.opts.allowed(ctx, sessionID, t.Permissions) {
			out = append(out, t.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clear removes every tool and releases change subscribers.
func (r *ToolRegistry) Clear() {
	r.mu.Lock()
	r.tools = make(map[string]*registeredTool)
	r.mu.Unlock()
	r.notifier.Close()
}

// Subscribe returns a change signal channel, see ChangeNotifier.Subscribe.
func (r *ToolRegistry) Subscribe() (<-chan struct{}, func()) {
	return r.notifier.Subscribe()
}

// Execute runs the named tool. Every attempt appends one execution record.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any, sessionID string) *mcp.CallToolResult {
	start := r.opts.clock.Now()
	rec := history.ExecutionRecord{Tool: name, SessionID: sessionID, Arguments: args, Status: history.StatusPending}

	res, err := r.execute(ctx, name, args, sessionID)

	rec.ElapsedMS = r.opts.clock.Since(start).Milliseconds()
	rec.At = start
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrToolTimeout)):
		rec.Status = history.StatusTimeout
		rec.Error = err.Error()
	case err != nil:
		rec.Status = history.StatusError
		rec.Error = err.Error()
	case res.IsError:
		rec.Status = history.StatusError
		rec.Result = res.Content
	default:
		rec.Status = history.StatusSuccess
		rec.Result = res.Content
	}
	r.opts.executions.Record(ctx, rec)

	if err != nil {
		r.opts.logger.WarnContext(ctx, "tools.execute.fail",
			slog.String("tool", name),
			slog.String("session_id", sessionID),
			slog.String("status", string(rec.Status)),
			slog.Int64("dur_ms", rec.ElapsedMS),
			slog.String("err", err.Error()),
		)
		return Errorf("Error executing tool %s: %v", name, err)
	}
	return res
}

func (r *ToolRegistry) execute(ctx context.Context, name string, args map[string]any, sessionID string) (res *mcp.CallToolResult, err error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Type: "tool", Name: name}
	}
	if t.AuthRequired && sessionID == "" {
		return nil, ErrAuthRequired
	}
	if !r.opts.allowed(ctx, sessionID, t.Permissions) {
		return nil, fmt.Errorf("%w: tool %s", ErrPermissionDenied, name)
	}
	if t.schema != nil {
		instance := args
		if instance == nil {
			instance = map[string]any{}
		}
		if verr := t.schema.Validate(instance); verr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, verr)
		}
	}
	if t.Handler == nil {
		return nil, ErrNoHandler
	}

	h := t.Handler
	if r.opts.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.toolTimeout)
		defer cancel()
		if _, isAsync := h.(AsyncToolFunc); !isAsync {
			h = AsyncToolFunc(h.Invoke)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("tool panicked: %v", p)
		}
	}()

	out, err := h.Invoke(ctx, args, sessionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && r.opts.toolTimeout > 0 {
			return nil, fmt.Errorf("%w after %s", ErrToolTimeout, r.opts.toolTimeout)
		}
		return nil, err
	}
	if cr, ok := out.(*mcp.CallToolResult); ok && cr != nil {
		if cr.Content == nil {
			cr.Content = []mcp.ContentBlock{}
		}
		return cr, nil
	}
	content, err := wrapToolOutput(out)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: content}, nil
}
