package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/netra-systems/zen-sub153/mcp"
)

// PromptFunc renders a prompt from its string-typed arguments. When set on a
// Prompt it replaces template substitution.
type PromptFunc func(ctx context.Context, args map[string]string, sessionID string) ([]mcp.PromptMessage, error)

// Prompt is a registered prompt template. Template placeholders take the
// form {{name}}; whitespace inside the braces is ignored.
type Prompt struct {
	Name        string
	Description string
	Arguments   []mcp.PromptArgument
	Template    string
	Category    string
	Handler     PromptFunc
	Permissions []string
}

// Summary returns the public listing fields.
func (p Prompt) Summary() mcp.Prompt {
	return mcp.Prompt{
		Name:        p.Name,
		Description: p.Description,
		Arguments:   p.Arguments,
		Category:    p.Category,
	}
}

var placeholderRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Placeholders returns the distinct placeholder names in tmpl in order of
// first appearance.
func Placeholders(tmpl string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range placeholderRE.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Render substitutes args into tmpl. Placeholders without a value are left
// untouched.
func Render(tmpl string, args map[string]string) string {
	return placeholderRE.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholderRE.FindStringSubmatch(m)[1]
		if v, ok := args[name]; ok {
			return v
		}
		return m
	})
}

// argString converts a raw JSON argument for substitution: JSON strings are
// unquoted, every other value keeps its compact JSON encoding.
func argString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// PromptRegistry owns prompt templates.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]Prompt

	opts     options
	notifier ChangeNotifier
}

// NewPromptRegistry constructs a registry holding defs.
func NewPromptRegistry(opts []Option, defs ...Prompt) *PromptRegistry {
	r := &PromptRegistry{prompts: make(map[string]Prompt), opts: newOptions(opts)}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register inserts or overwrites a prompt by name.
func (r *PromptRegistry) Register(p Prompt) {
	r.mu.Lock()
	_, exists := r.prompts[p.Name]
	r.prompts[p.Name] = p
	r.mu.Unlock()
	if exists {
		r.opts.logger.Warn("prompts.register.overwrite", slog.String("prompt", p.Name))
	}
	r.notifier.Notify()
}

// Unregister removes a prompt if present.
func (r *PromptRegistry) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.prompts[name]
	delete(r.prompts, name)
	r.mu.Unlock()
	if ok {
		r.notifier.Notify()
	}
	return ok
}

// Len reports how many prompts are registered.
func (r *PromptRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts)
}

// List returns the public summaries visible to the session, sorted by name.
func (r *PromptRegistry) List(ctx context.Context, sessionID string) []mcp.Prompt {
	r.mu.RLock()
	all := make([]Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		all = append(all, p)
	}
	r.mu.RUnlock()

	out := make([]mcp.Prompt, 0, len(all))
	for _, p := range all {
		if r.opts.allowed(ctx, sessionID, p.Permissions) {
			out = append(out, p.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clear removes every prompt and releases change subscribers.
func (r *PromptRegistry) Clear() {
	r.mu.Lock()
	r.prompts = make(map[string]Prompt)
	r.mu.Unlock()
	r.notifier.Close()
}

// Subscribe returns a change signal channel, see ChangeNotifier.Subscribe.
func (r *PromptRegistry) Subscribe() (<-chan struct{}, func()) {
	return r.notifier.Subscribe()
}

// Get renders the named prompt with args.
func (r *PromptRegistry) Get(ctx context.Context, name string, args map[string]json.RawMessage, sessionID string) (*mcp.GetPromptResult, error) {
	r.mu.RLock()
	p, ok := r.prompts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Type: "prompt", Name: name}
	}
	if !r.opts.allowed(ctx, sessionID, p.Permissions) {
		return nil, Failf("%w: prompt %s", ErrPermissionDenied, name)
	}

	values := make(map[string]string, len(args))
	for k, v := range args {
		values[k] = argString(v)
	}
	for _, a := range p.Arguments {
		if _, ok := values[a.Name]; a.Required && !ok {
			return nil, &RequiredError{Field: a.Name}
		}
	}

	if p.Handler != nil {
		msgs, err := p.Handler(ctx, values, sessionID)
		if err != nil {
			return nil, err
		}
		return &mcp.GetPromptResult{Description: p.Description, Messages: msgs}, nil
	}

	return &mcp.GetPromptResult{
		Description: p.Description,
		Messages: []mcp.PromptMessage{{
			Role:    mcp.RoleUser,
			Content: mcp.TextContent(Render(p.Template, values)),
		}},
	}, nil
}
