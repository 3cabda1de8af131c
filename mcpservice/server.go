package mcpservice

import (
	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/platform"
)

// Registries bundles the three registries handed to the dispatcher. Any of
// them may be nil, which disables the corresponding capability.
type Registries struct {
	Tools     *ToolRegistry
	Resources *ResourceRegistry
	Prompts   *PromptRegistry
}

// NewBuiltinRegistries constructs registries pre-populated with the built-in
// catalog backed by svc.
func NewBuiltinRegistries(svc *platform.Services, opts ...Option) *Registries {
	return &Registries{
		Tools:     NewToolRegistry(opts, BuiltinTools(svc)...),
		Resources: NewBuiltinResources(svc, opts...),
		Prompts:   NewPromptRegistry(opts, BuiltinPrompts()...),
	}
}

// Capabilities reports which registries are present.
func (r *Registries) Capabilities() mcp.ServerCapabilities {
	if r == nil {
		return mcp.ServerCapabilities{}
	}
	return mcp.ServerCapabilities{
		Tools:     r.Tools != nil,
		Resources: r.Resources != nil,
		Prompts:   r.Prompts != nil,
	}
}

// Clear empties every present registry.
func (r *Registries) Clear() {
	if r == nil {
		return
	}
	if r.Tools != nil {
		r.Tools.Clear()
	}
	if r.Resources != nil {
		r.Resources.Clear()
	}
	if r.Prompts != nil {
		r.Prompts.Clear()
	}
}
