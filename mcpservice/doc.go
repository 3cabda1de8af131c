// Package mcpservice holds the tool, resource and prompt registries the
// Netra MCP server dispatches into, together with the built-in catalog that
// fronts the platform services.
//
// Each registry is a threadsafe map keyed by name (tools, prompts) or URI
// (resources). Register overwrites an existing key and logs a warning;
// Unregister is a no-op for unknown keys; Clear empties the registry on
// shutdown. Listing returns public summaries sorted by key and filtered by
// the session's permissions when a PermissionFunc is configured.
//
// Tool execution never surfaces a Go error: lookup, auth, schema validation,
// handler failures and panics are all rendered as a CallToolResult with
// IsError set. Every execution and every resource read appends one record
// to the configured history recorder.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message"`
//	}
//	tools := mcpservice.NewToolRegistry(nil,
//	    mcpservice.NewTool("echo", func(ctx context.Context, sessionID string, a EchoArgs) (any, error) {
//	        return "you said: " + a.Message, nil
//	    }, mcpservice.WithToolDescription("Echo a message back to the caller")),
//	)
//	res := tools.Execute(ctx, "echo", map[string]any{"message": "hi"}, "sess-1")
package mcpservice
