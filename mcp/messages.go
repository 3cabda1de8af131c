package mcp

import "encoding/json"

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// Methods answered by the server.
const (
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"
	PingMethod                    Method = "ping"

	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	ResourcesListMethod Method = "resources/list"
	ResourcesReadMethod Method = "resources/read"

	PromptsListMethod Method = "prompts/list"
	PromptsGetMethod  Method = "prompts/get"

	SamplingCreateMessageMethod Method = "sampling/createMessage"
)

// Notifications emitted by the server.
const (
	ServerInfoNotification            = "server.info"
	ConnectionEstablishedNotification = "connection.established"
	HeartbeatNotification             = "heartbeat"

	ToolsListChangedNotification     = "notifications/tools/list_changed"
	ResourcesListChangedNotification = "notifications/resources/list_changed"
	PromptsListChangedNotification   = "notifications/prompts/list_changed"
)

// ParseMethod maps a wire method name onto the closed set of supported
// methods.
func ParseMethod(s string) (Method, bool) {
	switch m := Method(s); m {
	case InitializeMethod,
		InitializedNotificationMethod,
		PingMethod,
		ToolsListMethod,
		ToolsCallMethod,
		ResourcesListMethod,
		ResourcesReadMethod,
		PromptsListMethod,
		PromptsGetMethod,
		SamplingCreateMessageMethod:
		return m, true
	default:
		return "", false
	}
}

// InitializeRequest starts a session.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
	Transport       TransportKind      `json:"transport,omitempty"`
	SessionID       string             `json:"sessionId,omitempty"`
}

// InitializeResult returns server capability flags, server info and the
// session id the client should present on subsequent requests.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	SessionID       string             `json:"sessionId"`
	Instructions    string             `json:"instructions,omitzero"`
}

// PingResult is the liveness reply.
type PingResult struct {
	Timestamp string `json:"timestamp"`
}

// ListToolsResult returns the available tools.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequest is the params object of tools/call.
type CallToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult represents a tool invocation result.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// ListResourcesResult returns the available resources.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ReadResourceRequest requests the contents of a resource by URI.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}

// ReadResourceResult returns resource contents.
type ReadResourceResult struct {
	Contents []ContentBlock `json:"contents"`
}

// ListPromptsResult returns available prompts.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptRequest requests a rendered prompt by name.
type GetPromptRequest struct {
	Name      string                     `json:"name"`
	Arguments map[string]json.RawMessage `json:"arguments,omitempty"`
}

// GetPromptResult returns a rendered prompt.
type GetPromptResult struct {
	Description string          `json:"description,omitzero"`
	Messages    []PromptMessage `json:"messages"`
}

// CreateMessageRequest requests a model-generated message.
type CreateMessageRequest struct {
	Messages         []SamplingMessage `json:"messages"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`
	SystemPrompt     string            `json:"systemPrompt,omitzero"`
	Temperature      float64           `json:"temperature,omitzero"`
	MaxTokens        int               `json:"maxTokens,omitzero"`
	StopSequences    []string          `json:"stopSequences,omitempty"`
}

// CreateMessageResult returns a generated message.
type CreateMessageResult struct {
	Role       Role         `json:"role"`
	Content    ContentBlock `json:"content"`
	Model      string       `json:"model"`
	StopReason string       `json:"stopReason,omitzero"`
}

// ServerInfoParams is carried by the server.info notification on stdio.
type ServerInfoParams struct {
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	SessionID       string             `json:"sessionId,omitempty"`
}

// ConnectionEstablishedParams is sent once per WebSocket connection.
type ConnectionEstablishedParams struct {
	SessionID  string             `json:"sessionId"`
	ServerInfo ImplementationInfo `json:"serverInfo"`
}

// HeartbeatParams is sent periodically on long-lived connections.
type HeartbeatParams struct {
	Timestamp string `json:"timestamp"`
}
