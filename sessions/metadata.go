package sessions

import (
	"time"

	"github.com/netra-systems/zen-sub153/mcp"
)

// Session is the server-side record of a connected client. Values returned by
// the Store are snapshots; mutate sessions only through Store methods.
//
// ExpiresAt is CreatedAt + TTL and is reset when the client initializes again
// under the same id. Requests do not slide it.
type Session struct {
	ID              string                 `json:"id"`
	Transport       mcp.TransportKind      `json:"transport"`
	ProtocolVersion string                 `json:"protocol_version,omitempty"`
	Client          mcp.ImplementationInfo `json:"client,omitzero"`
	Capabilities    mcp.ClientCapabilities `json:"capabilities,omitempty"`
	State           map[string]any         `json:"state,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastRequest  time.Time `json:"last_request,omitzero"`
	RequestCount int64     `json:"request_count"`
}

// Expired reports whether the session's lifetime ended before now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// CreateParams describes a session to create or refresh. An empty ID asks the
// store to mint one.
type CreateParams struct {
	ID              string
	Transport       mcp.TransportKind
	ProtocolVersion string
	Client          mcp.ImplementationInfo
	Capabilities    mcp.ClientCapabilities
}
