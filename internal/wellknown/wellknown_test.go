package wellknown

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewProtectedResource(t *testing.T) {
	scopes := []string{"mcp:read"}
	md := NewProtectedResource("https://api.example/mcp", "netra", "https://issuer.example", "https://issuer.example/jwks", scopes)
	scopes[0] = "mutated"

	b, err := json.Marshal(md)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"resource":                 "https://api.example/mcp",
		"authorization_servers":    []any{"https://issuer.example"},
		"jwks_uri":                 "https://issuer.example/jwks",
		"scopes_supported":         []any{"mcp:read"},
		"bearer_methods_supported": []any{"header"},
		"resource_name":            "netra",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestNewProtectedResourceWithoutIssuer(t *testing.T) {
	md := NewProtectedResource("https://api.example/mcp", "", "", "", nil)
	if md.AuthorizationServers != nil {
		t.Fatalf("AuthorizationServers = %v, want nil", md.AuthorizationServers)
	}
}
