// Package wellknown holds the OAuth discovery documents served under
// /.well-known.
package wellknown

import "slices"

// ProtectedResourceMetadata is the OAuth 2.0 Protected Resource Metadata
// document (RFC 9728).
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	JwksURI                string   `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
	ResourceDocumentation  string   `json:"resource_documentation,omitempty"`
}

// NewProtectedResource describes resource as protected by the authorization
// server issuer. Tokens are accepted in the Authorization header only.
func NewProtectedResource(resource, name, issuer, jwksURI string, scopes []string) ProtectedResourceMetadata {
	md := ProtectedResourceMetadata{
		Resource:               resource,
		JwksURI:                jwksURI,
		ScopesSupported:        slices.Clone(scopes),
		BearerMethodsSupported: []string{"header"},
		ResourceName:           name,
	}
	if issuer != "" {
		md.AuthorizationServers = []string{issuer}
	}
	return md
}
