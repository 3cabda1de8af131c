// Package auth provides the authentication primitives used by the HTTP and
// WebSocket transports.
//
// An Authenticator validates an incoming bearer token and returns a
// UserInfo (or an error). Transports extract the token from the request and
// map the sentinel errors to HTTP statuses; an authenticated subject becomes
// the caller's session id and its permissions are copied into the session's
// state.
//
// Three token sources are supported:
//
//	NewHMAC           shared-secret HS256 tokens
//	NewJWKS           tokens signed by keys published at a JWKS URL
//	NewFromDiscovery  RFC 9068 access tokens from an OpenID Connect issuer
//
// Example:
//
//	authn, err := auth.NewFromDiscovery(ctx, "https://issuer.example",
//	    auth.WithAudience("https://mcp.example/mcp"),
//	    auth.WithRequiredScopes("mcp:read"),
//	)
//	if err != nil { log.Fatal(err) }
//	ui, err := authn.CheckAuthentication(r.Context(), bearerToken)
//	if errors.Is(err, auth.ErrUnauthorized) { /* 401 */ }
//	if errors.Is(err, auth.ErrInsufficientScope) { /* 403 */ }
//
// # Errors
//
// ErrUnauthorized signals the token is invalid (signature, expiry, audience,
// etc.). ErrInsufficientScope signals successful authentication but missing
// required scope(s).
package auth
