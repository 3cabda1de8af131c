// Package jwtauth verifies bearer JWTs. Keys come from a shared HMAC secret,
// a JWKS endpoint or an OpenID Connect issuer's discovery document.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// ErrUnauthorized indicates that the token failed validation (e.g.,
// signature, issuer, audience, exp/nbf) and the request should be treated as
// unauthenticated.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// ErrInsufficientScope indicates the token was valid but did not satisfy the
// required scopes policy.
var ErrInsufficientScope = errors.New("jwtauth: insufficient_scope")

// Config controls validation behavior for tokens.
type Config struct {
	// Issuer, when set, must match the "iss" claim.
	Issuer string
	// Audiences, when non-empty, must intersect the "aud" claim.
	Audiences      []string
	RequiredScopes []string
	ScopeModeAny   bool // if true, any of RequiredScopes is sufficient; else all are required
	AllowedAlgs    []string
	Leeway         time.Duration
	// AccessTokenTyp requires the RFC 9068 "at+jwt" typ header.
	AccessTokenTyp bool
	Clock          clockwork.Clock
}

// DefaultConfig returns a Config with safe defaults for algorithm and leeway.
func DefaultConfig() Config {
	return Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

// Claims is the verified view of a token.
type Claims struct {
	Subject     string
	Scopes      []string
	Permissions []string
	Raw         jwt.MapClaims
}

// Verifier checks tokens against a Config and a key source.
type Verifier struct {
	cfg     Config
	keyfunc jwt.Keyfunc
}

func newVerifier(cfg Config, kf jwt.Keyfunc) *Verifier {
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Verifier{cfg: cfg, keyfunc: func(t *jwt.Token) (any, error) {
		if alg := t.Method.Alg(); !slices.Contains(cfg.AllowedAlgs, alg) {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf(t)
	}}
}

// NewHMAC verifies tokens signed with a shared secret. AllowedAlgs defaults
// to HS256.
func NewHMAC(cfg Config, secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("hmac secret is required")
	}
	if len(cfg.AllowedAlgs) == 0 || slices.Equal(cfg.AllowedAlgs, []string{"RS256"}) {
		cfg.AllowedAlgs = []string{"HS256"}
	}
	key := slices.Clone(secret)
	return newVerifier(cfg, func(*jwt.Token) (any, error) { return key, nil }), nil
}

// NewJWKS verifies tokens against an auto-refreshing JWKS endpoint.
func NewJWKS(ctx context.Context, cfg Config, jwksURL string) (*Verifier, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return newVerifier(cfg, kf.Keyfunc), nil
}

// Discovery is the subset of an issuer's OpenID configuration this package
// uses.
type Discovery struct {
	Issuer                string   `json:"issuer"`
	JWKSURL               string   `json:"jwks_uri"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	ScopesSupported       []string `json:"scopes_supported"`
}

// NewFromDiscovery performs OIDC discovery against cfg.Issuer and verifies
// tokens against the advertised jwks_uri. The discovered issuer replaces
// cfg.Issuer.
func NewFromDiscovery(ctx context.Context, cfg Config) (*Verifier, Discovery, error) {
	if cfg.Issuer == "" {
		return nil, Discovery{}, errors.New("issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, Discovery{}, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta Discovery
	if err := provider.Claims(&meta); err != nil {
		return nil, Discovery{}, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JWKSURL == "" {
		return nil, Discovery{}, errors.New("discovery incomplete: missing jwks_uri")
	}
	cfg.Issuer = meta.Issuer
	v, err := NewJWKS(ctx, cfg, meta.JWKSURL)
	if err != nil {
		return nil, Discovery{}, err
	}
	return v, meta, nil
}

// Verify parses tok and enforces the configured policy.
func (v *Verifier) Verify(_ context.Context, tok string) (*Claims, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.cfg.Clock.Now),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	parsed, err := jwt.NewParser(opts...).Parse(tok, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	if v.cfg.AccessTokenTyp {
		if typ, _ := parsed.Header["typ"].(string); typ != "at+jwt" && typ != "application/at+jwt" {
			return nil, fmt.Errorf("%w: invalid typ; want at+jwt", ErrUnauthorized)
		}
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if len(v.cfg.Audiences) > 0 && !audIntersects(claims["aud"], v.cfg.Audiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}

	scopeStr, _ := claims["scope"].(string)
	scopes := strings.Fields(scopeStr)
	if !scopesSatisfied(scopes, v.cfg.RequiredScopes, v.cfg.ScopeModeAny) {
		return nil, ErrInsufficientScope
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return &Claims{Subject: sub, Scopes: scopes, Permissions: stringList(claims["permissions"]), Raw: claims}, nil
}

func scopesSatisfied(have, required []string, anyOf bool) bool {
	if len(required) == 0 {
		return true
	}
	if anyOf {
		return slices.ContainsFunc(required, func(s string) bool { return slices.Contains(have, s) })
	}
	for _, want := range required {
		if !slices.Contains(have, want) {
			return false
		}
	}
	return true
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Fields(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return slices.Clone(t)
	}
	return nil
}

func audIntersects(aud any, wants []string) bool {
	for _, a := range stringList(aud) {
		if slices.Contains(wants, a) {
			return true
		}
	}
	return false
}
