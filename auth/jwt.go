package auth

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/netra-systems/zen-sub153/internal/jwtauth"
)

// TokenOption configures optional aspects of token validation (issuer,
// audience, scopes, algorithms, leeway).
type TokenOption func(*jwtauth.Config)

// WithIssuer requires the "iss" claim to match.
func WithIssuer(iss string) TokenOption {
	return func(c *jwtauth.Config) { c.Issuer = iss }
}

// WithAudience requires the "aud" claim to contain one of auds.
func WithAudience(auds ...string) TokenOption {
	return func(c *jwtauth.Config) { c.Audiences = append([]string(nil), auds...) }
}

// WithRequiredScopes requires all of the provided scopes to be present in the
// space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) TokenOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = false
	}
}

// WithAnyRequiredScope requires at least one of the provided scopes to be present.
func WithAnyRequiredScope(scopes ...string) TokenOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = true
	}
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
func WithAllowedAlgs(algs ...string) TokenOption {
	return func(c *jwtauth.Config) { c.AllowedAlgs = append([]string(nil), algs...) }
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) TokenOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

// WithClock sets the clock used for exp/nbf checks.
func WithClock(clock clockwork.Clock) TokenOption {
	return func(c *jwtauth.Config) { c.Clock = clock }
}

func buildConfig(opts []TokenOption) jwtauth.Config {
	cfg := jwtauth.DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// NewHMAC returns an Authenticator for HS256 tokens signed with secret.
func NewHMAC(secret []byte, opts ...TokenOption) (Authenticator, error) {
	v, err := jwtauth.NewHMAC(buildConfig(opts), secret)
	if err != nil {
		return nil, err
	}
	return &tokenAuthenticator{v: v}, nil
}

// NewJWKS returns an Authenticator for tokens signed by keys published at
// jwksURL. Keys are refreshed in the background until ctx is done.
func NewJWKS(ctx context.Context, jwksURL string, opts ...TokenOption) (Authenticator, error) {
	v, err := jwtauth.NewJWKS(ctx, buildConfig(opts), jwksURL)
	if err != nil {
		return nil, err
	}
	return &tokenAuthenticator{v: v}, nil
}

// Metadata describes the authorization server protecting this resource, as
// learned through discovery.
type Metadata struct {
	Issuer          string
	JWKSURL         string
	ScopesSupported []string
}

// DiscoveryAuthenticator is an Authenticator that also exposes the
// discovered authorization server metadata.
type DiscoveryAuthenticator struct {
	tokenAuthenticator
	meta Metadata
}

// Metadata returns the discovered authorization server metadata.
func (d *DiscoveryAuthenticator) Metadata() Metadata {
	m := d.meta
	m.ScopesSupported = slices.Clone(m.ScopesSupported)
	return m
}

// NewFromDiscovery returns an Authenticator that verifies RFC 9068 JWT
// access tokens issued by issuer, discovering its JWKS through OpenID Connect.
func NewFromDiscovery(ctx context.Context, issuer string, opts ...TokenOption) (*DiscoveryAuthenticator, error) {
	cfg := buildConfig(opts)
	cfg.Issuer = issuer
	cfg.AccessTokenTyp = true
	v, meta, err := jwtauth.NewFromDiscovery(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &DiscoveryAuthenticator{
		tokenAuthenticator: tokenAuthenticator{v: v},
		meta:               Metadata{Issuer: meta.Issuer, JWKSURL: meta.JWKSURL, ScopesSupported: meta.ScopesSupported},
	}, nil
}

type tokenAuthenticator struct {
	v *jwtauth.Verifier
}

func (a *tokenAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	c, err := a.v.Verify(ctx, tok)
	if err != nil {
		// Map internal sentinel errors to public errors used by the transports.
		if errors.Is(err, jwtauth.ErrInsufficientScope) {
			return nil, errors.Join(ErrInsufficientScope, err)
		}
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return tokenUser{c: c}, nil
}

type tokenUser struct{ c *jwtauth.Claims }

func (u tokenUser) UserID() string        { return u.c.Subject }
func (u tokenUser) Permissions() []string { return slices.Clone(u.c.Permissions) }
func (u tokenUser) Claims(ref any) error {
	b, err := json.Marshal(u.c.Raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}
