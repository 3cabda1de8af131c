package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/netra-systems/zen-sub153/auth"
	"github.com/netra-systems/zen-sub153/config"
	"github.com/netra-systems/zen-sub153/internal/wellknown"
)

// buildAuthenticator combines every configured credential source. It returns
// a nil authenticator when none is configured, and protected resource
// metadata when tokens come from an external authorization server.
func buildAuthenticator(ctx context.Context, cfg *config.Config, log *slog.Logger) (auth.Authenticator, *wellknown.ProtectedResourceMetadata, error) {
	var (
		chain []auth.Authenticator
		prm   *wellknown.ProtectedResourceMetadata
	)

	if keys := cfg.Keys(); len(keys) > 0 {
		static := make(auth.Static, len(keys))
		for i, k := range keys {
			static[k] = auth.User{ID: fmt.Sprintf("api-key-%d", i+1), Perms: []string{"*"}}
		}
		chain = append(chain, static)
	}

	var tokenOpts []auth.TokenOption
	if cfg.JWTIssuer != "" {
		tokenOpts = append(tokenOpts, auth.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		tokenOpts = append(tokenOpts, auth.WithAudience(cfg.JWTAudience))
	}

	if cfg.JWTSecret != "" {
		a, err := auth.NewHMAC([]byte(cfg.JWTSecret), tokenOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("jwt secret: %w", err)
		}
		chain = append(chain, a)
	}

	resource := strings.TrimRight(cfg.PublicURL, "/") + cfg.BasePath
	switch {
	case cfg.OIDCIssuer != "":
		d, err := auth.NewFromDiscovery(ctx, cfg.OIDCIssuer, tokenOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("oidc discovery: %w", err)
		}
		chain = append(chain, d)
		if cfg.PublicURL != "" {
			meta := d.Metadata()
			m := wellknown.NewProtectedResource(resource, cfg.ServerName, meta.Issuer, meta.JWKSURL, meta.ScopesSupported)
			prm = &m
		}
	case cfg.JWKSURL != "":
		a, err := auth.NewJWKS(ctx, cfg.JWKSURL, tokenOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("jwks: %w", err)
		}
		chain = append(chain, a)
		if cfg.PublicURL != "" {
			m := wellknown.NewProtectedResource(resource, cfg.ServerName, cfg.JWTIssuer, cfg.JWKSURL, nil)
			prm = &m
		}
	}

	if len(chain) == 0 {
		return nil, nil, nil
	}
	log.InfoContext(ctx, "auth.configured", slog.Int("sources", len(chain)), slog.Bool("required", cfg.RequireAuth))
	a := chain[0]
	if len(chain) > 1 {
		a = auth.Chain(chain...)
	}
	if cfg.AuthCacheSize > 0 {
		c, err := auth.Cached(a, auth.CacheConfig{Size: cfg.AuthCacheSize, TTL: cfg.AuthCacheTTL})
		if err != nil {
			return nil, nil, err
		}
		a = c
	}
	return a, prm, nil
}
