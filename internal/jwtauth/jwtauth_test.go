package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type mockOIDC struct {
	srv      *httptest.Server
	issuer   string
	jwksPath string
}

func newMockOIDC(t *testing.T, keysJSON []byte) *mockOIDC {
	t.Helper()
	m := &mockOIDC{jwksPath: "/keys"}
	handler := http.NewServeMux()
	handler.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                   m.issuer,
			"jwks_uri":                 m.issuer + m.jwksPath,
			"authorization_endpoint":   m.issuer + "/oauth2/auth",
			"token_endpoint":           m.issuer + "/oauth2/token",
			"response_types_supported": []string{"code"},
			"scopes_supported":         []string{"mcp:read", "mcp:write"},
		})
	})
	handler.HandleFunc(m.jwksPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	})
	m.srv = httptest.NewServer(handler)
	m.issuer = m.srv.URL
	t.Cleanup(m.srv.Close)
	return m
}

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signRSA(t *testing.T, pk *rsa.PrivateKey, kid, typ string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	if typ != "" {
		tok.Header["typ"] = typ
	}
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func signHMAC(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func claimsAt(now time.Time, extra jwt.MapClaims) jwt.MapClaims {
	c := jwt.MapClaims{
		"sub": "user-123",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func TestHMAC(t *testing.T) {
	secret := []byte("s3cret")
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := Config{Issuer: "netra", Audiences: []string{"mcp"}, Clock: clock}
	v, err := NewHMAC(cfg, secret)
	if err != nil {
		t.Fatalf("NewHMAC: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid", token: signHMAC(t, secret, claimsAt(epoch, jwt.MapClaims{"iss": "netra", "aud": "mcp"}))},
		{name: "wrong secret", token: signHMAC(t, []byte("other"), claimsAt(epoch, jwt.MapClaims{"iss": "netra", "aud": "mcp"})), wantErr: ErrUnauthorized},
		{name: "wrong issuer", token: signHMAC(t, secret, claimsAt(epoch, jwt.MapClaims{"iss": "evil", "aud": "mcp"})), wantErr: ErrUnauthorized},
		{name: "wrong audience", token: signHMAC(t, secret, claimsAt(epoch, jwt.MapClaims{"iss": "netra", "aud": "web"})), wantErr: ErrUnauthorized},
		{name: "expired", token: signHMAC(t, secret, claimsAt(epoch.Add(-2*time.Hour), jwt.MapClaims{"iss": "netra", "aud": "mcp"})), wantErr: ErrUnauthorized},
		{name: "missing sub", token: signHMAC(t, secret, jwt.MapClaims{"iss": "netra", "aud": "mcp", "exp": epoch.Add(time.Hour).Unix()}), wantErr: ErrUnauthorized},
		{name: "empty", token: "", wantErr: ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.token)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Verify() = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHMACExpiryFollowsClock(t *testing.T) {
	secret := []byte("s3cret")
	clock := clockwork.NewFakeClockAt(epoch)
	v, err := NewHMAC(Config{Clock: clock}, secret)
	if err != nil {
		t.Fatal(err)
	}
	tok := signHMAC(t, secret, claimsAt(epoch, nil))
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("Verify() before expiry = %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Verify() after expiry = %v, want unauthorized", err)
	}
}

func TestClaimsExposePermissionsAndScopes(t *testing.T) {
	secret := []byte("s3cret")
	v, err := NewHMAC(Config{}, secret)
	if err != nil {
		t.Fatal(err)
	}
	tok := signHMAC(t, secret, claimsAt(time.Now(), jwt.MapClaims{
		"scope":       "mcp:read mcp:write",
		"permissions": []string{"threads:write", "admin"},
	}))
	c, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify() = %v", err)
	}
	if c.Subject != "user-123" {
		t.Fatalf("Subject = %q", c.Subject)
	}
	if diff := cmp.Diff([]string{"mcp:read", "mcp:write"}, c.Scopes); diff != "" {
		t.Fatalf("scopes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"threads:write", "admin"}, c.Permissions); diff != "" {
		t.Fatalf("permissions mismatch (-want +got):\n%s", diff)
	}
}

func TestRequiredScopes(t *testing.T) {
	secret := []byte("s3cret")
	tok := signHMAC(t, secret, claimsAt(time.Now(), jwt.MapClaims{"scope": "mcp:write"}))

	all, _ := NewHMAC(Config{RequiredScopes: []string{"mcp:write", "mcp:admin"}}, secret)
	if _, err := all.Verify(context.Background(), tok); !errors.Is(err, ErrInsufficientScope) {
		t.Fatalf("want ErrInsufficientScope, got %v", err)
	}
	anyOf, _ := NewHMAC(Config{RequiredScopes: []string{"mcp:write", "mcp:admin"}, ScopeModeAny: true}, secret)
	if _, err := anyOf.Verify(context.Background(), tok); err != nil {
		t.Fatalf("any-of scopes: %v", err)
	}
}

func TestNewHMACRequiresSecret(t *testing.T) {
	if _, err := NewHMAC(Config{}, nil); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestFromDiscovery(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	idp := newMockOIDC(t, jwks)

	aud := "https://api.example.com/mcp"
	cfg := DefaultConfig()
	cfg.Issuer = idp.issuer
	cfg.Audiences = []string{aud}
	cfg.AccessTokenTyp = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, meta, err := NewFromDiscovery(ctx, cfg)
	if err != nil {
		t.Fatalf("NewFromDiscovery: %v", err)
	}
	if meta.JWKSURL != idp.issuer+"/keys" || len(meta.ScopesSupported) != 2 {
		t.Fatalf("discovery metadata = %+v", meta)
	}

	now := time.Now()
	good := signRSA(t, pk, kid, "at+jwt", claimsAt(now, jwt.MapClaims{"iss": idp.issuer, "aud": []string{"https://other", aud}}))
	if c, err := v.Verify(ctx, good); err != nil || c.Subject != "user-123" {
		t.Fatalf("Verify(good) = %+v, %v", c, err)
	}

	for name, tok := range map[string]string{
		"wrong typ":    signRSA(t, pk, kid, "JWT", claimsAt(now, jwt.MapClaims{"iss": idp.issuer, "aud": aud})),
		"wrong issuer": signRSA(t, pk, kid, "at+jwt", claimsAt(now, jwt.MapClaims{"iss": "https://evil.example.com", "aud": aud})),
		"hmac alg":     signHMAC(t, []byte("guess"), claimsAt(now, jwt.MapClaims{"iss": idp.issuer, "aud": aud})),
	} {
		if _, err := v.Verify(ctx, tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: want ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestFromDiscoveryRequiresIssuer(t *testing.T) {
	if _, _, err := NewFromDiscovery(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected error without issuer")
	}
}
