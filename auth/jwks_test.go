package auth

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
)

// issuerServer serves an OpenID configuration and a JWK Set.
type issuerServer struct {
	srv  *httptest.Server
	meta map[string]any
}

func newIssuerServer(t *testing.T, jwks []byte, meta map[string]any) *issuerServer {
	t.Helper()
	is := &issuerServer{meta: meta}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"issuer":                   is.srv.URL,
			"jwks_uri":                 is.srv.URL + "/keys",
			"authorization_endpoint":   is.srv.URL + "/oauth2/auth",
			"token_endpoint":           is.srv.URL + "/oauth2/token",
			"response_types_supported": []string{"code"},
		}
		for k, v := range is.meta {
			doc[k] = v
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	})
	is.srv = httptest.NewServer(mux)
	t.Cleanup(is.srv.Close)
	return is
}

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signRSA(t *testing.T, pk *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func rsaClaims(issuer string) jwt.MapClaims {
	c := baseClaims()
	c["iss"] = issuer
	return c
}

func jwksConfig(issuer string) JWKSConfig {
	return JWKSConfig{
		Issuer:         issuer,
		Audiences:      []string{"other", "shapecheck"},
		RequiredScopes: []string{"shapes:write"},
		Leeway:         time.Second,
	}
}

func TestStatic(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	is := newIssuerServer(t, jwks, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := NewStatic(ctx, jwksConfig(is.srv.URL), is.srv.URL+"/keys")
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	ui, err := a.CheckAuthentication(ctx, signRSA(t, pk, kid, rsaClaims(is.srv.URL)))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if ui.UserID() != "user-1" {
		t.Fatalf("unexpected user %q", ui.UserID())
	}

	otherKey, _, _ := genRSA(t)
	cases := []struct {
		name   string
		tok    string
		target error
	}{
		{"wrong issuer", signRSA(t, pk, kid, rsaClaims("https://elsewhere.test")), ErrUnauthorized},
		{"wrong audience", func() string {
			c := rsaClaims(is.srv.URL)
			c["aud"] = "nobody"
			return signRSA(t, pk, kid, c)
		}(), ErrUnauthorized},
		{"expired", func() string {
			c := rsaClaims(is.srv.URL)
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return signRSA(t, pk, kid, c)
		}(), ErrUnauthorized},
		{"unknown signer", signRSA(t, otherKey, kid, rsaClaims(is.srv.URL)), ErrUnauthorized},
		{"hs256 not allowed", sign(t, testKey, jwt.SigningMethodHS256, rsaClaims(is.srv.URL)), ErrUnauthorized},
		{"missing scope", func() string {
			c := rsaClaims(is.srv.URL)
			c["scope"] = "shapes:read"
			return signRSA(t, pk, kid, c)
		}(), ErrInsufficientScope},
		{"empty", "", ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.CheckAuthentication(ctx, tc.tok); !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
		})
	}
}

func TestStatic_ConfigErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewStatic(ctx, JWKSConfig{Audiences: []string{"a"}}, "http://x/keys"); err == nil {
		t.Fatalf("expected error without issuer")
	}
	if _, err := NewStatic(ctx, JWKSConfig{Issuer: "http://x"}, "http://x/keys"); err == nil {
		t.Fatalf("expected error without audience")
	}
	if _, err := NewStatic(ctx, JWKSConfig{Issuer: "http://x", Audiences: []string{"a"}}, ""); err == nil {
		t.Fatalf("expected error without jwks url")
	}
}

func TestFromDiscovery(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	is := newIssuerServer(t, jwks, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := NewFromDiscovery(ctx, jwksConfig(is.srv.URL))
	if err != nil {
		t.Fatalf("NewFromDiscovery: %v", err)
	}
	ui, err := a.CheckAuthentication(ctx, signRSA(t, pk, kid, rsaClaims(is.srv.URL)))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if ui.UserID() != "user-1" {
		t.Fatalf("unexpected user %q", ui.UserID())
	}
}

func TestFromDiscovery_MissingJWKS(t *testing.T) {
	_, _, jwks := genRSA(t)
	is := newIssuerServer(t, jwks, map[string]any{"jwks_uri": ""})
	if _, err := NewFromDiscovery(context.Background(), jwksConfig(is.srv.URL)); err == nil {
		t.Fatalf("expected error for discovery document without jwks_uri")
	}
}
