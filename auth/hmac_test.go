package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func sign(t *testing.T, key []byte, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   "https://issuer.test",
		"aud":   []string{"shapecheck"},
		"sub":   "user-1",
		"exp":   now.Add(5 * time.Minute).Unix(),
		"iat":   now.Unix(),
		"scope": "shapes:write shapes:read",
	}
}

func newTestAuth(t *testing.T) Authenticator {
	t.Helper()
	a, err := NewHMAC(HMACConfig{
		Key:            testKey,
		Issuer:         "https://issuer.test",
		Audience:       "shapecheck",
		RequiredScopes: []string{"shapes:write"},
		Leeway:         time.Second,
	})
	if err != nil {
		t.Fatalf("NewHMAC: %v", err)
	}
	return a
}

func TestHMAC_Valid(t *testing.T) {
	a := newTestAuth(t)
	ui, err := a.CheckAuthentication(context.Background(), sign(t, testKey, jwt.SigningMethodHS256, baseClaims()))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if ui.UserID() != "user-1" {
		t.Fatalf("unexpected user %q", ui.UserID())
	}
	var claims struct {
		Scope string `json:"scope"`
	}
	if err := ui.Claims(&claims); err != nil || claims.Scope != "shapes:write shapes:read" {
		t.Fatalf("unexpected claims %+v %v", claims, err)
	}
}

func TestHMAC_Rejects(t *testing.T) {
	a := newTestAuth(t)
	cases := []struct {
		name   string
		mutate func(jwt.MapClaims)
		key    []byte
		method jwt.SigningMethod
		want   error
	}{
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }, want: ErrUnauthorized},
		{name: "no exp", mutate: func(c jwt.MapClaims) { delete(c, "exp") }, want: ErrUnauthorized},
		{name: "wrong issuer", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.test" }, want: ErrUnauthorized},
		{name: "wrong audience", mutate: func(c jwt.MapClaims) { c["aud"] = "other" }, want: ErrUnauthorized},
		{name: "no sub", mutate: func(c jwt.MapClaims) { delete(c, "sub") }, want: ErrUnauthorized},
		{name: "wrong key", key: []byte("another-secret-another-secret-xx"), want: ErrUnauthorized},
		{name: "wrong alg", method: jwt.SigningMethodHS512, want: ErrUnauthorized},
		{name: "missing scope", mutate: func(c jwt.MapClaims) { c["scope"] = "shapes:read" }, want: ErrInsufficientScope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := baseClaims()
			if tc.mutate != nil {
				tc.mutate(claims)
			}
			key := testKey
			if tc.key != nil {
				key = tc.key
			}
			var method jwt.SigningMethod = jwt.SigningMethodHS256
			if tc.method != nil {
				method = tc.method
			}
			_, err := a.CheckAuthentication(context.Background(), sign(t, key, method, claims))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := a.CheckAuthentication(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for empty token, got %v", err)
	}
}

func TestNewHMAC_RequiresKey(t *testing.T) {
	if _, err := NewHMAC(HMACConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  xyz": "xyz",
		"Basic abc":   "",
		"":            "",
	}
	for header, want := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := BearerToken(r); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
