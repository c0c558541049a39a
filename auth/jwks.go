package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSConfig controls validation of asymmetrically signed access tokens whose
// verification keys are published as a JWK Set.
type JWKSConfig struct {
	// Issuer must match the iss claim. Required; for discovery it is also the
	// URL the OpenID configuration is fetched from.
	Issuer string
	// Audiences lists the accepted aud values. At least one must appear in
	// the token.
	Audiences      []string
	RequiredScopes []string
	// AllowedAlgs defaults to RS256.
	AllowedAlgs []string
	// Leeway defaults to 60s.
	Leeway time.Duration
}

func (c *JWKSConfig) normalize() error {
	if c.Issuer == "" {
		return errors.New("auth: issuer is required")
	}
	if len(c.Audiences) == 0 {
		return errors.New("auth: at least one audience is required")
	}
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.Leeway == 0 {
		c.Leeway = 60 * time.Second
	}
	return nil
}

type jwksAuthenticator struct {
	cfg     JWKSConfig
	parser  *jwt.Parser
	keyfunc jwt.Keyfunc
}

// NewStatic validates tokens against the JWK Set at jwksURL. Keys are
// refreshed in the background until ctx is done.
func NewStatic(ctx context.Context, cfg JWKSConfig, jwksURL string) (Authenticator, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if jwksURL == "" {
		return nil, errors.New("auth: jwks url is required")
	}
	return newJWKS(ctx, cfg, jwksURL)
}

// NewFromDiscovery fetches the issuer's OpenID configuration and validates
// tokens against the jwks_uri it advertises.
func NewFromDiscovery(ctx context.Context, cfg JWKSConfig) (Authenticator, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("auth: oidc discovery failed: %w", err)
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("auth: invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("auth: discovery incomplete: missing jwks_uri")
	}
	return newJWKS(ctx, cfg, meta.JwksURI)
}

func newJWKS(ctx context.Context, cfg JWKSConfig, jwksURL string) (*jwksAuthenticator, error) {
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("auth: jwks init failed: %w", err)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithLeeway(cfg.Leeway),
	)
	return &jwksAuthenticator{cfg: cfg, parser: parser, keyfunc: kf.Keyfunc}, nil
}

func (a *jwksAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	claims := jwt.MapClaims{}
	if _, err := a.parser.ParseWithClaims(tok, claims, a.keyfunc); err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	if !audIntersects(claims["aud"], a.cfg.Audiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}
	return userFromClaims(claims, a.cfg.RequiredScopes)
}

// audIntersects reports whether the aud claim (string or array) names any
// of wants.
func audIntersects(aud any, wants []string) bool {
	has := func(s string) bool {
		for _, w := range wants {
			if s == w {
				return true
			}
		}
		return false
	}
	switch v := aud.(type) {
	case string:
		return has(v)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && has(s) {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if has(s) {
				return true
			}
		}
	}
	return false
}

// userFromClaims requires a subject and every scope in required.
func userFromClaims(claims jwt.MapClaims, required []string) (UserInfo, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	if len(required) > 0 {
		scopeStr, _ := claims["scope"].(string)
		have := map[string]bool{}
		for _, s := range strings.Fields(scopeStr) {
			have[s] = true
		}
		for _, want := range required {
			if !have[want] {
				return nil, ErrInsufficientScope
			}
		}
	}
	return &userInfo{sub: sub, claims: claims}, nil
}
