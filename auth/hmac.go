package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HMACConfig controls validation of HS256 signed bearer tokens.
type HMACConfig struct {
	// Key is the shared secret. Required.
	Key []byte
	// Issuer, when set, must match the iss claim.
	Issuer string
	// Audience, when set, must be contained in the aud claim.
	Audience string
	// RequiredScopes must all be present in the space-delimited scope claim.
	RequiredScopes []string
	// Leeway tolerates clock skew on exp, nbf and iat. Defaults to 60s.
	Leeway time.Duration
}

type hmacAuthenticator struct {
	cfg    HMACConfig
	parser *jwt.Parser
}

// NewHMAC returns an Authenticator for HS256 JWTs signed with cfg.Key. Tokens
// must carry exp and sub.
func NewHMAC(cfg HMACConfig) (Authenticator, error) {
	if len(cfg.Key) == 0 {
		return nil, errors.New("auth: hmac key is required")
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	cfg.Key = append([]byte(nil), cfg.Key...)
	return &hmacAuthenticator{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

func (a *hmacAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.Key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	return userFromClaims(claims, a.cfg.RequiredScopes)
}

// userInfo is the concrete UserInfo for validated tokens.
type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }
func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}
