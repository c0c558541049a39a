package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/ggoodman/optshape/auth"
	"github.com/ggoodman/optshape/shapestore"
	"github.com/ggoodman/optshape/shapestore/memory"
	redisstore "github.com/ggoodman/optshape/shapestore/redis"
)

// serveConfig is populated from the environment.
type serveConfig struct {
	Addr            string        `env:"SHAPECHECK_ADDR,default=127.0.0.1:8080"`
	Store           string        `env:"SHAPECHECK_STORE,default=memory"`
	LogLevel        string        `env:"SHAPECHECK_LOG_LEVEL,default=info"`
	Strategy        string        `env:"SHAPECHECK_STRATEGY,default=open"`
	MaxBodyBytes    int64         `env:"SHAPECHECK_MAX_BODY_BYTES,default=1048576"`
	ShutdownTimeout time.Duration `env:"SHAPECHECK_SHUTDOWN_TIMEOUT,default=10s"`

	// At most one of JWTKey (HS256 shared secret), JWKSURL or OIDCIssuer
	// enables bearer authentication of descriptor writes.
	JWTKey      string `env:"SHAPECHECK_JWT_KEY"`
	JWKSURL     string `env:"SHAPECHECK_JWKS_URL"`
	OIDCIssuer  string `env:"SHAPECHECK_OIDC_ISSUER"`
	JWTIssuer   string `env:"SHAPECHECK_JWT_ISSUER"`
	JWTAudience string `env:"SHAPECHECK_JWT_AUDIENCE"`
	JWTScopes   string `env:"SHAPECHECK_JWT_SCOPES"`
}

func loadServeConfig() (serveConfig, error) {
	var cfg serveConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c serveConfig) openStore() (shapestore.Store, error) {
	switch strings.ToLower(c.Store) {
	case "", "memory":
		return memory.New(), nil
	case "redis":
		return redisstore.NewFromEnv()
	}
	return nil, fmt.Errorf("config: unknown store %q", c.Store)
}

// authenticator is nil when no token source is configured. JWKS key
// refresh runs until ctx is done.
func (c serveConfig) authenticator(ctx context.Context) (auth.Authenticator, error) {
	configured := 0
	for _, v := range []string{c.JWTKey, c.JWKSURL, c.OIDCIssuer} {
		if v != "" {
			configured++
		}
	}
	if configured > 1 {
		return nil, errors.New("config: set only one of SHAPECHECK_JWT_KEY, SHAPECHECK_JWKS_URL, SHAPECHECK_OIDC_ISSUER")
	}
	scopes := strings.Fields(strings.ReplaceAll(c.JWTScopes, ",", " "))

	switch {
	case c.JWTKey != "":
		return auth.NewHMAC(auth.HMACConfig{
			Key:            []byte(c.JWTKey),
			Issuer:         c.JWTIssuer,
			Audience:       c.JWTAudience,
			RequiredScopes: scopes,
		})
	case c.JWKSURL != "":
		return auth.NewStatic(ctx, c.jwksConfig(c.JWTIssuer, scopes), c.JWKSURL)
	case c.OIDCIssuer != "":
		return auth.NewFromDiscovery(ctx, c.jwksConfig(c.OIDCIssuer, scopes))
	}
	return nil, nil
}

func (c serveConfig) jwksConfig(issuer string, scopes []string) auth.JWKSConfig {
	var auds []string
	for _, a := range strings.Split(c.JWTAudience, ",") {
		if a = strings.TrimSpace(a); a != "" {
			auds = append(auds, a)
		}
	}
	return auth.JWKSConfig{Issuer: issuer, Audiences: auds, RequiredScopes: scopes}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
