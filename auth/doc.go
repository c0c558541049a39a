// Package auth provides the bearer token authentication used by the shape
// registry's HTTP surface to guard descriptor writes.
//
// The public surface stays small: an Authenticator validates a bearer token
// string and returns a UserInfo (or an error). The HTTP layer extracts the
// token with BearerToken and maps the sentinel errors to status codes.
//
// # Shared-secret tokens
//
// NewHMAC validates HS256 JWTs against a shared key:
//
//	authn, err := auth.NewHMAC(auth.HMACConfig{
//	    Key:      []byte(os.Getenv("SHAPECHECK_JWT_KEY")),
//	    Issuer:   "https://issuer.example",
//	    Audience: "shapecheck",
//	})
//	if err != nil { log.Fatal(err) }
//
//	ui, err := authn.CheckAuthentication(r.Context(), auth.BearerToken(r))
//	if errors.Is(err, auth.ErrUnauthorized) { /* 401 */ }
//	if errors.Is(err, auth.ErrInsufficientScope) { /* 403 */ }
//
// Tokens must carry exp and sub. Issuer and audience are enforced when
// configured; Leeway (default 60s) tolerates clock skew.
//
// # JWKS and OpenID discovery
//
// NewStatic validates RS256 (or AllowedAlgs) tokens against a JWK Set URL;
// NewFromDiscovery finds the JWK Set through the issuer's
// /.well-known/openid-configuration. Keys are refreshed in the background
// for the lifetime of the context passed at construction.
//
//	authn, err := auth.NewFromDiscovery(ctx, auth.JWKSConfig{
//	    Issuer:    "https://issuer.example",
//	    Audiences: []string{"shapecheck"},
//	})
//
// # Errors
//
// ErrUnauthorized signals the token is invalid (signature, expiry, audience,
// etc.). ErrInsufficientScope signals successful authentication but missing
// required scope(s).
package auth
