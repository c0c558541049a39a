// Package authtest provides authenticators for tests and local development.
package authtest

import (
	"context"
	"fmt"

	"github.com/ggoodman/optshape/auth"
)

// NoAuth is a test authenticator that accepts any non-empty token.
type NoAuth struct {
	UserID string
}

// NewNoAuth creates a new NoAuth authenticator with the specified user ID
// If userID is empty, it defaults to "test-user"
func NewNoAuth(userID string) *NoAuth {
	if userID == "" {
		userID = "test-user"
	}
	return &NoAuth{UserID: userID}
}

// CheckAuthentication rejects only the empty token.
func (n *NoAuth) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", auth.ErrUnauthorized)
	}
	return &noAuthUserInfo{userID: n.UserID}, nil
}

// noAuthUserInfo provides user info for the NoAuth authenticator
type noAuthUserInfo struct {
	userID string
}

func (n *noAuthUserInfo) UserID() string {
	return n.userID
}

func (n *noAuthUserInfo) Claims(ref any) error {
	return nil // No claims to unmarshal
}
