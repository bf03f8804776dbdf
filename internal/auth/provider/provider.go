// Package provider holds the external federation clients. The core does
// not implement the OpenID Connect handshake itself; it consumes the
// validated assertion a provider returns and owns only what happens after.
package provider

import (
	"context"

	"github.com/kraemahz/subseq-util/internal/auth"
)

// Provider is the contract every external identity provider implements.
// Implementations return identity facts only and must not perform user
// creation, linking, or session management.
type Provider interface {
	// Name returns the provider identifier (e.g. "google").
	Name() string

	// AuthCodeURL returns the authorization URL. State and PKCE
	// parameters are supplied by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// Exchange trades the authorization code for provider credentials,
	// verifies the ID token, and returns the validated assertion.
	Exchange(ctx context.Context, code, codeVerifier string) (*auth.Assertion, error)
}
