// Package auth defines the identity assertion exchanged between the
// federation client and the core.
package auth

// Assertion is a validated identity assertion from an external provider.
// It contains facts only, no decisions: merging the assertion into a
// canonical user is the identity store's job.
type Assertion struct {
	Provider      string // e.g. "google", "keycloak"
	Subject       string // provider-scoped unique identifier (sub claim)
	Email         string // email returned by the provider
	EmailVerified bool   // whether the provider asserts email ownership
}
