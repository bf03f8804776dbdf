// Package flow drives the browser-side half of a federated login: the
// redirect to the provider with state and PKCE bound to short-lived
// cookies, and the callback exchange that yields a validated assertion.
// It works on plain http primitives so either host framework can mount it.
package flow

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kraemahz/subseq-util/internal/auth"
	"github.com/kraemahz/subseq-util/internal/auth/provider"
	"github.com/kraemahz/subseq-util/internal/logger"
)

var (
	// ErrStateMismatch means the callback state did not match the
	// cookie-bound value; a possible CSRF attempt.
	ErrStateMismatch = errors.New("flow: oauth state mismatch")
	// ErrProviderDenied means the provider called back with an error
	// instead of a code (common when the user cancels registration).
	ErrProviderDenied = errors.New("flow: provider denied authorization")
)

// Begin starts the provider redirect: it issues the state and PKCE
// cookies and returns the authorization URL to redirect the client to.
func Begin(w http.ResponseWriter, p provider.Provider) string {
	state := issueState(w)
	_, challenge := issuePKCE(w)
	return p.AuthCodeURL(state, challenge)
}

// Callback completes the provider round trip: it checks state, recovers
// the PKCE verifier and exchanges the authorization code for a validated
// assertion.
func Callback(r *http.Request, p provider.Provider) (*auth.Assertion, error) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"provider": p.Name(),
			"error":    errParam,
			"desc":     r.URL.Query().Get("error_description"),
		})
		return nil, ErrProviderDenied
	}

	if !validateState(r) {
		return nil, ErrStateMismatch
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, errors.New("flow: callback missing authorization code")
	}

	verifier := pkceVerifier(r)
	if verifier == "" {
		return nil, errors.New("flow: missing pkce verifier")
	}

	assertion, err := p.Exchange(r.Context(), code, verifier)
	if err != nil {
		return nil, fmt.Errorf("flow: exchange: %w", err)
	}
	return assertion, nil
}
