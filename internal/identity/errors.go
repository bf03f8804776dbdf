package identity

import "errors"

var (
	ErrDuplicateEmail             = errors.New("identity: email already registered")
	ErrDuplicateUsername          = errors.New("identity: username already claimed")
	ErrDuplicateFederatedIdentity = errors.New("identity: federated identity already linked")
	ErrUnknownUser                = errors.New("identity: unknown user")

	// ErrConflict reports that a concurrent writer won a find-or-create
	// race. It is retryable; FindOrCreateFederatedUser retries once
	// internally before surfacing it.
	ErrConflict = errors.New("identity: write conflict")
)
