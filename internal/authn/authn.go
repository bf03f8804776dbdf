// Package authn is the framework-facing authentication adapter. Host web
// layers hand it the credential evidence extracted from a request and get
// back a tagged result plus any outbound token side effect to apply; the
// adapter never constructs a transport response itself.
package authn

import (
	"context"
	"errors"
	"time"

	"github.com/kraemahz/subseq-util/internal/auth"
	"github.com/kraemahz/subseq-util/internal/auth/credentials"
	"github.com/kraemahz/subseq-util/internal/db"
	"github.com/kraemahz/subseq-util/internal/identity"
	"github.com/kraemahz/subseq-util/internal/logger"
	"github.com/kraemahz/subseq-util/internal/session"
)

// State is the externally visible outcome. Auth failure detail is for the
// audit log only; everything below Authenticated collapses to either
// Unauthenticated or Failed so nothing leaks to an unauthenticated caller.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	// Failed marks an infrastructure fault (pool exhausted, store
	// unreachable); the host should answer "service unavailable", not
	// "invalid credentials".
	Failed
)

// LoginForm is the local-credential evidence from a login form body.
type LoginForm struct {
	Username string
	Password string
}

// Evidence is what the host layer extracted from the inbound request.
// When several kinds are present a bearer token is preferred over the
// cookie token, and explicit credentials over either.
type Evidence struct {
	CookieToken string
	BearerToken string
	Login       *LoginForm
	Assertion   *auth.Assertion
}

// Result is the adapter's answer. SetToken, when non-empty, is the new
// session token the host must attach via its cookie/header facility;
// ClearToken asks the host to drop the client's stale session cookie.
type Result struct {
	State          State
	User           *identity.User
	SetToken       string
	SetTokenExpiry time.Time
	ClearToken     bool
}

// Metrics receives authentication outcomes. A nil Metrics disables
// collection.
type Metrics interface {
	RecordLogin(outcome string)
	RecordValidation(outcome string)
}

type Authenticator struct {
	verifier *credentials.Service
	sessions *session.Manager
	store    identity.Store
	metrics  Metrics
}

func New(verifier *credentials.Service, sessions *session.Manager, store identity.Store) *Authenticator {
	return &Authenticator{verifier: verifier, sessions: sessions, store: store}
}

// SetMetrics attaches a metrics sink. Call before serving traffic.
func (a *Authenticator) SetMetrics(m Metrics) { a.metrics = m }

// Authenticate resolves the evidence to a caller identity. Fresh logins
// (form credentials or a federated assertion) mint a session and return
// its token as a side effect for the host to set.
func (a *Authenticator) Authenticate(ctx context.Context, ev Evidence) Result {
	switch {
	case ev.Login != nil:
		return a.loginLocal(ctx, ev.Login)
	case ev.Assertion != nil:
		return a.loginFederated(ctx, ev.Assertion)
	default:
		return a.validateToken(ctx, ev)
	}
}

func (a *Authenticator) validateToken(ctx context.Context, ev Evidence) Result {
	// Prefer the bearer token over the cookie.
	token := ev.BearerToken
	if token == "" {
		token = ev.CookieToken
	}
	if token == "" {
		return Result{State: Unauthenticated}
	}

	sess, err := a.sessions.Validate(ctx, token)
	if err != nil {
		return a.validationFailure(ctx, ev, err)
	}

	user, err := a.store.FindUserByID(ctx, sess.UserID)
	if err != nil {
		return a.infraFailure("user lookup", err)
	}
	if user == nil || user.Status != identity.StatusActive {
		// Orphaned or deactivated; drop the session rather than
		// trust the dangling reference.
		logger.Warn("session without active user revoked", map[string]any{
			"user_id": sess.UserID.String(),
		})
		_ = a.sessions.Revoke(ctx, token)
		a.recordValidation("orphaned")
		return Result{State: Unauthenticated, ClearToken: ev.CookieToken != ""}
	}

	a.recordValidation("ok")
	return Result{State: Authenticated, User: user}
}

func (a *Authenticator) validationFailure(ctx context.Context, ev Evidence, err error) Result {
	switch {
	case errors.Is(err, session.ErrExpired):
		logger.Debug("session expired", nil)
		a.recordValidation("expired")
	case errors.Is(err, session.ErrNotFound):
		logger.Debug("session token unknown", nil)
		a.recordValidation("not_found")
	default:
		return a.infraFailure("session validate", err)
	}
	// Expired and unknown are indistinguishable to the caller.
	return Result{State: Unauthenticated, ClearToken: ev.CookieToken != ""}
}

func (a *Authenticator) loginLocal(ctx context.Context, form *LoginForm) Result {
	user, err := a.verifier.VerifyLocal(ctx, form.Username, form.Password)
	switch {
	case err == nil:
		return a.issueSession(ctx, user, "local")
	case errors.Is(err, credentials.ErrInvalidCredentials):
		a.recordLogin("invalid")
		return Result{State: Unauthenticated}
	default:
		a.recordLogin("error")
		return a.infraFailure("local login", err)
	}
}

func (a *Authenticator) loginFederated(ctx context.Context, assertion *auth.Assertion) Result {
	user, err := a.verifier.AcceptFederatedAssertion(ctx, assertion)
	switch {
	case err == nil:
		return a.issueSession(ctx, user, assertion.Provider)
	case errors.Is(err, credentials.ErrUnverifiedEmail),
		errors.Is(err, credentials.ErrInvalidCredentials):
		a.recordLogin("rejected")
		return Result{State: Unauthenticated}
	default:
		a.recordLogin("error")
		return a.infraFailure("federated login", err)
	}
}

func (a *Authenticator) issueSession(ctx context.Context, user *identity.User, method string) Result {
	sess, err := a.sessions.Create(ctx, user.ID)
	if err != nil {
		a.recordLogin("error")
		return a.infraFailure("session create", err)
	}

	logger.Info("login succeeded", map[string]any{
		"user_id": user.ID.String(),
		"method":  method,
	})
	a.recordLogin("ok")
	return Result{
		State:          Authenticated,
		User:           user,
		SetToken:       sess.Token,
		SetTokenExpiry: sess.ExpiresAt,
	}
}

func (a *Authenticator) infraFailure(op string, err error) Result {
	fields := map[string]any{"op": op, "error": err.Error()}
	if errors.Is(err, db.ErrPoolExhausted) {
		logger.Warn("authentication degraded: pool exhausted", fields)
	} else {
		logger.Error("authentication infrastructure failure", fields)
	}
	return Result{State: Failed}
}

func (a *Authenticator) recordLogin(outcome string) {
	if a.metrics != nil {
		a.metrics.RecordLogin(outcome)
	}
}

func (a *Authenticator) recordValidation(outcome string) {
	if a.metrics != nil {
		a.metrics.RecordValidation(outcome)
	}
}
