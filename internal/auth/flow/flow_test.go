package flow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/kraemahz/subseq-util/internal/auth"
)

type fakeProvider struct {
	exchanged struct {
		code     string
		verifier string
	}
	assertion *auth.Assertion
	err       error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) AuthCodeURL(state, codeChallenge string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state) +
		"&code_challenge=" + url.QueryEscape(codeChallenge)
}

func (p *fakeProvider) Exchange(_ context.Context, code, codeVerifier string) (*auth.Assertion, error) {
	p.exchanged.code = code
	p.exchanged.verifier = codeVerifier
	return p.assertion, p.err
}

func TestBeginIssuesCookies(t *testing.T) {
	p := &fakeProvider{}
	rec := httptest.NewRecorder()

	authURL := Begin(rec, p)
	if !strings.HasPrefix(authURL, "https://idp.example.com/authorize?") {
		t.Fatalf("unexpected auth URL %q", authURL)
	}

	var state, pkce *http.Cookie
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case stateCookieName:
			state = c
		case pkceCookieName:
			pkce = c
		}
	}
	if state == nil || state.Value == "" {
		t.Error("state cookie not issued")
	}
	if pkce == nil || pkce.Value == "" {
		t.Error("pkce cookie not issued")
	}
	if state != nil && !strings.Contains(authURL, url.QueryEscape(state.Value)) {
		t.Error("auth URL does not carry the state bound to the cookie")
	}
	if state != nil && (!state.HttpOnly || !state.Secure) {
		t.Error("state cookie must be HttpOnly and Secure")
	}
}

func callbackRequest(state, cookieState, verifier, query string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/oauth/callback/fake?"+query, nil)
	if state != "" {
		q := r.URL.Query()
		q.Set("state", state)
		r.URL.RawQuery = q.Encode()
	}
	if cookieState != "" {
		r.AddCookie(&http.Cookie{Name: stateCookieName, Value: cookieState})
	}
	if verifier != "" {
		r.AddCookie(&http.Cookie{Name: pkceCookieName, Value: verifier})
	}
	return r
}

func TestCallbackSuccess(t *testing.T) {
	p := &fakeProvider{assertion: &auth.Assertion{
		Provider:      "fake",
		Subject:       "sub-1",
		Email:         "user@example.com",
		EmailVerified: true,
	}}

	r := callbackRequest("st-1", "st-1", "ver-1", "code=authcode-1")
	got, err := Callback(r, p)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if got.Subject != "sub-1" {
		t.Errorf("Subject = %q, want sub-1", got.Subject)
	}
	if p.exchanged.code != "authcode-1" || p.exchanged.verifier != "ver-1" {
		t.Errorf("exchanged (%q, %q), want (authcode-1, ver-1)",
			p.exchanged.code, p.exchanged.verifier)
	}
}

func TestCallbackStateMismatch(t *testing.T) {
	p := &fakeProvider{}

	r := callbackRequest("st-bad", "st-good", "ver-1", "code=authcode-1")
	_, err := Callback(r, p)
	if !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Callback = %v, want ErrStateMismatch", err)
	}

	// Missing state cookie fails the same way.
	r = callbackRequest("st-1", "", "ver-1", "code=authcode-1")
	if _, err := Callback(r, p); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Callback(no cookie) = %v, want ErrStateMismatch", err)
	}
}

func TestCallbackProviderDenied(t *testing.T) {
	p := &fakeProvider{}

	r := callbackRequest("", "", "", "error=access_denied&error_description=user+cancelled")
	_, err := Callback(r, p)
	if !errors.Is(err, ErrProviderDenied) {
		t.Errorf("Callback = %v, want ErrProviderDenied", err)
	}
}

func TestCallbackMissingCode(t *testing.T) {
	p := &fakeProvider{}

	r := callbackRequest("st-1", "st-1", "ver-1", "")
	if _, err := Callback(r, p); err == nil {
		t.Error("Callback with no code = nil, want error")
	}
}

func TestCallbackExchangeFailure(t *testing.T) {
	p := &fakeProvider{err: errors.New("idp unreachable")}

	r := callbackRequest("st-1", "st-1", "ver-1", "code=authcode-1")
	if _, err := Callback(r, p); err == nil {
		t.Error("Callback with failing exchange = nil, want error")
	}
}
