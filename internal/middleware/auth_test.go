package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kraemahz/subseq-util/internal/auth/credentials"
	"github.com/kraemahz/subseq-util/internal/authn"
	"github.com/kraemahz/subseq-util/internal/identity"
	"github.com/kraemahz/subseq-util/internal/session"
)

func newTestMiddleware(t *testing.T) (*AuthMiddleware, *session.Manager, *identity.MemoryStore) {
	t.Helper()

	store := identity.NewMemoryStore()
	sessions := session.NewManager(session.NewMemoryStore(), session.Config{TTL: time.Hour})
	creds := credentials.NewService(store, sessions)
	return NewAuthMiddleware(authn.New(creds, sessions, store)), sessions, store
}

func TestExtractTokens(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: "cookie-token"})
	r.Header.Set("Authorization", "Bearer bearer-token")

	ev := ExtractTokens(r)
	if ev.CookieToken != "cookie-token" {
		t.Errorf("CookieToken = %q", ev.CookieToken)
	}
	if ev.BearerToken != "bearer-token" {
		t.Errorf("BearerToken = %q", ev.BearerToken)
	}

	// A non-bearer Authorization header is ignored.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	if ev := ExtractTokens(r); ev.BearerToken != "" {
		t.Errorf("BearerToken = %q, want empty for basic auth", ev.BearerToken)
	}
}

func TestRequireAuthNoToken(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)

	called := false
	h := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler ran without authentication")
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	mw, sessions, store := newTestMiddleware(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "alice@example.com", true)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := sessions.Create(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}

	var seen *identity.User
	h := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if seen == nil || seen.ID != user.ID {
		t.Errorf("context user = %v, want %v", seen, user.ID)
	}
}

func TestRequireAuthStaleCookieCleared(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)

	h := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("stale session cookie was not cleared")
	}
}

func TestRequireAuthBearerToken(t *testing.T) {
	mw, sessions, store := newTestMiddleware(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "bob@example.com", true)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := sessions.Create(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}

	h := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
