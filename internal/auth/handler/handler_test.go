package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kraemahz/subseq-util/internal/auth/credentials"
	"github.com/kraemahz/subseq-util/internal/auth/provider"
	"github.com/kraemahz/subseq-util/internal/authn"
	"github.com/kraemahz/subseq-util/internal/identity"
	"github.com/kraemahz/subseq-util/internal/middleware"
	"github.com/kraemahz/subseq-util/internal/session"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestEngineWithStore(t, identity.NewMemoryStore())
}

func newTestEngineWithStore(t *testing.T, store identity.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := session.NewManager(session.NewMemoryStore(), session.Config{TTL: time.Hour})
	creds := credentials.NewService(store, sessions)
	auth := authn.New(creds, sessions, store)

	limiter := middleware.NewLoginRateLimiter(1000)
	t.Cleanup(limiter.Stop)

	engine := gin.New()
	h := NewHandler(provider.NewRegistry(), auth, sessions, creds, limiter)
	h.RegisterRoutes(engine, middleware.GinRequireAuth(middleware.NewAuthMiddleware(auth)))
	return engine
}

func findSessionCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == session.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestGinRegisterMeLogout(t *testing.T) {
	engine := newTestEngine(t)

	body := `{"email":"alice@example.com","username":"alice","password":"hunter2hunter2"}`
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	cookie := findSessionCookie(t, rec.Result())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}

	// Logout is idempotent.
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("repeat logout status = %d, want 204", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want 401", rec.Code)
	}
}

func TestGinLoginBearerToken(t *testing.T) {
	engine := newTestEngine(t)

	body := `{"email":"bob@example.com","username":"bob","password":"hunter2hunter2"}`
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}
	token := findSessionCookie(t, rec.Result()).Value

	// The opaque token works as a bearer credential too.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("me with bearer status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestGinRegisterWeakPassword(t *testing.T) {
	engine := newTestEngine(t)

	body := `{"email":"short@example.com","username":"short","password":"short"}`
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "password too short") {
		t.Errorf("body = %s, want password-too-short message", rec.Body.String())
	}
}

// failingStore simulates a backend outage with the kind of driver error a
// client must never see.
type failingStore struct {
	identity.Store
}

func (failingStore) FindUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return nil, errors.New(`identity: scan user: pq: password authentication failed for user "svc" host=10.2.3.4`)
}

func TestGinRegisterStoreFailureHidden(t *testing.T) {
	engine := newTestEngineWithStore(t, failingStore{identity.NewMemoryStore()})

	body := `{"email":"erin@example.com","username":"erin","password":"hunter2hunter2"}`
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "service unavailable") {
		t.Errorf("body = %s, want generic failure message", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "pq:") || strings.Contains(rec.Body.String(), "10.2.3.4") {
		t.Errorf("driver detail leaked to client: %s", rec.Body.String())
	}
}

func TestGinLoginRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := identity.NewMemoryStore()
	sessions := session.NewManager(session.NewMemoryStore(), session.Config{TTL: time.Hour})
	creds := credentials.NewService(store, sessions)
	auth := authn.New(creds, sessions, store)

	limiter := middleware.NewLoginRateLimiter(2)
	t.Cleanup(limiter.Stop)

	engine := gin.New()
	h := NewHandler(provider.NewRegistry(), auth, sessions, creds, limiter)
	h.RegisterRoutes(engine, middleware.GinRequireAuth(middleware.NewAuthMiddleware(auth)))

	body := `{"username":"nobody","password":"wrong password"}`
	var last int
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("fifth login status = %d, want 429", last)
	}
}
