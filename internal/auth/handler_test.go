package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusmarket/campusmarket/internal/auth"
	"github.com/campusmarket/campusmarket/internal/platform/memory"
	"github.com/campusmarket/campusmarket/internal/shared"
	"github.com/campusmarket/campusmarket/internal/view"
	_ "github.com/campusmarket/campusmarket/testing"
)

type authHarness struct {
	router   http.Handler
	sessions *shared.SessionManager
	service  *auth.Service
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	service := auth.NewService(memory.NewUsers(), auth.NewBcryptVerifier(bcrypt.MinCost), nil, nil)
	handler := auth.NewHandler(nil, service, templates, sessionManager, csrfManager)

	r := chi.NewRouter()
	handler.MountRoutes(r)
	return &authHarness{router: r, sessions: sessionManager, service: service}
}

// do runs req through the handler with the session loaded from cookie and
// committed afterwards, returning the response and the resulting session.
func (h *authHarness) do(t *testing.T, req *http.Request, cookie *http.Cookie) (*httptest.ResponseRecorder, *http.Cookie, *shared.Session) {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := h.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	w := &committingWriter{ResponseWriter: res, commit: func() {
		if err := h.sessions.Commit(ctx, res, req, sess); err != nil {
			t.Errorf("commit session: %v", err)
		}
	}}
	h.router.ServeHTTP(w, req)
	w.flush()
	next := cookie
	for _, c := range res.Result().Cookies() {
		if c.Name == h.sessions.CookieName() {
			next = c
		}
	}
	return res, next, sess
}

// committingWriter persists the session before the first header is written,
// the same point the production middleware uses.
type committingWriter struct {
	http.ResponseWriter
	commit func()
	done   bool
}

func (w *committingWriter) flush() {
	if !w.done {
		w.done = true
		w.commit()
	}
}

func (w *committingWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *committingWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	h := newAuthHarness(t)

	res, _, sess := h.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, `<form method="post" action="/login">`) {
		t.Fatalf("expected login form in body")
	}
	if token := sess.Get(shared.CSRFSessionKey); token == "" || !strings.Contains(body, token) {
		t.Fatalf("csrf token not rendered")
	}
}

func TestRegisterThenLogin(t *testing.T) {
	h := newAuthHarness(t)

	res, cookie, _ := h.do(t, postForm("/register", url.Values{
		"username": {"alice"}, "email": {"alice@campus.edu"}, "password": {"pw123"},
	}), nil)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", res.Code, res.Header().Get("Location"))
	}

	res, cookie, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), cookie)
	if !strings.Contains(res.Body.String(), "Registration successful! Please login to continue.") {
		t.Fatalf("expected registration flash, got %s", res.Body.String())
	}

	res, cookie, sess := h.do(t, postForm("/login", url.Values{"email": {"alice@campus.edu"}, "password": {"pw123"}}), cookie)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if sess.Username() != "alice" {
		t.Fatalf("expected alice in session, got %q", sess.Username())
	}
	if _, ok := sess.UserID(); !ok {
		t.Fatalf("expected user id in session")
	}

	res, _, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), cookie)
	if !strings.Contains(res.Body.String(), "Welcome back, alice!") {
		t.Fatalf("expected welcome flash")
	}
}

func TestRegisterDuplicateEmailRedirectsBack(t *testing.T) {
	h := newAuthHarness(t)
	if _, err := h.service.Register(context.Background(), auth.RegisterInput{Username: "alice", Email: "alice@campus.edu", Password: "pw"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, cookie, _ := h.do(t, postForm("/register", url.Values{
		"username": {"bob"}, "email": {"alice@campus.edu"}, "password": {"other"},
	}), nil)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/register" {
		t.Fatalf("expected redirect to /register, got %d %q", res.Code, res.Header().Get("Location"))
	}
	res, _, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/register", nil), cookie)
	if !strings.Contains(res.Body.String(), "Email already registered! Please use a different email.") {
		t.Fatalf("expected duplicate flash")
	}
}

func TestRegisterMissingFields(t *testing.T) {
	h := newAuthHarness(t)

	res, _, _ := h.do(t, postForm("/register", url.Values{"username": {"alice"}, "email": {""}, "password": {"pw"}}), nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Email is required") {
		t.Fatalf("expected field error in body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newAuthHarness(t)
	if _, err := h.service.Register(context.Background(), auth.RegisterInput{Username: "alice", Email: "user@test.local", Password: "correctpass"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for name, form := range map[string]url.Values{
		"wrong password": {"email": {"user@test.local"}, "password": {"wrongpass"}},
		"unknown email":  {"email": {"ghost@test.local"}, "password": {"correctpass"}},
		"blank email":    {"email": {""}, "password": {"correctpass"}},
		"blank password": {"email": {"user@test.local"}, "password": {""}},
	} {
		t.Run(name, func(t *testing.T) {
			res, _, sess := h.do(t, postForm("/login", form), nil)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", res.Code)
			}
			body := res.Body.String()
			if !strings.Contains(body, "Invalid email or password! Please try again.") {
				t.Fatalf("expected error message in response")
			}
			if strings.Contains(body, "is required") {
				t.Fatalf("login must not report per-field errors")
			}
			if _, ok := sess.UserID(); ok {
				t.Fatalf("session must stay anonymous")
			}
		})
	}
}

func TestLogoutClearsIdentity(t *testing.T) {
	h := newAuthHarness(t)
	if _, err := h.service.Register(context.Background(), auth.RegisterInput{Username: "alice", Email: "alice@campus.edu", Password: "pw123"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, cookie, _ := h.do(t, postForm("/login", url.Values{"email": {"alice@campus.edu"}, "password": {"pw123"}}), nil)

	res, cookie, sess := h.do(t, httptest.NewRequest(http.MethodGet, "/logout", nil), cookie)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if _, ok := sess.UserID(); ok {
		t.Fatalf("expected anonymous session after logout")
	}

	res, _, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), cookie)
	body := res.Body.String()
	if !strings.Contains(body, "You have been logged out successfully!") {
		t.Fatalf("expected logout flash")
	}
	if strings.Contains(body, "alice's Dashboard") {
		t.Fatalf("nav still shows the logged-out user")
	}
}
