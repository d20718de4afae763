package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusmarket/campusmarket/internal/auth"
	"github.com/campusmarket/campusmarket/internal/marketplace"
	"github.com/campusmarket/campusmarket/internal/observability"
	"github.com/campusmarket/campusmarket/internal/platform/httpx"
	"github.com/campusmarket/campusmarket/internal/platform/memory"
	"github.com/campusmarket/campusmarket/internal/shared"
	"github.com/campusmarket/campusmarket/internal/view"
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type testApp struct {
	server *httptest.Server
	items  *memory.Items
	users  *memory.Users
}

func newTestApp(t *testing.T, checks map[string]httpx.HealthCheck) *testApp {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimitPerMinute: 1000}
	sessions := shared.NewSessionManager(client, "campusmarket_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	logger := newLogger(io.Discard, cfg)
	metrics := observability.NewMetrics()

	users := memory.NewUsers()
	items := memory.NewItems()
	authService := auth.NewService(users, auth.NewBcryptVerifier(bcrypt.MinCost), nil, nil)
	marketService := marketplace.NewService(items, marketplace.ServiceDeps{Metrics: metrics, Logger: logger})

	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		AuthHandler:        auth.NewHandler(logger, authService, templates, sessions, csrf),
		MarketplaceHandler: marketplace.NewHandler(logger, marketService, templates, csrf),
		Metrics:            metrics,
		HealthChecks:       checks,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testApp{server: server, items: items, users: users}
}

// browser is a cookie-carrying client that follows redirects.
type browser struct {
	t      *testing.T
	app    *testApp
	client *http.Client
}

func (a *testApp) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, app: a, client: &http.Client{Jar: jar}}
}

func (b *browser) get(path string) (int, string) {
	b.t.Helper()
	res, err := b.client.Get(b.app.server.URL + path)
	require.NoError(b.t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(b.t, err)
	return res.StatusCode, string(body)
}

// submit loads page to pick up a fresh CSRF token, then posts values to action.
func (b *browser) submit(page, action string, values url.Values) (int, string) {
	b.t.Helper()
	_, body := b.get(page)
	match := csrfPattern.FindStringSubmatch(body)
	require.Len(b.t, match, 2, "no csrf token on %s", page)
	if values == nil {
		values = url.Values{}
	}
	values.Set("csrf_token", match[1])
	return b.post(action, values)
}

func (b *browser) post(action string, values url.Values) (int, string) {
	b.t.Helper()
	res, err := b.client.PostForm(b.app.server.URL+action, values)
	require.NoError(b.t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(b.t, err)
	return res.StatusCode, string(body)
}

func TestMarketplaceScenario(t *testing.T) {
	a := newTestApp(t, nil)
	alice := a.browser(t)
	bob := a.browser(t)

	_, body := alice.submit("/register", "/register", url.Values{"username": {"alice"}, "email": {"a@x.com"}, "password": {"pw1"}})
	assert.Contains(t, body, "Registration successful! Please login to continue.")

	_, body = bob.submit("/register", "/register", url.Values{"username": {"bob"}, "email": {"a@x.com"}, "password": {"pw2"}})
	assert.Contains(t, body, "Email already registered! Please use a different email.")
	_, err := a.users.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)

	_, body = alice.submit("/login", "/login", url.Values{"email": {"a@x.com"}, "password": {"pw1"}})
	assert.Contains(t, body, "Welcome back, alice!")
	assert.Contains(t, body, "alice's Dashboard")

	_, body = alice.submit("/add_item", "/add_item", url.Values{"title": {"Book"}, "description": {"Used"}, "price": {"10"}, "category": {"books"}})
	assert.Contains(t, body, "Item listed successfully!")

	listed, err := a.items.ListUnsold(context.Background(), marketplace.BrowseFilter{Category: "books"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	item := listed[0]
	assert.False(t, item.Sold)
	buyPath := "/buy_item/" + strconv.FormatInt(item.ID, 10)

	_, body = bob.submit("/register", "/register", url.Values{"username": {"bob"}, "email": {"b@x.com"}, "password": {"pw2"}})
	assert.Contains(t, body, "Registration successful!")
	bob.submit("/login", "/login", url.Values{"email": {"b@x.com"}, "password": {"pw2"}})

	_, body = bob.submit("/add_item", buyPath, nil)
	assert.Contains(t, body, "Item purchased successfully! Thank you for your purchase.")
	sold, err := a.items.FindByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, sold.Sold)

	_, body = bob.submit("/add_item", buyPath, nil)
	assert.Contains(t, body, "This item has already been sold!")

	_, body = alice.get("/dashboard")
	assert.Contains(t, body, "Sold")

	_, body = alice.get("/logout")
	assert.Contains(t, body, "You have been logged out successfully!")
	_, body = alice.get("/dashboard")
	assert.Contains(t, body, "Please login to access your dashboard.")
}

func TestLoginFailureRendersError(t *testing.T) {
	a := newTestApp(t, nil)
	b := a.browser(t)

	status, body := b.submit("/login", "/login", url.Values{"email": {"nobody@x.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Invalid email or password! Please try again.")
}

func TestUnsafeRequestsRequireCSRF(t *testing.T) {
	a := newTestApp(t, nil)
	b := a.browser(t)
	b.get("/login")

	status, _ := b.post("/login", url.Values{"email": {"a@x.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = b.post("/login", url.Values{"email": {"a@x.com"}, "password": {"pw"}, "csrf_token": {"forged"}})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestSecurityHeadersAndStatic(t *testing.T) {
	a := newTestApp(t, nil)

	res, err := http.Get(a.server.URL + "/")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "DENY", res.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
	var cookie *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == "campusmarket_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	res, err = http.Get(a.server.URL + "/static/js/app.js")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "public, max-age=3600", res.Header.Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(res.Header.Get("Content-Type"), "text/javascript"))
	assert.Empty(t, res.Cookies(), "static assets do not open sessions")
}

func TestHealthAndMetrics(t *testing.T) {
	healthy := newTestApp(t, map[string]httpx.HealthCheck{"redis": func(context.Context) error { return nil }})
	res, err := http.Get(healthy.server.URL + "/")
	require.NoError(t, err)
	res.Body.Close()

	res, err = http.Get(healthy.server.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	res, err = http.Get(healthy.server.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(res.Body)
	res.Body.Close()
	assert.Contains(t, string(body), "campusmarket_http_requests_total")

	broken := newTestApp(t, map[string]httpx.HealthCheck{"postgres": func(context.Context) error { return errors.New("down") }})
	res, err = http.Get(broken.server.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}
