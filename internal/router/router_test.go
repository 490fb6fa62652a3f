package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"regexp"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vkarpenko/shrturl/internal/allocator"
	"github.com/vkarpenko/shrturl/internal/auth"
	"github.com/vkarpenko/shrturl/internal/db/memorystorage"
	"github.com/vkarpenko/shrturl/internal/hasher"
	"github.com/vkarpenko/shrturl/internal/logger"
	"github.com/vkarpenko/shrturl/internal/models"
	"github.com/vkarpenko/shrturl/internal/service"
	"github.com/vkarpenko/shrturl/internal/session"
)

const (
	testShortURLBase      = "http://localhost:8080"
	testAuthCookieName    = "Authentication"
	testSessionCookieName = "shrturl_session"
)

var (
	csrfTokenPattern = regexp.MustCompile(`name="csrf" value="([^"]+)"`)
	shortLinkPattern = regexp.MustCompile(regexp.QuoteMeta(testShortURLBase) + `/([A-Za-z0-9]{6})`)
)

type testEnv struct {
	srv *httptest.Server
	db  *memorystorage.MemoryStorage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	require.NoError(t, logger.Init("debug"))

	db, err := memorystorage.New()
	require.NoError(t, err)

	sessions := session.NewManager(session.NewMemStore(), testSessionCookieName, time.Hour, 32)
	guard := auth.New(db, sessions, testAuthCookieName, []byte("test-signing-key"), time.Hour)
	svc := service.New(db, allocator.New(db), hasher.New(bcrypt.MinCost), testShortURLBase)

	srv := httptest.NewServer(New(svc, guard, sessions))
	t.Cleanup(srv.Close)

	return &testEnv{
		srv: srv,
		db:  db,
	}
}

// newClient returns a resty client with a cookie jar that reports redirects
// instead of following them.
func (e *testEnv) newClient(t *testing.T) *resty.Client {
	t.Helper()

	return resty.New().
		SetBaseURL(e.srv.URL).
		SetRedirectPolicy(resty.RedirectPolicyFunc(
			func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		))
}

func fetchCSRFToken(t *testing.T, client *resty.Client, path string) string {
	t.Helper()

	resp, err := client.R().Get(path)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	match := csrfTokenPattern.FindStringSubmatch(string(resp.Body()))
	require.NotNil(t, match, "page should carry a CSRF token")

	return match[1]
}

func registerUser(t *testing.T, client *resty.Client, username, password string) *resty.Response {
	t.Helper()

	token := fetchCSRFToken(t, client, "/register")

	resp, err := client.R().
		SetFormData(map[string]string{
			"csrf":     token,
			"username": username,
			"password": password,
		}).
		Post("/register")
	require.NoError(t, err)

	return resp
}

func loginUser(t *testing.T, client *resty.Client, username, password string) *resty.Response {
	t.Helper()

	token := fetchCSRFToken(t, client, "/login")

	resp, err := client.R().
		SetFormData(map[string]string{
			"csrf":     token,
			"username": username,
			"password": password,
		}).
		Post("/login")
	require.NoError(t, err)

	return resp
}

func registerAndLogin(t *testing.T, client *resty.Client, username, password string) {
	t.Helper()

	resp := registerUser(t, client, username, password)
	require.Equal(t, http.StatusFound, resp.StatusCode())
	require.Equal(t, "/login", resp.Header().Get("Location"))

	resp = loginUser(t, client, username, password)
	require.Equal(t, http.StatusFound, resp.StatusCode())
	require.Equal(t, "/", resp.Header().Get("Location"))
}

func shortenURL(t *testing.T, client *resty.Client, target string) string {
	t.Helper()

	token := fetchCSRFToken(t, client, "/")

	resp, err := client.R().
		SetFormData(map[string]string{
			"csrf": token,
			"url":  target,
		}).
		Post("/")
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode())
	require.Equal(t, "/", resp.Header().Get("Location"))

	resp, err = client.R().Get("/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	match := shortLinkPattern.FindStringSubmatch(string(resp.Body()))
	require.NotNil(t, match, "index should show the fresh short link once")

	return match[1]
}

func TestRegisterLoginShortenResolveScenario(t *testing.T) {
	env := newTestEnv(t)
	client := env.newClient(t)

	registerAndLogin(t, client, "alice", "password123")

	resp, err := client.R().Get("/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "Hello, alice")

	slug := shortenURL(t, client, "https://example.com/page")
	assert.Len(t, slug, 6)

	// The flash link is one-time: a second render no longer shows it.
	resp, err = client.R().Get("/")
	require.NoError(t, err)
	assert.NotContains(t, string(resp.Body()), testShortURLBase+"/"+slug)

	// Public resolution needs no cookies.
	anonymous := env.newClient(t)
	resp, err = anonymous.R().Get("/" + slug)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode())
	assert.Equal(t, "https://example.com/page", resp.Header().Get("Location"))

	// Resolution is idempotent.
	resp, err = anonymous.R().Get("/" + slug)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", resp.Header().Get("Location"))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)

	resp := registerUser(t, env.newClient(t), "alice", "password123")
	require.Equal(t, http.StatusFound, resp.StatusCode())

	resp = registerUser(t, env.newClient(t), "alice", "password456")
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), usernameTakenMessage)

	// The original registration is untouched.
	usr, err := env.db.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, hasher.New(bcrypt.MinCost).Verify("password123", usr.PasswordHash))
}

func TestRegisterValidationFailureRerendersForm(t *testing.T) {
	env := newTestEnv(t)

	resp := registerUser(t, env.newClient(t), "bob", "password123")
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), invalidFieldsMessage)

	_, err := env.db.GetUserByUsername(context.Background(), "bob")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRegisterCSRFMismatch(t *testing.T) {
	env := newTestEnv(t)
	client := env.newClient(t)

	// Prime a session so the request carries a session cookie, then submit a
	// token that is not the session's current one.
	fetchCSRFToken(t, client, "/register")

	resp, err := client.R().
		SetFormData(map[string]string{
			"csrf":     "forged-token",
			"username": "mallory1",
			"password": "password123",
		}).
		Post("/register")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())

	_, err = env.db.GetUserByUsername(context.Background(), "mallory1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCSRFTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	client := env.newClient(t)

	token := fetchCSRFToken(t, client, "/register")

	resp, err := client.R().
		SetFormData(map[string]string{
			"csrf":     token,
			"username": "alice",
			"password": "password123",
		}).
		Post("/register")
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode())

	// Replaying the consumed token must fail: /register rotated it away on
	// the next render and nothing re-issued it for this session.
	resp, err = client.R().
		SetFormData(map[string]string{
			"csrf":     token,
			"username": "alice2",
			"password": "password123",
		}).
		Post("/register")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	client := env.newClient(t)

	resp := registerUser(t, client, "alice", "password123")
	require.Equal(t, http.StatusFound, resp.StatusCode())

	resp = loginUser(t, client, "alice", "wrong-password")
	assert.Equal(t, http.StatusFound, resp.StatusCode())
	assert.Equal(t, "/login", resp.Header().Get("Location"))

	for _, cookie := range client.GetClient().Jar.Cookies(mustParseURL(t, env.srv.URL)) {
		assert.NotEqual(t, testAuthCookieName, cookie.Name, "no identity cookie on failed login")
	}
}

func TestGuardedRoutesRedirectToLogin(t *testing.T) {
	env := newTestEnv(t)
	client := env.newClient(t)

	for _, path := range []string{"/", "/my-urls"} {
		resp, err := client.R().Get(path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, resp.StatusCode(), "GET %s", path)
		assert.Equal(t, "/login", resp.Header().Get("Location"))
	}

	resp, err := client.R().
		SetFormData(map[string]string{"url": "https://example.com"}).
		Post("/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode())
	assert.Equal(t, "/login", resp.Header().Get("Location"))
}

func TestLoginPageRedirectsAuthenticatedUser(t *testing.T) {
	env := newTestEnv(t)
	client := env.newClient(t)

	registerAndLogin(t, client, "alice", "password123")

	for _, path := range []string{"/login", "/register"} {
		resp, err := client.R().Get(path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, resp.StatusCode(), "GET %s", path)
		assert.Equal(t, "/", resp.Header().Get("Location"))
	}
}

func TestMyURLsAndOwnerOnlyDelete(t *testing.T) {
	env := newTestEnv(t)

	owner := env.newClient(t)
	registerAndLogin(t, owner, "alice", "password123")
	slug := shortenURL(t, owner, "https://example.com/page")

	// The list shows the fresh snapshot, newest first.
	second := shortenURL(t, owner, "https://example.com/other")
	resp, err := owner.R().Get("/my-urls")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	body := string(resp.Body())
	assert.Contains(t, body, testShortURLBase+"/"+slug)
	assert.Contains(t, body, testShortURLBase+"/"+second)
	assert.Less(
		t,
		regexp.MustCompile(regexp.QuoteMeta(second)).FindStringIndex(body)[0],
		regexp.MustCompile(regexp.QuoteMeta(slug)).FindStringIndex(body)[0],
	)

	// A different user cannot delete it.
	stranger := env.newClient(t)
	registerAndLogin(t, stranger, "bobby", "password456")
	strangerToken := fetchCSRFToken(t, stranger, "/my-urls")

	resp, err = stranger.R().
		SetFormData(map[string]string{"csrf": strangerToken}).
		Post("/" + slug)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())

	resp, err = env.newClient(t).R().Get("/" + slug)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode(), "mapping must survive a non-owner delete")

	// The owner can.
	ownerToken := fetchCSRFToken(t, owner, "/my-urls")
	resp, err = owner.R().
		SetFormData(map[string]string{"csrf": ownerToken}).
		Post("/" + slug)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode())
	assert.Equal(t, "/my-urls", resp.Header().Get("Location"))

	resp, err = env.newClient(t).R().Get("/" + slug)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func TestCreateURLInvalidTargetRerendersForm(t *testing.T) {
	env := newTestEnv(t)
	client := env.newClient(t)

	registerAndLogin(t, client, "alice", "password123")
	token := fetchCSRFToken(t, client, "/")

	resp, err := client.R().
		SetFormData(map[string]string{
			"csrf": token,
			"url":  "h t t p s://broken",
		}).
		Post("/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), invalidTargetMessage)
}

func TestRedirectUnknownSlug(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.newClient(t).R().Get("/NOSUCH")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.Empty(t, resp.Body())
}

func TestLogoutDestroysSession(t *testing.T) {
	env := newTestEnv(t)
	client := env.newClient(t)

	registerAndLogin(t, client, "alice", "password123")
	token := fetchCSRFToken(t, client, "/")

	resp, err := client.R().
		SetFormData(map[string]string{"csrf": token}).
		Post("/logout")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode())
	assert.Equal(t, "/login", resp.Header().Get("Location"))

	resp, err = client.R().Get("/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode())
	assert.Equal(t, "/login", resp.Header().Get("Location"))
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.newClient(t).R().Get("/ping")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

type pingDeadlineService struct {
	*service.Service
	sawDeadline bool
}

func (s *pingDeadlineService) Ping(ctx context.Context) error {
	_, s.sawDeadline = ctx.Deadline()
	return nil
}

func TestRequestContextCarriesDeadline(t *testing.T) {
	require.NoError(t, logger.Init("debug"))

	db, err := memorystorage.New()
	require.NoError(t, err)

	sessions := session.NewManager(session.NewMemStore(), testSessionCookieName, time.Hour, 32)
	guard := auth.New(db, sessions, testAuthCookieName, []byte("test-signing-key"), time.Hour)
	svc := &pingDeadlineService{
		Service: service.New(db, allocator.New(db), hasher.New(bcrypt.MinCost), testShortURLBase),
	}

	srv := httptest.NewServer(New(svc, guard, sessions))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, svc.sawDeadline, "storage calls must run under a request deadline")
}

func mustParseURL(t *testing.T, raw string) *neturl.URL {
	t.Helper()

	parsed, err := neturl.Parse(raw)
	require.NoError(t, err)

	return parsed
}
