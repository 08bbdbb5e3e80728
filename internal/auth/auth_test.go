package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/github"
	"github.com/kmikeym/branch/internal/models"
)

type mockGithub struct {
	authorizeURLFunc func(redirectURL, state string) string
	exchangeCodeFunc func(ctx context.Context, code string) (string, error)
	authedUserFunc   func(ctx context.Context, token string) (*github.APIUser, error)
}

func (m *mockGithub) AuthorizeURL(redirectURL, state string) string {
	return m.authorizeURLFunc(redirectURL, state)
}

func (m *mockGithub) ExchangeCode(ctx context.Context, code string) (string, error) {
	return m.exchangeCodeFunc(ctx, code)
}

func (m *mockGithub) AuthedUser(ctx context.Context, token string) (*github.APIUser, error) {
	return m.authedUserFunc(ctx, token)
}

type mockUserStore struct {
	upsertUserFunc func(ctx context.Context, u *models.User) (*models.User, error)
	getUserFunc    func(ctx context.Context, userID int64) (*models.User, error)
}

func (m *mockUserStore) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	return m.upsertUserFunc(ctx, u)
}

func (m *mockUserStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	if m.getUserFunc == nil {
		return nil, models.ErrUserNotFound
	}

	return m.getUserFunc(ctx, userID)
}

type mockSessionStore struct {
	createSessionFunc func(ctx context.Context, userID int64, token string, ttl time.Duration) (*models.Session, error)
	getSessionFunc    func(ctx context.Context, sessionID string) (*models.Session, error)
	deleteSessionFunc func(ctx context.Context, sessionID string) error
}

func (m *mockSessionStore) CreateSession(ctx context.Context, userID int64, token string, ttl time.Duration) (*models.Session, error) {
	return m.createSessionFunc(ctx, userID, token, ttl)
}

func (m *mockSessionStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return m.getSessionFunc(ctx, sessionID)
}

func (m *mockSessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	if m.deleteSessionFunc == nil {
		return nil
	}

	return m.deleteSessionFunc(ctx, sessionID)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

const testSessionKey = "0123456789abcdef0123456789abcdef"

func newTestHandler(t *testing.T, gh GithubClient, users UserStore, sess SessionStore) *Handler {
	t.Helper()

	return NewHandler(gh, users, sess, testSessionKey, "http://localhost:8080/auth/callback", testLogger())
}

func newAuthRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/auth/login", h.Login)
	r.GET("/auth/callback", h.Callback)
	r.GET("/auth/logout", h.Logout)

	return r
}

func TestLogin_RedirectsWithState(t *testing.T) {
	t.Parallel()

	var gotState string

	gh := &mockGithub{
		authorizeURLFunc: func(redirectURL, state string) string {
			gotState = state

			return "https://github.test/authorize?state=" + state
		},
	}

	h := newTestHandler(t, gh, &mockUserStore{}, &mockSessionStore{})
	r := newAuthRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}

	if gotState == "" {
		t.Fatal("expected a non-empty state value")
	}

	loc := w.Header().Get("Location")
	if !strings.Contains(loc, gotState) {
		t.Errorf("redirect %q does not carry state %q", loc, gotState)
	}

	if len(w.Result().Cookies()) == 0 {
		t.Error("expected a state cookie to be set")
	}
}

func TestCallback_RejectsStateMismatch(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &mockGithub{}, &mockUserStore{}, &mockSessionStore{})
	r := newAuthRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=forged&code=x", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLoginCallback_FullFlow(t *testing.T) {
	t.Parallel()

	name := "Octo Cat"

	gh := &mockGithub{
		authorizeURLFunc: func(redirectURL, state string) string {
			return "https://github.test/authorize?state=" + state
		},
		exchangeCodeFunc: func(_ context.Context, code string) (string, error) {
			if code != "good-code" {
				t.Errorf("unexpected code %q", code)
			}

			return "gho_token", nil
		},
		authedUserFunc: func(_ context.Context, token string) (*github.APIUser, error) {
			if token != "gho_token" {
				t.Errorf("unexpected token %q", token)
			}

			return &github.APIUser{ID: 42, Login: "octocat", Name: &name}, nil
		},
	}

	var upserted *models.User

	users := &mockUserStore{
		upsertUserFunc: func(_ context.Context, u *models.User) (*models.User, error) {
			upserted = u

			return u, nil
		},
	}

	var createdToken string

	sessStore := &mockSessionStore{
		createSessionFunc: func(_ context.Context, userID int64, token string, _ time.Duration) (*models.Session, error) {
			createdToken = token

			return &models.Session{ID: "d2b2e6d8-0000-4000-8000-000000000000", UserID: userID, Token: token}, nil
		},
	}

	h := newTestHandler(t, gh, users, sessStore)
	r := newAuthRouter(h)

	// Step 1: login sets the state cookie.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("login: expected 302, got %d", w.Code)
	}

	loc, err := w.Result().Location()
	if err != nil {
		t.Fatalf("login: no redirect location: %v", err)
	}

	state := loc.Query().Get("state")

	// Step 2: callback with the same state and cookie.
	w2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state="+state+"&code=good-code", nil)

	for _, ck := range w.Result().Cookies() {
		req.AddCookie(ck)
	}

	r.ServeHTTP(w2, req)

	if w2.Code != http.StatusFound {
		t.Fatalf("callback: expected 302, got %d (body %s)", w2.Code, w2.Body.String())
	}

	if upserted == nil || upserted.ID != 42 || upserted.Login != "octocat" {
		t.Errorf("unexpected upserted user: %+v", upserted)
	}

	if createdToken != "gho_token" {
		t.Errorf("session should keep the oauth token, got %q", createdToken)
	}

	var haveLoginCookie bool

	for _, ck := range w2.Result().Cookies() {
		if ck.Name == loginCookie && ck.Value != "" {
			haveLoginCookie = true
		}
	}

	if !haveLoginCookie {
		t.Error("expected a login session cookie after callback")
	}
}

func TestRequireUser_NoCookie(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &mockGithub{}, &mockUserStore{}, &mockSessionStore{})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", h.RequireUser(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireUser_ValidSession(t *testing.T) {
	t.Parallel()

	sessStore := &mockSessionStore{
		getSessionFunc: func(_ context.Context, sessionID string) (*models.Session, error) {
			if sessionID != "sid-1" {
				return nil, models.ErrSessionExpired
			}

			return &models.Session{ID: "sid-1", UserID: 42, Token: "gho_token"}, nil
		},
	}

	users := &mockUserStore{
		getUserFunc: func(_ context.Context, userID int64) (*models.User, error) {
			return &models.User{ID: userID, Login: "octocat"}, nil
		},
	}

	h := newTestHandler(t, &mockGithub{}, users, sessStore)

	gin.SetMode(gin.TestMode)
	r := gin.New()

	var gotID int64

	var gotLogin string

	r.GET("/protected", h.RequireUser(), func(c *gin.Context) {
		gotID, _ = UserID(c)
		gotLogin, _ = Login(c)
		c.Status(http.StatusOK)
	})

	// Forge a signed login cookie by running a request through the store.
	w := httptest.NewRecorder()
	seed := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := h.cookies.Get(seed, loginCookie)
	sess.Values[keySessionID] = "sid-1"

	if err := sess.Save(seed, w); err != nil {
		t.Fatalf("saving test cookie: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, ck := range w.Result().Cookies() {
		req.AddCookie(ck)
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)

	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w2.Code)
	}

	if gotID != 42 {
		t.Errorf("expected user id 42 in context, got %d", gotID)
	}

	if gotLogin != "octocat" {
		t.Errorf("expected login octocat in context, got %q", gotLogin)
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	t.Parallel()

	var deleted string

	sessStore := &mockSessionStore{
		deleteSessionFunc: func(_ context.Context, sessionID string) error {
			deleted = sessionID

			return nil
		},
	}

	h := newTestHandler(t, &mockGithub{}, &mockUserStore{}, sessStore)
	r := newAuthRouter(h)

	w := httptest.NewRecorder()
	seed := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := h.cookies.Get(seed, loginCookie)
	sess.Values[keySessionID] = "sid-9"

	if err := sess.Save(seed, w); err != nil {
		t.Fatalf("saving test cookie: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	for _, ck := range w.Result().Cookies() {
		req.AddCookie(ck)
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)

	if w2.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w2.Code)
	}

	if deleted != "sid-9" {
		t.Errorf("expected session sid-9 to be deleted, got %q", deleted)
	}
}
