// Package auth implements the GitHub OAuth login flow and the session
// middleware that resolves the login cookie to a user.
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/github"
	"github.com/kmikeym/branch/internal/httputil"
	"github.com/kmikeym/branch/internal/models"
	"github.com/kmikeym/branch/internal/store"
)

// oauthCookie holds transient OAuth state during the redirect round trip.
// loginCookie carries only the server-side session ID after login.
const (
	oauthCookie = "branch_oauth"
	loginCookie = "branch_session"

	keyState     = "state"
	keySessionID = "sid"
)

// Gin context keys set by the session middleware.
const (
	CtxUserID  = "user_id"
	CtxLogin   = "login"
	CtxSession = "session"
)

// GithubClient is the part of the GitHub API client the OAuth flow needs.
type GithubClient interface {
	AuthorizeURL(redirectURL, state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	AuthedUser(ctx context.Context, token string) (*github.APIUser, error)
}

// UserStore is the part of the user store the auth flow needs.
type UserStore interface {
	UpsertUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

// SessionStore is the part of the session store the auth flow needs.
type SessionStore interface {
	CreateSession(ctx context.Context, userID int64, token string, ttl time.Duration) (*models.Session, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Handler implements the /auth/* routes.
type Handler struct {
	github      GithubClient
	users       UserStore
	sessions    SessionStore
	cookies     *sessions.CookieStore
	redirectURL string
	log         *logrus.Logger
}

// NewHandler creates the OAuth handler. The session key is hashed to a
// 32-byte cookie signing key so any passphrase length works.
func NewHandler(gh GithubClient, users UserStore, sess SessionStore, sessionKey, redirectURL string, log *logrus.Logger) *Handler {
	key := sha256.Sum256([]byte(sessionKey))

	cookies := sessions.NewCookieStore(key[:])
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(store.DefaultSessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   strings.HasPrefix(redirectURL, "https://"),
		// Lax, not Strict: the callback arrives as a cross-site redirect
		// from github.com and Strict would drop the state cookie.
		SameSite: http.SameSiteLaxMode,
	}

	return &Handler{
		github:      gh,
		users:       users,
		sessions:    sess,
		cookies:     cookies,
		redirectURL: redirectURL,
		log:         log,
	}
}

// Login starts the OAuth flow: store a random state value in a short-lived
// cookie and redirect the browser to GitHub's authorize page.
func (h *Handler) Login(c *gin.Context) {
	state := uuid.New().String()

	sess, _ := h.cookies.Get(c.Request, oauthCookie)
	sess.Values[keyState] = state
	sess.Options.MaxAge = 600

	if err := sess.Save(c.Request, c.Writer); err != nil {
		h.log.WithError(err).Error("failed to save oauth state cookie")
		httputil.RespondError(c, http.StatusInternalServerError, "internal_error", "failed to start login")

		return
	}

	c.Redirect(http.StatusFound, h.github.AuthorizeURL(h.redirectURL, state))
}

// Callback completes the OAuth flow: verify state, exchange the code for a
// token, upsert the user record and create a server-side session.
func (h *Handler) Callback(c *gin.Context) {
	oauthSess, _ := h.cookies.Get(c.Request, oauthCookie)

	want, _ := oauthSess.Values[keyState].(string)
	got := c.Query("state")

	if want == "" || got != want {
		httputil.RespondError(c, http.StatusBadRequest, "invalid_state", "oauth state mismatch")

		return
	}

	code := c.Query("code")
	if code == "" {
		httputil.RespondError(c, http.StatusBadRequest, "missing_code", "missing oauth code")

		return
	}

	token, err := h.github.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		h.log.WithError(err).Warn("oauth code exchange failed")
		httputil.RespondError(c, http.StatusBadGateway, "oauth_failed", "code exchange failed")

		return
	}

	apiUser, err := h.github.AuthedUser(c.Request.Context(), token)
	if err != nil {
		h.log.WithError(err).Warn("fetching authenticated user failed")
		httputil.RespondError(c, http.StatusBadGateway, "oauth_failed", "failed to fetch user")

		return
	}

	user, err := h.users.UpsertUser(c.Request.Context(), &models.User{
		ID:        apiUser.ID,
		Login:     apiUser.Login,
		Name:      apiUser.Name,
		AvatarURL: apiUser.AvatarURL,
		Bio:       apiUser.Bio,
		Followers: apiUser.Followers,
	})
	if err != nil {
		h.log.WithError(err).Error("upserting user on login failed")
		httputil.RespondError(c, http.StatusInternalServerError, "internal_error", "failed to store user")

		return
	}

	serverSess, err := h.sessions.CreateSession(c.Request.Context(), user.ID, token, store.DefaultSessionTTL)
	if err != nil {
		h.log.WithError(err).Error("creating session failed")
		httputil.RespondError(c, http.StatusInternalServerError, "internal_error", "failed to create session")

		return
	}

	// The OAuth state cookie has done its job.
	oauthSess.Options.MaxAge = -1
	_ = oauthSess.Save(c.Request, c.Writer)

	loginSess, _ := h.cookies.Get(c.Request, loginCookie)
	loginSess.Values[keySessionID] = serverSess.ID

	if err := loginSess.Save(c.Request, c.Writer); err != nil {
		h.log.WithError(err).Error("failed to save session cookie")
		httputil.RespondError(c, http.StatusInternalServerError, "internal_error", "failed to save session")

		return
	}

	h.log.WithFields(logrus.Fields{"user_id": user.ID, "login": user.Login}).Info("user logged in")

	c.Redirect(http.StatusFound, "/")
}

// Logout deletes the server-side session and clears the cookie.
func (h *Handler) Logout(c *gin.Context) {
	loginSess, _ := h.cookies.Get(c.Request, loginCookie)

	if sid, ok := loginSess.Values[keySessionID].(string); ok && sid != "" {
		if err := h.sessions.DeleteSession(c.Request.Context(), sid); err != nil {
			h.log.WithError(err).Warn("deleting session on logout failed")
		}
	}

	loginSess.Options.MaxAge = -1
	_ = loginSess.Save(c.Request, c.Writer)

	c.Redirect(http.StatusFound, "/")
}

// resolve looks up the server-side session referenced by the login cookie.
func (h *Handler) resolve(c *gin.Context) (*models.Session, error) {
	loginSess, _ := h.cookies.Get(c.Request, loginCookie)

	sid, ok := loginSess.Values[keySessionID].(string)
	if !ok || sid == "" {
		return nil, models.ErrSessionExpired
	}

	return h.sessions.GetSession(c.Request.Context(), sid)
}

// RequireUser aborts with 401 unless the request carries a valid session.
func (h *Handler) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := h.resolve(c)
		if err != nil {
			if !errors.Is(err, models.ErrSessionExpired) {
				h.log.WithError(err).Error("session lookup failed")
			}

			httputil.RespondError(c, http.StatusUnauthorized, "unauthorized", "login required")

			return
		}

		h.attach(c, sess)
		c.Next()
	}
}

// OptionalUser resolves the session if present but never rejects the request.
func (h *Handler) OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sess, err := h.resolve(c); err == nil {
			h.attach(c, sess)
		}

		c.Next()
	}
}

func (h *Handler) attach(c *gin.Context, sess *models.Session) {
	c.Set(CtxUserID, sess.UserID)
	c.Set(CtxSession, sess)

	if user, err := h.users.GetUser(c.Request.Context(), sess.UserID); err == nil {
		c.Set(CtxLogin, user.Login)
	}
}

// UserID returns the authenticated user's ID from the gin context.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}

	id, ok := v.(int64)

	return id, ok
}

// Login returns the authenticated user's GitHub login from the gin context.
func Login(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxLogin)
	if !ok {
		return "", false
	}

	login, ok := v.(string)

	return login, ok
}

// Session returns the resolved server-side session from the gin context.
func Session(c *gin.Context) (*models.Session, bool) {
	v, ok := c.Get(CtxSession)
	if !ok {
		return nil, false
	}

	sess, ok := v.(*models.Session)

	return sess, ok
}
