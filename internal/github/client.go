// Package github is a typed client for the slice of the GitHub REST API
// the dashboard needs: the authenticated user, their repositories and
// READMEs, their followers, and the OAuth code-for-token exchange.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotFound indicates the requested GitHub resource does not exist
// (including repositories without a README).
var ErrNotFound = errors.New("github: not found")

// ErrRateLimited indicates the API rate limit is exhausted. ResetAt on
// the wrapping RateLimitError says when requests will succeed again.
var ErrRateLimited = errors.New("github: rate limited")

// RateLimitError carries the reset time alongside ErrRateLimited.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

const (
	requestTimeout = 30 * time.Second
	reposPerPage   = 100
	maxRepoPages   = 10
)

// Client calls the GitHub REST and OAuth endpoints.
type Client struct {
	apiURL       string
	oauthURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	log          *logrus.Logger
}

// NewClient creates a Client for the given API and OAuth base URLs.
func NewClient(apiURL, oauthURL, clientID, clientSecret string, log *logrus.Logger) *Client {
	return &Client{
		apiURL:       strings.TrimRight(apiURL, "/"),
		oauthURL:     strings.TrimRight(oauthURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: requestTimeout},
		log:          log,
	}
}

// AuthorizeURL builds the OAuth authorization redirect target.
func (c *Client) AuthorizeURL(redirectURL, state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", redirectURL)
	q.Set("scope", "read:user")
	q.Set("state", state)

	return c.oauthURL + "/authorize?" + q.Encode()
}

// ExchangeCode swaps an OAuth authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.oauthURL+"/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchanging oauth code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth token exchange: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	if tr.Error != "" {
		return "", fmt.Errorf("oauth token exchange: %s (%s)", tr.Error, tr.ErrorDescription)
	}

	if tr.AccessToken == "" {
		return "", fmt.Errorf("oauth token exchange: empty access token")
	}

	return tr.AccessToken, nil
}

// get performs an authenticated API GET and decodes the JSON response
// into out. A nil out discards the body.
func (c *Client) get(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling github: %w", err)
	}
	defer resp.Body.Close()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		c.log.WithFields(logrus.Fields{"path": path, "remaining": remaining}).Debug("github rate limit")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return &RateLimitError{ResetAt: parseRateLimitReset(resp)}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("github %s: status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding github response: %w", err)
	}

	return nil
}

// parseRateLimitReset reads the reset timestamp header, falling back to
// a minute from now if it is missing or unparseable.
func parseRateLimitReset(resp *http.Response) time.Time {
	raw := resp.Header.Get("X-RateLimit-Reset")

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now().Add(time.Minute)
	}

	return time.Unix(unix, 0)
}

// AuthedUser returns the user the token belongs to.
func (c *Client) AuthedUser(ctx context.Context, token string) (*APIUser, error) {
	var u APIUser
	if err := c.get(ctx, token, "/user", &u); err != nil {
		return nil, err
	}

	return &u, nil
}

// ListRepos returns all repositories owned by a user, following
// pagination up to maxRepoPages.
func (c *Client) ListRepos(ctx context.Context, token, login string) ([]APIRepo, error) {
	var all []APIRepo

	for page := 1; page <= maxRepoPages; page++ {
		path := fmt.Sprintf("/users/%s/repos?per_page=%d&page=%d&sort=updated",
			url.PathEscape(login), reposPerPage, page)

		var repos []APIRepo
		if err := c.get(ctx, token, path, &repos); err != nil {
			return nil, err
		}

		all = append(all, repos...)

		if len(repos) < reposPerPage {
			break
		}
	}

	return all, nil
}

// Readme returns the decoded README text for a repository, or ErrNotFound
// when the repo has none.
func (c *Client) Readme(ctx context.Context, token, login, repo string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/readme", url.PathEscape(login), url.PathEscape(repo))

	var r readmeResponse
	if err := c.get(ctx, token, path, &r); err != nil {
		return "", err
	}

	if r.Encoding != "base64" {
		return r.Content, nil
	}

	// GitHub wraps base64 content with newlines.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(r.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding readme content: %w", err)
	}

	return string(decoded), nil
}

// ListFollowers returns the followers of a user (first page of 100;
// the dashboard only links followers who are already tracked).
func (c *Client) ListFollowers(ctx context.Context, token, login string) ([]APIUser, error) {
	path := fmt.Sprintf("/users/%s/followers?per_page=100", url.PathEscape(login))

	var followers []APIUser
	if err := c.get(ctx, token, path, &followers); err != nil {
		return nil, err
	}

	return followers, nil
}
