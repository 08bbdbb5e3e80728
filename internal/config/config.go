// Package config provides environment-driven configuration for the branch server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all application configuration values.
type Config struct {
	DatabaseURL        Secret
	Port               string
	ListenHost         string
	CORSOrigins        []string
	GithubClientID     string
	GithubClientSecret Secret
	GithubAPIURL       string
	GithubOAuthURL     string
	OAuthRedirectURL   string
	SessionKey         Secret
	AdminLogins        []string
	LogLevel           string
	ScanConcurrency    int
	StaticDir          string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        Secret(envOrDefault("DATABASE_URL", "")),
		Port:               envOrDefault("PORT", "8080"),
		ListenHost:         envOrDefault("LISTEN_HOST", "127.0.0.1"),
		GithubClientID:     envOrDefault("GITHUB_CLIENT_ID", ""),
		GithubClientSecret: Secret(envOrDefault("GITHUB_CLIENT_SECRET", "")),
		GithubAPIURL:       envOrDefault("GITHUB_API_URL", "https://api.github.com"),
		GithubOAuthURL:     envOrDefault("GITHUB_OAUTH_URL", "https://github.com/login/oauth"),
		OAuthRedirectURL:   envOrDefault("OAUTH_REDIRECT_URL", "http://localhost:8080/auth/callback"),
		SessionKey:         Secret(envOrDefault("SESSION_KEY", "")),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		StaticDir:          envOrDefault("STATIC_DIR", "web"),
	}

	scanConcurrency, err := strconv.Atoi(envOrDefault("SCAN_CONCURRENCY", "4"))
	if err != nil || scanConcurrency < 1 || scanConcurrency > 16 {
		return nil, fmt.Errorf("SCAN_CONCURRENCY must be an integer between 1 and 16")
	}
	cfg.ScanConcurrency = scanConcurrency

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:8080")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	// GitHub logins allowed to call admin endpoints. Empty means none.
	if admins := strings.TrimSpace(envOrDefault("ADMIN_LOGINS", "")); admins != "" {
		for _, a := range strings.Split(admins, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.AdminLogins = append(cfg.AdminLogins, a)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// IsAdmin reports whether the given GitHub login may call admin endpoints.
func (c *Config) IsAdmin(login string) bool {
	for _, a := range c.AdminLogins {
		if strings.EqualFold(a, login) {
			return true
		}
	}

	return false
}

func (c *Config) validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateNetwork(); err != nil {
		return err
	}

	if err := c.validateGithub(); err != nil {
		return err
	}

	if err := c.validateCORS(); err != nil {
		return err
	}

	if err := c.validateSession(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	dbHost := dbURL.Hostname()
	if dbHost != "localhost" && dbHost != "127.0.0.1" && dbHost != "::1" {
		sslmode := dbURL.Query().Get("sslmode")
		if sslmode == "disable" {
			return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbHost)
		}
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid integer: %w", err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	return nil
}

func (c *Config) validateGithub() error {
	if c.GithubClientID == "" {
		return fmt.Errorf("GITHUB_CLIENT_ID is required")
	}

	if c.GithubClientSecret.Value() == "" {
		return fmt.Errorf("GITHUB_CLIENT_SECRET is required")
	}

	for name, raw := range map[string]string{
		"GITHUB_API_URL":     c.GithubAPIURL,
		"GITHUB_OAUTH_URL":   c.GithubOAuthURL,
		"OAUTH_REDIRECT_URL": c.OAuthRedirectURL,
	} {
		u, err := url.ParseRequestURI(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s is not a valid URL", name)
		}

		if u.Scheme != "https" && !isLocalhost(raw) {
			return fmt.Errorf("%s must use HTTPS for non-localhost hosts", name)
		}
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) validateSession() error {
	if len(c.SessionKey.Value()) < 32 {
		return fmt.Errorf("SESSION_KEY must be at least 32 bytes, got %d", len(c.SessionKey.Value()))
	}

	return nil
}

// isLocalhost returns true if the given address points to a loopback address.
func isLocalhost(addr string) bool {
	u, err := url.Parse(addr)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
