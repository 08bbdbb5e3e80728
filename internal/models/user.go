package models

import "time"

// User is a GitHub account known to the dashboard, keyed by GitHub's
// numeric user ID.
type User struct {
	ID         int64      `json:"id"`
	Login      string     `json:"login"`
	Name       *string    `json:"name,omitempty"`
	AvatarURL  *string    `json:"avatar_url,omitempty"`
	Bio        *string    `json:"bio,omitempty"`
	Followers  int        `json:"followers"`
	LastScanAt *time.Time `json:"last_scan_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Repo is a repository record populated from the GitHub API. Identified
// by (OwnerUserID, Name); GithubID is informational only.
type Repo struct {
	OwnerUserID int64     `json:"owner_user_id"`
	Name        string    `json:"name"`
	GithubID    *int64    `json:"github_id,omitempty"`
	Description *string   `json:"description,omitempty"`
	Language    *string   `json:"language,omitempty"`
	Stars       int       `json:"stars"`
	Fork        bool      `json:"fork"`
	Topics      []string  `json:"topics"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session is a server-side login session referenced by the browser cookie.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ScanResult summarises one completed repository scan.
type ScanResult struct {
	UserID       int64 `json:"user_id"`
	ReposScanned int   `json:"repos_scanned"`
	ReadmesRead  int   `json:"readmes_read"`
	FactsWritten int   `json:"facts_written"`
	Failures     int   `json:"failures"`
}
