package github

// APIUser is the GitHub API representation of a user account.
type APIUser struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
	Followers int     `json:"followers"`
}

// APIRepo is the GitHub API representation of a repository.
type APIRepo struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	Owner       APIUser  `json:"owner"`
	Description *string  `json:"description"`
	Language    *string  `json:"language"`
	Stars       int      `json:"stargazers_count"`
	Fork        bool     `json:"fork"`
	Topics      []string `json:"topics"`
}

// readmeResponse is the GitHub API payload for a repository README.
type readmeResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// tokenResponse is the OAuth access-token exchange payload.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
