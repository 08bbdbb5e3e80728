package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kmikeym/branch/internal/models"
)

// SessionStore handles server-side login sessions. The browser cookie
// carries only the session ID; everything else lives in this table.
type SessionStore struct {
	Base
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(base Base) *SessionStore {
	return &SessionStore{Base: base}
}

// DefaultSessionTTL is how long a login session stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

// CreateSession creates a session for a user and returns it. The GitHub
// access token is kept server-side so scans can reuse it later.
func (s *SessionStore) CreateSession(ctx context.Context, userID int64, token string, ttl time.Duration) (*models.Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	sess := models.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
	}

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, token, expires_at) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		sess.ID, sess.UserID, sess.Token, sess.ExpiresAt,
	).Scan(&sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &sess, nil
}

// GetSession returns the session with the given ID if it has not expired.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, models.ErrSessionExpired
	}

	var sess models.Session

	err := s.Pool.QueryRow(ctx,
		"SELECT id, user_id, token, expires_at, created_at FROM sessions WHERE id = $1 AND expires_at > now()",
		sessionID,
	).Scan(&sess.ID, &sess.UserID, &sess.Token, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSessionExpired
		}

		return nil, fmt.Errorf("getting session: %w", err)
	}

	return &sess, nil
}

// DeleteSession removes a session (logout). Deleting a missing session is not an error.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := s.Pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

// PurgeExpired removes lapsed sessions and returns how many were deleted.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at <= now()")
	if err != nil {
		return 0, fmt.Errorf("purging expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
