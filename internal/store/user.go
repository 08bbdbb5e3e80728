package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kmikeym/branch/internal/models"
)

// UserStore handles user records and follow edges.
type UserStore struct {
	Base
}

// NewUserStore creates a new UserStore.
func NewUserStore(base Base) *UserStore {
	return &UserStore{Base: base}
}

const userColumns = "id, login, name, avatar_url, bio, followers, last_scan_at, created_at, updated_at"

func scanUser(scan func(dest ...any) error) (*models.User, error) {
	var u models.User

	err := scan(
		&u.ID, &u.Login, &u.Name, &u.AvatarURL, &u.Bio,
		&u.Followers, &u.LastScanAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &u, nil
}

// UpsertUser inserts a user or refreshes their profile fields on conflict.
// Keyed by GitHub's numeric user ID so re-login never creates a duplicate.
func (s *UserStore) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO users (id, login, name, avatar_url, bio, followers)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			login = EXCLUDED.login,
			name = EXCLUDED.name,
			avatar_url = EXCLUDED.avatar_url,
			bio = EXCLUDED.bio,
			followers = EXCLUDED.followers,
			updated_at = now()
		RETURNING ` + userColumns

	row := s.Pool.QueryRow(ctx, query, u.ID, u.Login, u.Name, u.AvatarURL, u.Bio, u.Followers)

	saved, err := scanUser(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}

	return saved, nil
}

// GetUser returns a user by GitHub ID.
func (s *UserStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", userID)

	u, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}

		return nil, fmt.Errorf("getting user: %w", err)
	}

	return u, nil
}

// GetUserByLogin returns a user by GitHub login.
func (s *UserStore) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE login = $1", login)

	u, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}

		return nil, fmt.Errorf("getting user by login: %w", err)
	}

	return u, nil
}

// MarkScanned stamps last_scan_at for a user.
func (s *UserStore) MarkScanned(ctx context.Context, userID int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, "UPDATE users SET last_scan_at = now(), updated_at = now() WHERE id = $1", userID)
	if err != nil {
		return fmt.Errorf("marking user scanned: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}

	return nil
}

// ReplaceFollowers swaps the follow edges pointing at a user with a fresh
// set. Followers that are not yet known as users are skipped; the scan
// only records edges between tracked accounts.
func (s *UserStore) ReplaceFollowers(ctx context.Context, userID int64, followerIDs []int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replacing followers: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	if _, err := tx.Exec(ctx, "DELETE FROM follows WHERE followed_id = $1", userID); err != nil {
		return fmt.Errorf("clearing follow edges: %w", err)
	}

	for _, followerID := range followerIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO follows (follower_id, followed_id)
			 SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM users WHERE id = $1)
			 ON CONFLICT DO NOTHING`,
			followerID, userID)
		if err != nil {
			return fmt.Errorf("inserting follow edge: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing follower replacement: %w", err)
	}

	return nil
}

// CountUsers returns the number of tracked users and how many have been scanned.
func (s *UserStore) CountUsers(ctx context.Context) (total, scanned int, err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err = s.Pool.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE last_scan_at IS NOT NULL) FROM users",
	).Scan(&total, &scanned)
	if err != nil {
		return 0, 0, fmt.Errorf("counting users: %w", err)
	}

	return total, scanned, nil
}
