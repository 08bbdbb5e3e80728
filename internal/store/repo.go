package store

import (
	"context"
	"fmt"

	"github.com/kmikeym/branch/internal/models"
)

// RepoStore handles repository records.
type RepoStore struct {
	Base
}

// NewRepoStore creates a new RepoStore.
func NewRepoStore(base Base) *RepoStore {
	return &RepoStore{Base: base}
}

const repoColumns = "owner_user_id, name, github_id, description, language, stars, fork, topics, updated_at"

func scanRepo(scan func(dest ...any) error) (*models.Repo, error) {
	var r models.Repo

	err := scan(
		&r.OwnerUserID, &r.Name, &r.GithubID, &r.Description,
		&r.Language, &r.Stars, &r.Fork, &r.Topics, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// UpsertRepo inserts a repository or refreshes its metadata on conflict.
// Keyed by (owner_user_id, name) per the repo identity model.
func (s *RepoStore) UpsertRepo(ctx context.Context, r *models.Repo) (*models.Repo, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}

	query := `INSERT INTO repos (owner_user_id, name, github_id, description, language, stars, fork, topics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_user_id, name) DO UPDATE SET
			github_id = EXCLUDED.github_id,
			description = EXCLUDED.description,
			language = EXCLUDED.language,
			stars = EXCLUDED.stars,
			fork = EXCLUDED.fork,
			topics = EXCLUDED.topics,
			updated_at = now()
		RETURNING ` + repoColumns

	row := s.Pool.QueryRow(ctx, query,
		r.OwnerUserID, r.Name, r.GithubID, r.Description, r.Language, r.Stars, r.Fork, topics)

	saved, err := scanRepo(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("upserting repo: %w", err)
	}

	return saved, nil
}

// ListReposByOwner returns all repositories owned by a user.
func (s *RepoStore) ListReposByOwner(ctx context.Context, ownerUserID int64) ([]models.Repo, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		"SELECT "+repoColumns+" FROM repos WHERE owner_user_id = $1 ORDER BY stars DESC, name",
		ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("listing repos: %w", err)
	}
	defer rows.Close()

	var repos []models.Repo

	for rows.Next() {
		r, err := scanRepo(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning repo: %w", err)
		}

		repos = append(repos, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating repos: %w", err)
	}

	return repos, nil
}

// CountRepos returns the number of tracked repositories.
func (s *RepoStore) CountRepos(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int
	if err := s.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM repos").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting repos: %w", err)
	}

	return n, nil
}
