package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kmikeym/branch/internal/models"
)

// UnifiedTagStore owns the tags_unified table: every fact about a user or
// repository, regardless of category, lives here. Uniqueness is enforced
// by two partial indexes (user-level and repo-level), so a lost insert
// race is always safe — the second writer's row simply doesn't land.
type UnifiedTagStore struct {
	Base
}

// NewUnifiedTagStore creates a new UnifiedTagStore.
func NewUnifiedTagStore(base Base) *UnifiedTagStore {
	return &UnifiedTagStore{Base: base}
}

const factColumns = "id, tag_name, entity_type, entity_id, source_type, source_user_id, category, repo_name, confidence, created_at"

func scanFact(scan func(dest ...any) error) (*models.Fact, error) {
	var f models.Fact

	err := scan(
		&f.ID, &f.TagName, &f.EntityType, &f.EntityID, &f.SourceType,
		&f.SourceUserID, &f.Category, &f.RepoName, &f.Confidence, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &f, nil
}

// AddFact inserts a fact. A duplicate under either uniqueness scope is a
// no-op; the bool return reports whether a new row actually landed.
func (s *UnifiedTagStore) AddFact(ctx context.Context, f *models.Fact) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	confidence := f.Confidence
	if confidence == 0 {
		confidence = 1.0
	}

	tag, err := s.Pool.Exec(ctx,
		`INSERT INTO tags_unified (tag_name, entity_type, entity_id, source_type, source_user_id, category, repo_name, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT DO NOTHING`,
		f.TagName, f.EntityType, f.EntityID, f.SourceType, f.SourceUserID, f.Category, f.RepoName, confidence)
	if err != nil {
		return false, fmt.Errorf("inserting fact: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// RemoveTag deletes the fact matching the request, but only if the
// requester sourced it. System facts and other users' tags stay put and
// the caller gets models.ErrPermissionDenied; a fact that isn't there at
// all is models.ErrTagNotFound.
func (s *UnifiedTagStore) RemoveTag(ctx context.Context, req models.RemoveTagRequest, requesterUserID int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM tags_unified
		 WHERE tag_name = $1 AND entity_type = $2 AND entity_id = $3
		   AND repo_name IS NOT DISTINCT FROM $4
		   AND source_type = 'user' AND source_user_id = $5`,
		req.TagName, req.EntityType, req.EntityID, req.RepoName, requesterUserID)
	if err != nil {
		return fmt.Errorf("removing tag: %w", err)
	}

	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing deleted: distinguish "not yours" from "not there".
	var exists bool

	err = s.Pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM tags_unified
			WHERE tag_name = $1 AND entity_type = $2 AND entity_id = $3
			  AND repo_name IS NOT DISTINCT FROM $4)`,
		req.TagName, req.EntityType, req.EntityID, req.RepoName,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking tag existence: %w", err)
	}

	if exists {
		return models.ErrPermissionDenied
	}

	return models.ErrTagNotFound
}

// RenameTag updates tag_name across all matching rows. Where the rename
// would collide with an existing new-name fact for the same entity, the
// old row is dropped in favour of the existing one (merge-by-drop), so
// the uniqueness indexes are never violated and no duplicate survives.
func (s *UnifiedTagStore) RenameTag(ctx context.Context, oldName, newName string) (renamed, merged int64, err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("renaming tag: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	dropTag, err := tx.Exec(ctx,
		`DELETE FROM tags_unified o
		 WHERE o.tag_name = $1 AND EXISTS (
			SELECT 1 FROM tags_unified n
			WHERE n.id <> o.id
			  AND n.tag_name = $2
			  AND n.entity_type = o.entity_type
			  AND n.entity_id = o.entity_id
			  AND n.repo_name IS NOT DISTINCT FROM o.repo_name)`,
		oldName, newName)
	if err != nil {
		return 0, 0, fmt.Errorf("merging colliding facts: %w", err)
	}

	updateTag, err := tx.Exec(ctx,
		"UPDATE tags_unified SET tag_name = $2 WHERE tag_name = $1",
		oldName, newName)
	if err != nil {
		return 0, 0, fmt.Errorf("updating tag name: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("committing tag rename: %w", err)
	}

	return updateTag.RowsAffected(), dropTag.RowsAffected(), nil
}

// FactsForUser returns all user-level facts for a user, partitioned by
// category into the arrays the dashboard has always served: languages and
// frameworks together as the tech stack, then AI tools, services, and
// free-form tags.
func (s *UnifiedTagStore) FactsForUser(ctx context.Context, userID int64) (*models.UserTags, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		"SELECT "+factColumns+` FROM tags_unified
		 WHERE entity_type = 'user' AND entity_id = $1
		 ORDER BY category, tag_name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying user facts: %w", err)
	}
	defer rows.Close()

	result := models.UserTags{
		TechStack: []models.Fact{},
		AITools:   []models.Fact{},
		Services:  []models.Fact{},
		Tags:      []models.Fact{},
	}

	for rows.Next() {
		f, err := scanFact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}

		switch f.Category {
		case models.CategoryLanguage, models.CategoryFramework:
			result.TechStack = append(result.TechStack, *f)
		case models.CategoryAITool:
			result.AITools = append(result.AITools, *f)
		case models.CategoryService:
			result.Services = append(result.Services, *f)
		case models.CategoryUserTag:
			result.Tags = append(result.Tags, *f)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user facts: %w", err)
	}

	return &result, nil
}

// provenance renders the source annotation for a fact: "system" for
// auto-detected facts, "user:<id>" for human-added ones.
func provenance(sourceType models.SourceType, sourceUserID *int64) string {
	if sourceType == models.SourceUser && sourceUserID != nil {
		return "user:" + strconv.FormatInt(*sourceUserID, 10)
	}

	return "system"
}

// EntitiesForTag returns the distinct users and (owner, repo_name) pairs
// carrying the given tag. Membership comes from explicit facts only; a
// repository's primary-language column is never used as a tag proxy.
func (s *UnifiedTagStore) EntitiesForTag(ctx context.Context, tagName string) (*models.TaggedEntities, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result := models.TaggedEntities{
		TagName: tagName,
		Users:   []models.TaggedUser{},
		Repos:   []models.TaggedRepo{},
	}

	userRows, err := s.Pool.Query(ctx,
		`SELECT DISTINCT ON (t.entity_id) t.entity_id, COALESCE(u.login, ''), t.source_type, t.source_user_id
		 FROM tags_unified t
		 LEFT JOIN users u ON u.id = t.entity_id
		 WHERE t.tag_name = $1 AND t.entity_type = 'user'
		 ORDER BY t.entity_id, t.created_at`,
		tagName)
	if err != nil {
		return nil, fmt.Errorf("querying tagged users: %w", err)
	}
	defer userRows.Close()

	for userRows.Next() {
		var (
			tu           models.TaggedUser
			sourceType   models.SourceType
			sourceUserID *int64
		)

		if err := userRows.Scan(&tu.UserID, &tu.Login, &sourceType, &sourceUserID); err != nil {
			return nil, fmt.Errorf("scanning tagged user: %w", err)
		}

		tu.Source = provenance(sourceType, sourceUserID)
		result.Users = append(result.Users, tu)
	}

	if err := userRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tagged users: %w", err)
	}

	repoRows, err := s.Pool.Query(ctx,
		`SELECT DISTINCT ON (t.entity_id, t.repo_name) t.entity_id, COALESCE(u.login, ''), t.repo_name, t.source_type, t.source_user_id
		 FROM tags_unified t
		 LEFT JOIN users u ON u.id = t.entity_id
		 WHERE t.tag_name = $1 AND t.entity_type = 'repo'
		 ORDER BY t.entity_id, t.repo_name, t.created_at`,
		tagName)
	if err != nil {
		return nil, fmt.Errorf("querying tagged repos: %w", err)
	}
	defer repoRows.Close()

	for repoRows.Next() {
		var (
			tr           models.TaggedRepo
			sourceType   models.SourceType
			sourceUserID *int64
		)

		if err := repoRows.Scan(&tr.OwnerUserID, &tr.OwnerLogin, &tr.RepoName, &sourceType, &sourceUserID); err != nil {
			return nil, fmt.Errorf("scanning tagged repo: %w", err)
		}

		tr.Source = provenance(sourceType, sourceUserID)
		result.Repos = append(result.Repos, tr)
	}

	if err := repoRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tagged repos: %w", err)
	}

	return &result, nil
}

// CategoryCounts returns fact counts grouped by category plus the distinct
// tagged-entity counts, for the stats endpoint.
func (s *UnifiedTagStore) CategoryCounts(ctx context.Context) (total int, byCategory map[string]int, users, repos int, err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	byCategory = make(map[string]int)

	rows, err := s.Pool.Query(ctx,
		"SELECT category, COUNT(*) FROM tags_unified GROUP BY category")
	if err != nil {
		return 0, nil, 0, 0, fmt.Errorf("counting facts by category: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			n        int
		)

		if err := rows.Scan(&category, &n); err != nil {
			return 0, nil, 0, 0, fmt.Errorf("scanning category count: %w", err)
		}

		byCategory[category] = n
		total += n
	}

	if err := rows.Err(); err != nil {
		return 0, nil, 0, 0, fmt.Errorf("iterating category counts: %w", err)
	}

	err = s.Pool.QueryRow(ctx,
		`SELECT
			COUNT(DISTINCT entity_id) FILTER (WHERE entity_type = 'user'),
			COUNT(DISTINCT (entity_id, repo_name)) FILTER (WHERE entity_type = 'repo')
		 FROM tags_unified`,
	).Scan(&users, &repos)
	if err != nil {
		return 0, nil, 0, 0, fmt.Errorf("counting tagged entities: %w", err)
	}

	return total, byCategory, users, repos, nil
}

// TopTags returns the most common tag names across all facts.
func (s *UnifiedTagStore) TopTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT tag_name, COUNT(*) AS n FROM tags_unified
		 GROUP BY tag_name ORDER BY n DESC, tag_name LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying top tags: %w", err)
	}
	defer rows.Close()

	counts := []models.TagCount{}

	for rows.Next() {
		var tc models.TagCount

		if err := rows.Scan(&tc.TagName, &tc.Count); err != nil {
			return nil, fmt.Errorf("scanning top tag: %w", err)
		}

		counts = append(counts, tc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top tags: %w", err)
	}

	return counts, nil
}
