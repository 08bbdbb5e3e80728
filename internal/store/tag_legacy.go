package store

import (
	"context"
	"fmt"

	"github.com/kmikeym/branch/internal/models"
)

// LegacyTagStore writes the four pre-unification tag tables. It stays in
// the write path for the duration of the dual-write transition so a
// rollback to the legacy representation loses nothing.
type LegacyTagStore struct {
	Base
}

// NewLegacyTagStore creates a new LegacyTagStore.
func NewLegacyTagStore(base Base) *LegacyTagStore {
	return &LegacyTagStore{Base: base}
}

// UpsertTechnology records a language or framework for a user. Re-scanning
// the same technology refreshes the observed count rather than duplicating
// the row.
func (s *LegacyTagStore) UpsertTechnology(ctx context.Context, userID int64, technology string, category models.TagCategory, count int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if category != models.CategoryLanguage && category != models.CategoryFramework {
		return fmt.Errorf("legacy technology category must be language or framework, got %q", category)
	}

	_, err := s.Pool.Exec(ctx,
		`INSERT INTO user_technologies (user_id, technology, category, usage_count)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, technology, category) DO UPDATE SET usage_count = EXCLUDED.usage_count`,
		userID, technology, category, count)
	if err != nil {
		return fmt.Errorf("upserting legacy technology: %w", err)
	}

	return nil
}

// UpsertAITool records an AI-tool mention in a repository's README.
func (s *LegacyTagStore) UpsertAITool(ctx context.Context, userID int64, repoName, aiTool string, mentionCount int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx,
		`INSERT INTO repo_ai_tools (user_id, repo_name, ai_tool, mention_count)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, repo_name, ai_tool) DO UPDATE SET mention_count = EXCLUDED.mention_count`,
		userID, repoName, aiTool, mentionCount)
	if err != nil {
		return fmt.Errorf("upserting legacy ai tool: %w", err)
	}

	return nil
}

// UpsertService records a hosting-service mention for a user.
func (s *LegacyTagStore) UpsertService(ctx context.Context, userID int64, service string, count int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx,
		`INSERT INTO user_services (user_id, service, usage_count)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, service) DO UPDATE SET usage_count = EXCLUDED.usage_count`,
		userID, service, count)
	if err != nil {
		return fmt.Errorf("upserting legacy service: %w", err)
	}

	return nil
}

// InsertUserTag records a free-form tag in the legacy table. A duplicate
// insert is a no-op, matching the unified table's semantics.
func (s *LegacyTagStore) InsertUserTag(ctx context.Context, tagName string, entityType models.EntityType, entityID int64, repoName *string, taggerUserID int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx,
		`INSERT INTO user_tags (tag_name, entity_type, entity_id, repo_name, tagger_user_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT DO NOTHING`,
		tagName, entityType, entityID, repoName, taggerUserID)
	if err != nil {
		return fmt.Errorf("inserting legacy user tag: %w", err)
	}

	return nil
}

// DeleteUserTag removes a legacy free-form tag row sourced by the given
// tagger, mirroring the unified removal.
func (s *LegacyTagStore) DeleteUserTag(ctx context.Context, tagName string, entityType models.EntityType, entityID int64, repoName *string, taggerUserID int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx,
		`DELETE FROM user_tags
		 WHERE tag_name = $1 AND entity_type = $2 AND entity_id = $3
		   AND repo_name IS NOT DISTINCT FROM $4 AND tagger_user_id = $5`,
		tagName, entityType, entityID, repoName, taggerUserID)
	if err != nil {
		return fmt.Errorf("deleting legacy user tag: %w", err)
	}

	return nil
}

// LegacyCounts holds per-table row counts, used by the operator
// consistency check to compare against the unified table.
type LegacyCounts struct {
	Technologies int `json:"technologies"`
	AITools      int `json:"ai_tools"`
	Services     int `json:"services"`
	UserTags     int `json:"user_tags"`
}

// Counts returns row counts for all four legacy tables.
func (s *LegacyTagStore) Counts(ctx context.Context) (*LegacyCounts, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var c LegacyCounts

	err := s.Pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM user_technologies),
			(SELECT COUNT(*) FROM repo_ai_tools),
			(SELECT COUNT(*) FROM user_services),
			(SELECT COUNT(*) FROM user_tags)`,
	).Scan(&c.Technologies, &c.AITools, &c.Services, &c.UserTags)
	if err != nil {
		return nil, fmt.Errorf("counting legacy tag rows: %w", err)
	}

	return &c, nil
}
