package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/models"
)

// TagMigrator copies rows from the four legacy tag tables into
// tags_unified exactly once. The guard is a presence check: any
// system-sourced fact in the detection categories means a previous run
// already happened, and the whole routine is skipped. Legacy tables are
// read-only here; every write is an additive insert into tags_unified.
type TagMigrator struct {
	Base
}

// NewTagMigrator creates a new TagMigrator.
func NewTagMigrator(base Base) *TagMigrator {
	return &TagMigrator{Base: base}
}

// MigrationResult summarises one migration run.
type MigrationResult struct {
	Ran      bool `json:"ran"`
	Migrated int  `json:"migrated"`
	Skipped  int  `json:"skipped"`
}

// HasMigrated reports whether the unified table already contains
// migration output.
func (m *TagMigrator) HasMigrated(ctx context.Context) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var exists bool

	err := m.Pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM tags_unified
			WHERE source_type = 'system'
			  AND category IN ('language', 'framework', 'ai_tool', 'service'))`,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking migration guard: %w", err)
	}

	return exists, nil
}

// Migrate runs the one-shot legacy-to-unified copy. Running it again
// after a completed run is a no-op (Ran=false). Individual rows that
// fail to insert for any reason other than a duplicate are logged and
// skipped, never fatal.
func (m *TagMigrator) Migrate(ctx context.Context) (*MigrationResult, error) {
	done, err := m.HasMigrated(ctx)
	if err != nil {
		return nil, err
	}

	if done {
		m.Log.Info("unified tag table already migrated, skipping")

		return &MigrationResult{Ran: false}, nil
	}

	result := &MigrationResult{Ran: true}

	steps := []struct {
		name string
		fn   func(context.Context, *MigrationResult) error
	}{
		{"technologies", m.migrateTechnologies},
		{"ai_tools", m.migrateAITools},
		{"services", m.migrateServices},
		{"user_tags", m.migrateUserTags},
	}

	for _, step := range steps {
		if err := step.fn(ctx, result); err != nil {
			return nil, fmt.Errorf("migrating legacy %s: %w", step.name, err)
		}
	}

	m.Log.WithFields(logrus.Fields{
		"migrated": result.Migrated,
		"skipped":  result.Skipped,
	}).Info("legacy tag migration complete")

	return result, nil
}

// insertFact performs one additive insert. Duplicates count as skipped
// (already migrated); other failures are logged per-row and skipped.
func (m *TagMigrator) insertFact(ctx context.Context, result *MigrationResult, f *models.Fact) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := m.Pool.Exec(ctx,
		`INSERT INTO tags_unified (tag_name, entity_type, entity_id, source_type, source_user_id, category, repo_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT DO NOTHING`,
		f.TagName, f.EntityType, f.EntityID, f.SourceType, f.SourceUserID, f.Category, f.RepoName)
	if err != nil {
		if isUniqueViolation(err) {
			result.Skipped++

			return
		}

		m.Log.WithError(err).WithFields(logrus.Fields{
			"tag_name":  f.TagName,
			"entity_id": f.EntityID,
			"category":  f.Category,
		}).Warn("skipping malformed legacy row")
		result.Skipped++

		return
	}

	if tag.RowsAffected() == 0 {
		result.Skipped++

		return
	}

	result.Migrated++
}

// migrateTechnologies copies user_technologies rows as user-level facts,
// preserving the legacy language/framework split in the category column.
func (m *TagMigrator) migrateTechnologies(ctx context.Context, result *MigrationResult) error {
	rows, err := m.Pool.Query(ctx,
		"SELECT user_id, technology, category FROM user_technologies ORDER BY id")
	if err != nil {
		return fmt.Errorf("reading user_technologies: %w", err)
	}

	type techRow struct {
		userID     int64
		technology string
		category   string
	}

	var pending []techRow

	for rows.Next() {
		var r techRow
		if err := rows.Scan(&r.userID, &r.technology, &r.category); err != nil {
			rows.Close()

			return fmt.Errorf("scanning user_technologies row: %w", err)
		}

		pending = append(pending, r)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating user_technologies: %w", err)
	}

	for _, r := range pending {
		m.insertFact(ctx, result, &models.Fact{
			TagName:    r.technology,
			EntityType: models.EntityUser,
			EntityID:   r.userID,
			SourceType: models.SourceSystem,
			Category:   models.TagCategory(r.category),
		})
	}

	return nil
}

// migrateAITools copies repo_ai_tools rows as repo-level facts keyed by
// the owning user's ID (never a repo-internal ID), then derives one
// user-level fact per distinct tool per user so the tool also shows up
// at user granularity.
func (m *TagMigrator) migrateAITools(ctx context.Context, result *MigrationResult) error {
	rows, err := m.Pool.Query(ctx,
		"SELECT user_id, repo_name, ai_tool FROM repo_ai_tools ORDER BY id")
	if err != nil {
		return fmt.Errorf("reading repo_ai_tools: %w", err)
	}

	type toolRow struct {
		userID   int64
		repoName string
		aiTool   string
	}

	var pending []toolRow

	for rows.Next() {
		var r toolRow
		if err := rows.Scan(&r.userID, &r.repoName, &r.aiTool); err != nil {
			rows.Close()

			return fmt.Errorf("scanning repo_ai_tools row: %w", err)
		}

		pending = append(pending, r)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating repo_ai_tools: %w", err)
	}

	type userTool struct {
		userID int64
		tool   string
	}

	seen := make(map[userTool]bool)

	for _, r := range pending {
		repoName := r.repoName
		m.insertFact(ctx, result, &models.Fact{
			TagName:    r.aiTool,
			EntityType: models.EntityRepo,
			EntityID:   r.userID,
			SourceType: models.SourceSystem,
			Category:   models.CategoryAITool,
			RepoName:   &repoName,
		})

		seen[userTool{r.userID, r.aiTool}] = true
	}

	for ut := range seen {
		m.insertFact(ctx, result, &models.Fact{
			TagName:    ut.tool,
			EntityType: models.EntityUser,
			EntityID:   ut.userID,
			SourceType: models.SourceSystem,
			Category:   models.CategoryAITool,
		})
	}

	return nil
}

// migrateServices copies user_services rows as user-level facts.
func (m *TagMigrator) migrateServices(ctx context.Context, result *MigrationResult) error {
	rows, err := m.Pool.Query(ctx,
		"SELECT user_id, service FROM user_services ORDER BY id")
	if err != nil {
		return fmt.Errorf("reading user_services: %w", err)
	}

	type serviceRow struct {
		userID  int64
		service string
	}

	var pending []serviceRow

	for rows.Next() {
		var r serviceRow
		if err := rows.Scan(&r.userID, &r.service); err != nil {
			rows.Close()

			return fmt.Errorf("scanning user_services row: %w", err)
		}

		pending = append(pending, r)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating user_services: %w", err)
	}

	for _, r := range pending {
		m.insertFact(ctx, result, &models.Fact{
			TagName:    r.service,
			EntityType: models.EntityUser,
			EntityID:   r.userID,
			SourceType: models.SourceSystem,
			Category:   models.CategoryService,
		})
	}

	return nil
}

// migrateUserTags copies free-form tags, preserving the entity encoding
// and tagger identity the legacy rows already carry.
func (m *TagMigrator) migrateUserTags(ctx context.Context, result *MigrationResult) error {
	rows, err := m.Pool.Query(ctx,
		"SELECT tag_name, entity_type, entity_id, repo_name, tagger_user_id FROM user_tags ORDER BY id")
	if err != nil {
		return fmt.Errorf("reading user_tags: %w", err)
	}

	var pending []models.Fact

	for rows.Next() {
		var (
			f        models.Fact
			taggerID int64
		)

		if err := rows.Scan(&f.TagName, &f.EntityType, &f.EntityID, &f.RepoName, &taggerID); err != nil {
			rows.Close()

			return fmt.Errorf("scanning user_tags row: %w", err)
		}

		f.SourceType = models.SourceUser
		f.SourceUserID = &taggerID
		f.Category = models.CategoryUserTag
		pending = append(pending, f)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating user_tags: %w", err)
	}

	for i := range pending {
		m.insertFact(ctx, result, &pending[i])
	}

	return nil
}

// ConsistencyReport compares legacy row counts with unified system-fact
// counts. The recovery path for a dual-write partial failure is an
// operator reading this report and re-running scans, not automatic
// reconciliation.
type ConsistencyReport struct {
	Legacy        LegacyCounts   `json:"legacy"`
	UnifiedSystem map[string]int `json:"unified_system"`
	Consistent    bool           `json:"consistent"`
}

// CheckConsistency builds a ConsistencyReport from current table contents.
func (m *TagMigrator) CheckConsistency(ctx context.Context, legacy *LegacyTagStore) (*ConsistencyReport, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	legacyCounts, err := legacy.Counts(ctx)
	if err != nil {
		return nil, err
	}

	report := ConsistencyReport{
		Legacy:        *legacyCounts,
		UnifiedSystem: make(map[string]int),
	}

	rows, err := m.Pool.Query(ctx,
		`SELECT category, COUNT(*) FROM tags_unified
		 WHERE source_type = 'system' GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("counting unified system facts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			n        int
		)

		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scanning unified system count: %w", err)
		}

		report.UnifiedSystem[category] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unified system counts: %w", err)
	}

	// Legacy technologies split across two unified categories; AI tools
	// fan out into repo-level plus user-level aggregates, so >= is the
	// strongest claim the check can make there.
	techUnified := report.UnifiedSystem["language"] + report.UnifiedSystem["framework"]
	report.Consistent = techUnified >= legacyCounts.Technologies &&
		report.UnifiedSystem["ai_tool"] >= legacyCounts.AITools &&
		report.UnifiedSystem["service"] >= legacyCounts.Services

	return &report, nil
}
