// Package service implements the application logic between the HTTP
// handlers and the stores: dual-writing tag facts, running repository
// scans and assembling stats.
package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/metrics"
	"github.com/kmikeym/branch/internal/models"
	"github.com/kmikeym/branch/internal/store"
)

// UnifiedTagStore is the data-access interface TagService needs on the
// unified table.
type UnifiedTagStore interface {
	AddFact(ctx context.Context, f *models.Fact) (bool, error)
	RemoveTag(ctx context.Context, req models.RemoveTagRequest, requesterUserID int64) error
	RenameTag(ctx context.Context, oldName, newName string) (renamed, merged int64, err error)
	FactsForUser(ctx context.Context, userID int64) (*models.UserTags, error)
	EntitiesForTag(ctx context.Context, tagName string) (*models.TaggedEntities, error)
	CategoryCounts(ctx context.Context) (total int, byCategory map[string]int, users, repos int, err error)
	TopTags(ctx context.Context, limit int) ([]models.TagCount, error)
}

// LegacyTagStore is the data-access interface for the per-category tables
// that remain populated during the dual-write phase.
type LegacyTagStore interface {
	UpsertTechnology(ctx context.Context, userID int64, technology string, category models.TagCategory, count int) error
	UpsertAITool(ctx context.Context, userID int64, repoName, aiTool string, mentionCount int) error
	UpsertService(ctx context.Context, userID int64, service string, count int) error
	InsertUserTag(ctx context.Context, tagName string, entityType models.EntityType, entityID int64, repoName *string, taggerUserID int64) error
	DeleteUserTag(ctx context.Context, tagName string, entityType models.EntityType, entityID int64, repoName *string, taggerUserID int64) error
}

// UserResolver resolves logins and counts users for the stats endpoint.
type UserResolver interface {
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	CountUsers(ctx context.Context) (total, scanned int, err error)
}

// RepoCounter counts tracked repositories for the stats endpoint.
type RepoCounter interface {
	CountRepos(ctx context.Context) (int, error)
}

// Migrator runs and reports on the legacy-to-unified tag migration.
type Migrator interface {
	HasMigrated(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) (*store.MigrationResult, error)
}

// TagService coordinates tag reads and the dual-write of tag mutations.
// Writes go to the legacy tables first and then to tags_unified; a failure
// in one store never rolls back the other, it is logged and counted.
type TagService struct {
	unified UnifiedTagStore
	legacy  LegacyTagStore
	users   UserResolver
	repos   RepoCounter
	migr    Migrator
	log     *logrus.Logger
}

// NewTagService creates a TagService.
func NewTagService(unified UnifiedTagStore, legacy LegacyTagStore, users UserResolver, repos RepoCounter, migr Migrator, log *logrus.Logger) *TagService {
	return &TagService{unified: unified, legacy: legacy, users: users, repos: repos, migr: migr, log: log}
}

// AddTag records a user-sourced tag on a user or repo. Adding a tag that
// already exists is a no-op, not an error.
func (s *TagService) AddTag(ctx context.Context, req models.AddTagRequest, taggerUserID int64) (*models.Fact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Legacy first: user_tags is still read by anything not yet moved to
	// the unified table.
	if err := s.legacy.InsertUserTag(ctx, req.TagName, req.EntityType, req.EntityID, req.RepoName, taggerUserID); err != nil {
		metrics.TagWritesTotal.WithLabelValues("legacy", "error").Inc()
		s.log.WithError(err).WithFields(logrus.Fields{
			"tag_name":  req.TagName,
			"entity_id": req.EntityID,
		}).Error("legacy user_tag write failed, unified write continues")
	} else {
		metrics.TagWritesTotal.WithLabelValues("legacy", "ok").Inc()
	}

	fact := &models.Fact{
		TagName:      req.TagName,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		SourceType:   models.SourceUser,
		SourceUserID: &taggerUserID,
		Category:     models.CategoryUserTag,
		RepoName:     req.RepoName,
		Confidence:   1.0,
	}

	inserted, err := s.unified.AddFact(ctx, fact)
	if err != nil {
		metrics.TagWritesTotal.WithLabelValues("unified", "error").Inc()

		return nil, err
	}

	metrics.TagWritesTotal.WithLabelValues("unified", "ok").Inc()

	if !inserted {
		s.log.WithFields(logrus.Fields{
			"tag_name":  req.TagName,
			"entity_id": req.EntityID,
		}).Debug("tag already present, add is a no-op")
	}

	return fact, nil
}

// RemoveTag deletes a user-sourced tag. Only the user who added the tag may
// remove it; system facts are never removable. The legacy row is deleted
// best-effort after the unified delete succeeds.
func (s *TagService) RemoveTag(ctx context.Context, req models.RemoveTagRequest, requesterUserID int64) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if err := s.unified.RemoveTag(ctx, req, requesterUserID); err != nil {
		return err
	}

	if err := s.legacy.DeleteUserTag(ctx, req.TagName, req.EntityType, req.EntityID, req.RepoName, requesterUserID); err != nil {
		metrics.TagWritesTotal.WithLabelValues("legacy", "error").Inc()
		s.log.WithError(err).WithFields(logrus.Fields{
			"tag_name":  req.TagName,
			"entity_id": req.EntityID,
		}).Error("legacy user_tag delete failed after unified delete")
	}

	return nil
}

// RenameTag renames every fact carrying oldName, merging into rows that
// already carry newName on the same entity.
func (s *TagService) RenameTag(ctx context.Context, req models.RenameTagRequest) (renamed, merged int64, err error) {
	if err := req.Validate(); err != nil {
		return 0, 0, err
	}

	return s.unified.RenameTag(ctx, req.OldName, req.NewName)
}

// TagsForUser returns a user's facts partitioned by category, resolving the
// user by login.
func (s *TagService) TagsForUser(ctx context.Context, login string) (*models.UserTags, error) {
	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	return s.unified.FactsForUser(ctx, user.ID)
}

// EntitiesForTag returns every user and repo carrying a tag, with provenance.
func (s *TagService) EntitiesForTag(ctx context.Context, tagName string) (*models.TaggedEntities, error) {
	if tagName == "" {
		return nil, models.ErrMissingTagName
	}

	return s.unified.EntitiesForTag(ctx, tagName)
}

// Stats assembles the dashboard stats payload and refreshes the fact gauge.
func (s *TagService) Stats(ctx context.Context) (*models.TagStats, error) {
	total, byCategory, taggedUsers, taggedRepos, err := s.unified.CategoryCounts(ctx)
	if err != nil {
		return nil, err
	}

	topTags, err := s.unified.TopTags(ctx, 10)
	if err != nil {
		return nil, err
	}

	_, scanned, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}

	trackedRepos, err := s.repos.CountRepos(ctx)
	if err != nil {
		return nil, err
	}

	migrated, err := s.migr.HasMigrated(ctx)
	if err != nil {
		return nil, err
	}

	metrics.FactCount.Set(float64(total))

	return &models.TagStats{
		TotalFacts:     total,
		ByCategory:     byCategory,
		TaggedUsers:    taggedUsers,
		TaggedRepos:    taggedRepos,
		TopTags:        topTags,
		ScannedUsers:   scanned,
		TrackedRepos:   trackedRepos,
		LegacyMigrated: migrated,
	}, nil
}

// RunMigration runs the legacy migration on demand. The guard inside the
// migrator makes a repeat call a no-op.
func (s *TagService) RunMigration(ctx context.Context) (*store.MigrationResult, error) {
	result, err := s.migr.Migrate(ctx)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"ran":      result.Ran,
		"migrated": result.Migrated,
		"skipped":  result.Skipped,
	}).Info("tag migration requested")

	return result, nil
}

// writeSystemFact dual-writes one scanner-produced fact: the legacy
// per-category upsert first, then the unified insert. count feeds the legacy
// usage counters. Returns whether the unified row was new.
func (s *TagService) writeSystemFact(ctx context.Context, f *models.Fact, count int) (bool, error) {
	var legacyErr error

	switch f.Category {
	case models.CategoryLanguage, models.CategoryFramework:
		legacyErr = s.legacy.UpsertTechnology(ctx, f.EntityID, f.TagName, f.Category, count)
	case models.CategoryAITool:
		// Only repo-level detections exist in the legacy table; the
		// user-level aggregate is new with the unified table.
		if f.RepoName != nil {
			legacyErr = s.legacy.UpsertAITool(ctx, f.EntityID, *f.RepoName, f.TagName, count)
		}
	case models.CategoryService:
		legacyErr = s.legacy.UpsertService(ctx, f.EntityID, f.TagName, count)
	case models.CategoryUserTag:
		// Scanner never produces user tags.
	}

	if legacyErr != nil {
		metrics.TagWritesTotal.WithLabelValues("legacy", "error").Inc()
		s.log.WithError(legacyErr).WithFields(logrus.Fields{
			"tag_name": f.TagName,
			"category": f.Category,
			"user_id":  f.EntityID,
		}).Error("legacy write failed, unified write continues")
	} else {
		metrics.TagWritesTotal.WithLabelValues("legacy", "ok").Inc()
	}

	inserted, err := s.unified.AddFact(ctx, f)
	if err != nil {
		metrics.TagWritesTotal.WithLabelValues("unified", "error").Inc()

		return false, err
	}

	metrics.TagWritesTotal.WithLabelValues("unified", "ok").Inc()

	return inserted, nil
}
