package api_test

import (
	"context"

	"github.com/kmikeym/branch/internal/models"
	"github.com/kmikeym/branch/internal/store"
)

// mockTagRepo returns configured responses for TagRepository methods.
type mockTagRepo struct {
	addTagFn         func(ctx context.Context, req models.AddTagRequest, taggerUserID int64) (*models.Fact, error)
	removeTagFn      func(ctx context.Context, req models.RemoveTagRequest, requesterUserID int64) error
	renameTagFn      func(ctx context.Context, req models.RenameTagRequest) (int64, int64, error)
	tagsForUserFn    func(ctx context.Context, login string) (*models.UserTags, error)
	entitiesForTagFn func(ctx context.Context, tagName string) (*models.TaggedEntities, error)
	statsFn          func(ctx context.Context) (*models.TagStats, error)
	runMigrationFn   func(ctx context.Context) (*store.MigrationResult, error)
}

func (m *mockTagRepo) AddTag(ctx context.Context, req models.AddTagRequest, taggerUserID int64) (*models.Fact, error) {
	return m.addTagFn(ctx, req, taggerUserID)
}

func (m *mockTagRepo) RemoveTag(ctx context.Context, req models.RemoveTagRequest, requesterUserID int64) error {
	return m.removeTagFn(ctx, req, requesterUserID)
}

func (m *mockTagRepo) RenameTag(ctx context.Context, req models.RenameTagRequest) (int64, int64, error) {
	return m.renameTagFn(ctx, req)
}

func (m *mockTagRepo) TagsForUser(ctx context.Context, login string) (*models.UserTags, error) {
	return m.tagsForUserFn(ctx, login)
}

func (m *mockTagRepo) EntitiesForTag(ctx context.Context, tagName string) (*models.TaggedEntities, error) {
	return m.entitiesForTagFn(ctx, tagName)
}

func (m *mockTagRepo) Stats(ctx context.Context) (*models.TagStats, error) {
	return m.statsFn(ctx)
}

func (m *mockTagRepo) RunMigration(ctx context.Context) (*store.MigrationResult, error) {
	return m.runMigrationFn(ctx)
}

// mockScanRepo returns a configured scan result.
type mockScanRepo struct {
	scanFn func(ctx context.Context, userID int64, token string) (*models.ScanResult, error)
}

func (m *mockScanRepo) Scan(ctx context.Context, userID int64, token string) (*models.ScanResult, error) {
	return m.scanFn(ctx, userID, token)
}

// mockUserRepo returns a configured user.
type mockUserRepo struct {
	getUserFn func(ctx context.Context, userID int64) (*models.User, error)
}

func (m *mockUserRepo) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return m.getUserFn(ctx, userID)
}
