package service

import (
	"context"
	"sync"

	"github.com/kmikeym/branch/internal/github"
	"github.com/kmikeym/branch/internal/models"
	"github.com/kmikeym/branch/internal/store"
	"github.com/kmikeym/branch/internal/ws"
)

// mockUnifiedStore records calls and returns configured responses.
type mockUnifiedStore struct {
	mu    sync.Mutex
	calls []string

	addFact        func(ctx context.Context, f *models.Fact) (bool, error)
	removeTag      func(ctx context.Context, req models.RemoveTagRequest, requesterUserID int64) error
	renameTag      func(ctx context.Context, oldName, newName string) (int64, int64, error)
	factsForUser   func(ctx context.Context, userID int64) (*models.UserTags, error)
	entitiesForTag func(ctx context.Context, tagName string) (*models.TaggedEntities, error)
	categoryCounts func(ctx context.Context) (int, map[string]int, int, int, error)
	topTags        func(ctx context.Context, limit int) ([]models.TagCount, error)
}

func (m *mockUnifiedStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockUnifiedStore) AddFact(ctx context.Context, f *models.Fact) (bool, error) {
	m.record("AddFact")
	return m.addFact(ctx, f)
}

func (m *mockUnifiedStore) RemoveTag(ctx context.Context, req models.RemoveTagRequest, requesterUserID int64) error {
	m.record("RemoveTag")
	return m.removeTag(ctx, req, requesterUserID)
}

func (m *mockUnifiedStore) RenameTag(ctx context.Context, oldName, newName string) (int64, int64, error) {
	m.record("RenameTag")
	return m.renameTag(ctx, oldName, newName)
}

func (m *mockUnifiedStore) FactsForUser(ctx context.Context, userID int64) (*models.UserTags, error) {
	m.record("FactsForUser")
	return m.factsForUser(ctx, userID)
}

func (m *mockUnifiedStore) EntitiesForTag(ctx context.Context, tagName string) (*models.TaggedEntities, error) {
	m.record("EntitiesForTag")
	return m.entitiesForTag(ctx, tagName)
}

func (m *mockUnifiedStore) CategoryCounts(ctx context.Context) (int, map[string]int, int, int, error) {
	m.record("CategoryCounts")
	return m.categoryCounts(ctx)
}

func (m *mockUnifiedStore) TopTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	m.record("TopTags")
	return m.topTags(ctx, limit)
}

// mockLegacyStore records calls and returns configured responses. Unset
// functions succeed silently, since most tests only care about one table.
type mockLegacyStore struct {
	mu    sync.Mutex
	calls []string

	upsertTechnology func(ctx context.Context, userID int64, technology string, category models.TagCategory, count int) error
	upsertAITool     func(ctx context.Context, userID int64, repoName, aiTool string, mentionCount int) error
	upsertService    func(ctx context.Context, userID int64, service string, count int) error
	insertUserTag    func(ctx context.Context, tagName string, entityType models.EntityType, entityID int64, repoName *string, taggerUserID int64) error
	deleteUserTag    func(ctx context.Context, tagName string, entityType models.EntityType, entityID int64, repoName *string, taggerUserID int64) error
}

func (m *mockLegacyStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockLegacyStore) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0

	for _, c := range m.calls {
		if c == name {
			n++
		}
	}

	return n
}

func (m *mockLegacyStore) UpsertTechnology(ctx context.Context, userID int64, technology string, category models.TagCategory, count int) error {
	m.record("UpsertTechnology")

	if m.upsertTechnology == nil {
		return nil
	}

	return m.upsertTechnology(ctx, userID, technology, category, count)
}

func (m *mockLegacyStore) UpsertAITool(ctx context.Context, userID int64, repoName, aiTool string, mentionCount int) error {
	m.record("UpsertAITool")

	if m.upsertAITool == nil {
		return nil
	}

	return m.upsertAITool(ctx, userID, repoName, aiTool, mentionCount)
}

func (m *mockLegacyStore) UpsertService(ctx context.Context, userID int64, service string, count int) error {
	m.record("UpsertService")

	if m.upsertService == nil {
		return nil
	}

	return m.upsertService(ctx, userID, service, count)
}

func (m *mockLegacyStore) InsertUserTag(ctx context.Context, tagName string, entityType models.EntityType, entityID int64, repoName *string, taggerUserID int64) error {
	m.record("InsertUserTag")

	if m.insertUserTag == nil {
		return nil
	}

	return m.insertUserTag(ctx, tagName, entityType, entityID, repoName, taggerUserID)
}

func (m *mockLegacyStore) DeleteUserTag(ctx context.Context, tagName string, entityType models.EntityType, entityID int64, repoName *string, taggerUserID int64) error {
	m.record("DeleteUserTag")

	if m.deleteUserTag == nil {
		return nil
	}

	return m.deleteUserTag(ctx, tagName, entityType, entityID, repoName, taggerUserID)
}

// mockUserResolver backs the stats and login-resolution paths.
type mockUserResolver struct {
	getUserByLogin func(ctx context.Context, login string) (*models.User, error)
	countUsers     func(ctx context.Context) (int, int, error)
}

func (m *mockUserResolver) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return m.getUserByLogin(ctx, login)
}

func (m *mockUserResolver) CountUsers(ctx context.Context) (int, int, error) {
	if m.countUsers == nil {
		return 0, 0, nil
	}

	return m.countUsers(ctx)
}

type mockRepoCounter struct {
	countRepos func(ctx context.Context) (int, error)
}

func (m *mockRepoCounter) CountRepos(ctx context.Context) (int, error) {
	if m.countRepos == nil {
		return 0, nil
	}

	return m.countRepos(ctx)
}

type mockMigrator struct {
	hasMigrated func(ctx context.Context) (bool, error)
	migrate     func(ctx context.Context) (*store.MigrationResult, error)
}

func (m *mockMigrator) HasMigrated(ctx context.Context) (bool, error) {
	if m.hasMigrated == nil {
		return false, nil
	}

	return m.hasMigrated(ctx)
}

func (m *mockMigrator) Migrate(ctx context.Context) (*store.MigrationResult, error) {
	return m.migrate(ctx)
}

// mockGithubScanner serves canned repos and READMEs for scan tests.
type mockGithubScanner struct {
	listRepos     func(ctx context.Context, token, login string) ([]github.APIRepo, error)
	readme        func(ctx context.Context, token, login, repo string) (string, error)
	listFollowers func(ctx context.Context, token, login string) ([]github.APIUser, error)
}

func (m *mockGithubScanner) ListRepos(ctx context.Context, token, login string) ([]github.APIRepo, error) {
	return m.listRepos(ctx, token, login)
}

func (m *mockGithubScanner) Readme(ctx context.Context, token, login, repo string) (string, error) {
	if m.readme == nil {
		return "", github.ErrNotFound
	}

	return m.readme(ctx, token, login, repo)
}

func (m *mockGithubScanner) ListFollowers(ctx context.Context, token, login string) ([]github.APIUser, error) {
	if m.listFollowers == nil {
		return nil, nil
	}

	return m.listFollowers(ctx, token, login)
}

type mockScanUserStore struct {
	mu    sync.Mutex
	calls []string

	getUser          func(ctx context.Context, userID int64) (*models.User, error)
	markScanned      func(ctx context.Context, userID int64) error
	replaceFollowers func(ctx context.Context, userID int64, followerIDs []int64) error
}

func (m *mockScanUserStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockScanUserStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	m.record("GetUser")
	return m.getUser(ctx, userID)
}

func (m *mockScanUserStore) MarkScanned(ctx context.Context, userID int64) error {
	m.record("MarkScanned")

	if m.markScanned == nil {
		return nil
	}

	return m.markScanned(ctx, userID)
}

func (m *mockScanUserStore) ReplaceFollowers(ctx context.Context, userID int64, followerIDs []int64) error {
	m.record("ReplaceFollowers")

	if m.replaceFollowers == nil {
		return nil
	}

	return m.replaceFollowers(ctx, userID, followerIDs)
}

type mockScanRepoStore struct {
	mu       sync.Mutex
	upserted []models.Repo

	upsertRepo func(ctx context.Context, r *models.Repo) (*models.Repo, error)
}

func (m *mockScanRepoStore) UpsertRepo(ctx context.Context, r *models.Repo) (*models.Repo, error) {
	m.mu.Lock()
	m.upserted = append(m.upserted, *r)
	m.mu.Unlock()

	if m.upsertRepo == nil {
		return r, nil
	}

	return m.upsertRepo(ctx, r)
}

// mockHub collects published scan events.
type mockHub struct {
	mu     sync.Mutex
	events []ws.ScanEvent
}

func (m *mockHub) Publish(ev ws.ScanEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockHub) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		types = append(types, ev.Type)
	}

	return types
}
