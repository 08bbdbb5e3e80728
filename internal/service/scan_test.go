package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kmikeym/branch/internal/github"
	"github.com/kmikeym/branch/internal/models"
	"github.com/kmikeym/branch/internal/ws"
)

// factRecorder captures every unified fact written during a scan.
type factRecorder struct {
	mockUnifiedStore

	mu    sync.Mutex
	facts []models.Fact
}

func newFactRecorder() *factRecorder {
	r := &factRecorder{}
	r.addFact = func(_ context.Context, f *models.Fact) (bool, error) {
		r.mu.Lock()
		r.facts = append(r.facts, *f)
		r.mu.Unlock()

		return true, nil
	}

	return r
}

func (r *factRecorder) find(category models.TagCategory, tagName string) []models.Fact {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Fact

	for _, f := range r.facts {
		if f.Category == category && f.TagName == tagName {
			out = append(out, f)
		}
	}

	return out
}

func scanUser(id int64, login string) *mockScanUserStore {
	return &mockScanUserStore{
		getUser: func(_ context.Context, userID int64) (*models.User, error) {
			if userID != id {
				return nil, models.ErrUserNotFound
			}

			return &models.User{ID: id, Login: login}, nil
		},
	}
}

func strp(s string) *string { return &s }

func TestScan_WritesLanguageAndTopicFacts(t *testing.T) {
	t.Parallel()

	gh := &mockGithubScanner{
		listRepos: func(context.Context, string, string) ([]github.APIRepo, error) {
			return []github.APIRepo{
				{ID: 1, Name: "alpha", Language: strp("Go"), Topics: []string{"cli"}},
				{ID: 2, Name: "beta", Language: strp("Go")},
				{ID: 3, Name: "gamma", Language: strp("Rust"), Topics: []string{"cli", "wasm"}},
			}, nil
		},
	}

	recorder := newFactRecorder()
	tags := newTagService(&recorder.mockUnifiedStore, &mockLegacyStore{})
	users := scanUser(42, "octocat")
	repos := &mockScanRepoStore{}
	hub := &mockHub{}

	svc := NewScanService(gh, users, repos, tags, hub, 2, testLogger())

	result, err := svc.Scan(context.Background(), 42, "tok")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if result.ReposScanned != 3 {
		t.Errorf("expected 3 repos scanned, got %d", result.ReposScanned)
	}

	if len(repos.upserted) != 3 {
		t.Errorf("expected 3 repo upserts, got %d", len(repos.upserted))
	}

	goFacts := recorder.find(models.CategoryLanguage, "Go")
	if len(goFacts) != 1 {
		t.Fatalf("expected one user-level Go fact, got %d", len(goFacts))
	}

	f := goFacts[0]
	if f.EntityType != models.EntityUser || f.EntityID != 42 || f.SourceType != models.SourceSystem || f.RepoName != nil {
		t.Errorf("language fact has wrong shape: %+v", f)
	}

	if len(recorder.find(models.CategoryLanguage, "Rust")) != 1 {
		t.Error("expected a Rust language fact")
	}

	if len(recorder.find(models.CategoryFramework, "cli")) != 1 {
		t.Error("expected a cli topic fact")
	}

	if len(recorder.find(models.CategoryFramework, "wasm")) != 1 {
		t.Error("expected a wasm topic fact")
	}
}

func TestScan_ReadmeDetectionsAreRepoAndUserLevel(t *testing.T) {
	t.Parallel()

	gh := &mockGithubScanner{
		listRepos: func(context.Context, string, string) ([]github.APIRepo, error) {
			return []github.APIRepo{
				{ID: 1, Name: "alpha"},
				{ID: 2, Name: "beta"},
			}, nil
		},
		readme: func(_ context.Context, _, _, repo string) (string, error) {
			switch repo {
			case "alpha":
				return "Built with Claude. Deployed on Vercel.", nil
			default:
				return "Claude helped here too.", nil
			}
		},
	}

	recorder := newFactRecorder()
	legacy := &mockLegacyStore{}
	tags := newTagService(&recorder.mockUnifiedStore, legacy)
	hub := &mockHub{}

	svc := NewScanService(gh, scanUser(42, "octocat"), &mockScanRepoStore{}, tags, hub, 2, testLogger())

	result, err := svc.Scan(context.Background(), 42, "tok")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if result.ReadmesRead != 2 {
		t.Errorf("expected 2 readmes read, got %d", result.ReadmesRead)
	}

	claudeFacts := recorder.find(models.CategoryAITool, "Claude")
	if len(claudeFacts) != 3 {
		t.Fatalf("expected 2 repo-level + 1 user-level Claude fact, got %d", len(claudeFacts))
	}

	var repoLevel, userLevel int

	for _, f := range claudeFacts {
		if f.EntityID != 42 {
			t.Errorf("every fact must be keyed by the owner's user id, got %d", f.EntityID)
		}

		switch f.EntityType {
		case models.EntityRepo:
			if f.RepoName == nil {
				t.Error("repo-level fact missing repo_name")
			}

			repoLevel++
		case models.EntityUser:
			if f.RepoName != nil {
				t.Error("user-level aggregate must not carry repo_name")
			}

			userLevel++
		}
	}

	if repoLevel != 2 || userLevel != 1 {
		t.Errorf("expected 2 repo-level and 1 user-level, got %d/%d", repoLevel, userLevel)
	}

	vercel := recorder.find(models.CategoryService, "Vercel")
	if len(vercel) != 1 || vercel[0].EntityType != models.EntityUser {
		t.Errorf("expected one user-level Vercel fact, got %+v", vercel)
	}

	// Legacy dual-writes: repo_ai_tools per repo, user_services per service.
	if got := legacy.callCount("UpsertAITool"); got != 2 {
		t.Errorf("expected 2 legacy ai tool upserts, got %d", got)
	}

	if got := legacy.callCount("UpsertService"); got != 1 {
		t.Errorf("expected 1 legacy service upsert, got %d", got)
	}
}

func TestScan_MissingReadmeIsNotAFailure(t *testing.T) {
	t.Parallel()

	gh := &mockGithubScanner{
		listRepos: func(context.Context, string, string) ([]github.APIRepo, error) {
			return []github.APIRepo{{ID: 1, Name: "alpha"}}, nil
		},
		readme: func(context.Context, string, string, string) (string, error) {
			return "", github.ErrNotFound
		},
	}

	recorder := newFactRecorder()
	svc := NewScanService(gh, scanUser(42, "octocat"), &mockScanRepoStore{}, newTagService(&recorder.mockUnifiedStore, &mockLegacyStore{}), &mockHub{}, 1, testLogger())

	result, err := svc.Scan(context.Background(), 42, "tok")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if result.Failures != 0 {
		t.Errorf("missing readme must not count as a failure, got %d", result.Failures)
	}

	if result.ReadmesRead != 0 {
		t.Errorf("expected 0 readmes read, got %d", result.ReadmesRead)
	}
}

func TestScan_ReadmeErrorCountsAsFailure(t *testing.T) {
	t.Parallel()

	gh := &mockGithubScanner{
		listRepos: func(context.Context, string, string) ([]github.APIRepo, error) {
			return []github.APIRepo{{ID: 1, Name: "alpha"}, {ID: 2, Name: "beta"}}, nil
		},
		readme: func(_ context.Context, _, _, repo string) (string, error) {
			if repo == "alpha" {
				return "", errors.New("boom")
			}

			return "plain readme", nil
		},
	}

	recorder := newFactRecorder()
	svc := NewScanService(gh, scanUser(42, "octocat"), &mockScanRepoStore{}, newTagService(&recorder.mockUnifiedStore, &mockLegacyStore{}), &mockHub{}, 1, testLogger())

	result, err := svc.Scan(context.Background(), 42, "tok")
	if err != nil {
		t.Fatalf("one bad readme must not abort the scan: %v", err)
	}

	if result.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", result.Failures)
	}

	if result.ReadmesRead != 1 {
		t.Errorf("expected 1 readme read, got %d", result.ReadmesRead)
	}
}

func TestScan_ListReposFailureAborts(t *testing.T) {
	t.Parallel()

	gh := &mockGithubScanner{
		listRepos: func(context.Context, string, string) ([]github.APIRepo, error) {
			return nil, errors.New("api down")
		},
	}

	hub := &mockHub{}
	recorder := newFactRecorder()
	svc := NewScanService(gh, scanUser(42, "octocat"), &mockScanRepoStore{}, newTagService(&recorder.mockUnifiedStore, &mockLegacyStore{}), hub, 1, testLogger())

	if _, err := svc.Scan(context.Background(), 42, "tok"); err == nil {
		t.Fatal("expected an error when listing repos fails")
	}

	types := hub.eventTypes()
	if len(types) != 2 || types[0] != ws.EventScanStarted || types[1] != ws.EventScanFailed {
		t.Errorf("expected started+failed events, got %v", types)
	}
}

func TestScan_PublishesProgressEvents(t *testing.T) {
	t.Parallel()

	gh := &mockGithubScanner{
		listRepos: func(context.Context, string, string) ([]github.APIRepo, error) {
			return []github.APIRepo{{ID: 1, Name: "alpha"}, {ID: 2, Name: "beta"}}, nil
		},
	}

	hub := &mockHub{}
	recorder := newFactRecorder()
	svc := NewScanService(gh, scanUser(42, "octocat"), &mockScanRepoStore{}, newTagService(&recorder.mockUnifiedStore, &mockLegacyStore{}), hub, 2, testLogger())

	if _, err := svc.Scan(context.Background(), 42, "tok"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	counts := make(map[string]int)
	for _, typ := range hub.eventTypes() {
		counts[typ]++
	}

	if counts[ws.EventScanStarted] != 1 || counts[ws.EventScanFinished] != 1 {
		t.Errorf("expected one started and one finished event, got %v", counts)
	}

	if counts[ws.EventRepoScanned] != 2 {
		t.Errorf("expected 2 repo_scanned events, got %d", counts[ws.EventRepoScanned])
	}
}

func TestScan_ReplacesFollowers(t *testing.T) {
	t.Parallel()

	gh := &mockGithubScanner{
		listRepos: func(context.Context, string, string) ([]github.APIRepo, error) { return nil, nil },
		listFollowers: func(context.Context, string, string) ([]github.APIUser, error) {
			return []github.APIUser{{ID: 7, Login: "fan"}}, nil
		},
	}

	var gotFollowers []int64

	users := scanUser(42, "octocat")
	users.replaceFollowers = func(_ context.Context, _ int64, followerIDs []int64) error {
		gotFollowers = followerIDs

		return nil
	}

	recorder := newFactRecorder()
	svc := NewScanService(gh, users, &mockScanRepoStore{}, newTagService(&recorder.mockUnifiedStore, &mockLegacyStore{}), &mockHub{}, 1, testLogger())

	if _, err := svc.Scan(context.Background(), 42, "tok"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(gotFollowers) != 1 || gotFollowers[0] != 7 {
		t.Errorf("expected follower ids [7], got %v", gotFollowers)
	}
}
