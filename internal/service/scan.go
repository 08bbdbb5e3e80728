package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kmikeym/branch/internal/github"
	"github.com/kmikeym/branch/internal/metrics"
	"github.com/kmikeym/branch/internal/models"
	"github.com/kmikeym/branch/internal/scanner"
	"github.com/kmikeym/branch/internal/ws"
)

// GithubScanner is the part of the GitHub API client a scan needs.
type GithubScanner interface {
	ListRepos(ctx context.Context, token, login string) ([]github.APIRepo, error)
	Readme(ctx context.Context, token, login, repo string) (string, error)
	ListFollowers(ctx context.Context, token, login string) ([]github.APIUser, error)
}

// ScanUserStore is the user-side storage a scan needs.
type ScanUserStore interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	MarkScanned(ctx context.Context, userID int64) error
	ReplaceFollowers(ctx context.Context, userID int64, followerIDs []int64) error
}

// ScanRepoStore is the repo-side storage a scan needs.
type ScanRepoStore interface {
	UpsertRepo(ctx context.Context, r *models.Repo) (*models.Repo, error)
}

// Publisher pushes scan-progress events to connected dashboard clients.
type Publisher interface {
	Publish(ev ws.ScanEvent)
}

// ScanService walks a user's repositories, records them, and derives tag
// facts from repo metadata and README content. README fetches run
// concurrently, bounded by the configured concurrency.
type ScanService struct {
	github      GithubScanner
	users       ScanUserStore
	repos       ScanRepoStore
	tags        *TagService
	hub         Publisher
	concurrency int
	log         *logrus.Logger
}

// NewScanService creates a ScanService.
func NewScanService(gh GithubScanner, users ScanUserStore, repos ScanRepoStore, tags *TagService, hub Publisher, concurrency int, log *logrus.Logger) *ScanService {
	if concurrency < 1 {
		concurrency = 1
	}

	return &ScanService{
		github:      gh,
		users:       users,
		repos:       repos,
		tags:        tags,
		hub:         hub,
		concurrency: concurrency,
		log:         log,
	}
}

// scanAggregates collects cross-repo detections while README fetches run in
// parallel.
type scanAggregates struct {
	mu       sync.Mutex
	aiTools  map[string]int // tool -> total mentions across repos
	services map[string]int // service -> total mentions across repos
}

// Scan runs a full repository scan for the user. Failures on individual
// repos are counted, not fatal; only a failure to list repos aborts the scan.
func (s *ScanService) Scan(ctx context.Context, userID int64, token string) (*models.ScanResult, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.hub.Publish(ws.ScanEvent{Type: ws.EventScanStarted, UserID: userID, Time: time.Now()})

	apiRepos, err := s.github.ListRepos(ctx, token, user.Login)
	if err != nil {
		metrics.ScansTotal.WithLabelValues("error").Inc()
		s.hub.Publish(ws.ScanEvent{Type: ws.EventScanFailed, UserID: userID, Message: "listing repositories failed", Time: time.Now()})

		return nil, err
	}

	result := &models.ScanResult{UserID: userID, ReposScanned: len(apiRepos)}

	// Primary languages and topics aggregate across all repos into
	// user-level facts, counted by how many repos carry them.
	langCounts := make(map[string]int)
	topicCounts := make(map[string]int)

	agg := &scanAggregates{
		aiTools:  make(map[string]int),
		services: make(map[string]int),
	}

	var (
		mu          sync.Mutex
		readmesRead int
		failures    int
		factsRepo   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, apiRepo := range apiRepos {
		if _, err := s.repos.UpsertRepo(ctx, &models.Repo{
			OwnerUserID: userID,
			Name:        apiRepo.Name,
			GithubID:    &apiRepo.ID,
			Description: apiRepo.Description,
			Language:    apiRepo.Language,
			Stars:       apiRepo.Stars,
			Fork:        apiRepo.Fork,
			Topics:      apiRepo.Topics,
		}); err != nil {
			s.log.WithError(err).WithField("repo", apiRepo.Name).Error("storing repo failed")

			mu.Lock()
			failures++
			mu.Unlock()

			continue
		}

		if apiRepo.Language != nil && *apiRepo.Language != "" {
			langCounts[*apiRepo.Language]++
		}

		for _, topic := range apiRepo.Topics {
			topicCounts[topic]++
		}

		repoName := apiRepo.Name

		g.Go(func() error {
			facts, read, err := s.scanReadme(gctx, user, token, repoName, agg)

			mu.Lock()
			if err != nil {
				failures++
			}

			if read {
				readmesRead++
			}

			factsRepo += facts
			mu.Unlock()

			s.hub.Publish(ws.ScanEvent{
				Type:     ws.EventRepoScanned,
				UserID:   userID,
				RepoName: repoName,
				Facts:    facts,
				Time:     time.Now(),
			})

			// Per-repo errors are recorded, never propagated: one bad
			// README must not cancel the remaining fetches.
			return nil
		})
	}

	_ = g.Wait()

	result.ReadmesRead = readmesRead
	result.Failures = failures
	result.FactsWritten = factsRepo

	result.FactsWritten += s.writeUserFacts(ctx, userID, models.CategoryLanguage, langCounts, &result.Failures)
	result.FactsWritten += s.writeUserFacts(ctx, userID, models.CategoryFramework, topicCounts, &result.Failures)
	result.FactsWritten += s.writeUserFacts(ctx, userID, models.CategoryAITool, agg.aiTools, &result.Failures)
	result.FactsWritten += s.writeUserFacts(ctx, userID, models.CategoryService, agg.services, &result.Failures)

	s.updateFollowers(ctx, user, token)

	if err := s.users.MarkScanned(ctx, userID); err != nil {
		s.log.WithError(err).Error("stamping scan time failed")
	}

	metrics.ScansTotal.WithLabelValues("ok").Inc()
	s.hub.Publish(ws.ScanEvent{
		Type:    ws.EventScanFinished,
		UserID:  userID,
		Facts:   result.FactsWritten,
		Time:    time.Now(),
		Message: "scan complete",
	})

	s.log.WithFields(logrus.Fields{
		"user_id":       userID,
		"repos_scanned": result.ReposScanned,
		"readmes_read":  result.ReadmesRead,
		"facts_written": result.FactsWritten,
		"failures":      result.Failures,
	}).Info("scan finished")

	return result, nil
}

// scanReadme fetches one README and writes the repo-level AI tool facts
// found in it. Cross-repo aggregates are collected for the final user-level
// pass. A missing README is not an error.
func (s *ScanService) scanReadme(ctx context.Context, user *models.User, token, repoName string, agg *scanAggregates) (facts int, read bool, err error) {
	text, err := s.github.Readme(ctx, token, user.Login, repoName)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return 0, false, nil
		}

		s.log.WithError(err).WithField("repo", repoName).Warn("fetching readme failed")

		return 0, false, err
	}

	for _, d := range scanner.AITools(text) {
		name := repoName
		fact := &models.Fact{
			TagName:    d.Name,
			EntityType: models.EntityRepo,
			EntityID:   user.ID,
			SourceType: models.SourceSystem,
			Category:   models.CategoryAITool,
			RepoName:   &name,
			Confidence: 1.0,
		}

		if _, err := s.tags.writeSystemFact(ctx, fact, d.Mentions); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"repo": repoName, "tool": d.Name}).Error("writing ai tool fact failed")
		} else {
			facts++
		}

		agg.mu.Lock()
		agg.aiTools[d.Name] += d.Mentions
		agg.mu.Unlock()
	}

	for _, d := range scanner.Services(text) {
		agg.mu.Lock()
		agg.services[d.Name] += d.Mentions
		agg.mu.Unlock()
	}

	return facts, true, nil
}

// writeUserFacts writes one user-level system fact per aggregated tag name.
func (s *ScanService) writeUserFacts(ctx context.Context, userID int64, category models.TagCategory, counts map[string]int, failures *int) int {
	written := 0

	for name, count := range counts {
		fact := &models.Fact{
			TagName:    name,
			EntityType: models.EntityUser,
			EntityID:   userID,
			SourceType: models.SourceSystem,
			Category:   category,
			Confidence: 1.0,
		}

		if _, err := s.tags.writeSystemFact(ctx, fact, count); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"tag": name, "category": category}).Error("writing user fact failed")

			*failures++

			continue
		}

		written++
	}

	return written
}

// updateFollowers refreshes the follow edges best-effort; follower data is
// decorative and never fails a scan.
func (s *ScanService) updateFollowers(ctx context.Context, user *models.User, token string) {
	followers, err := s.github.ListFollowers(ctx, token, user.Login)
	if err != nil {
		s.log.WithError(err).WithField("login", user.Login).Warn("listing followers failed")

		return
	}

	ids := make([]int64, 0, len(followers))
	for _, f := range followers {
		ids = append(ids, f.ID)
	}

	if err := s.users.ReplaceFollowers(ctx, user.ID, ids); err != nil {
		s.log.WithError(err).Warn("replacing followers failed")
	}
}
