// Command branch-server runs the branch dashboard: GitHub OAuth login,
// repository scanning, and the unified tag API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/api"
	"github.com/kmikeym/branch/internal/auth"
	"github.com/kmikeym/branch/internal/config"
	"github.com/kmikeym/branch/internal/db"
	"github.com/kmikeym/branch/internal/db/migrations"
	"github.com/kmikeym/branch/internal/dbpool"
	"github.com/kmikeym/branch/internal/github"
	"github.com/kmikeym/branch/internal/service"
	"github.com/kmikeym/branch/internal/store"
	"github.com/kmikeym/branch/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")

		level = logrus.InfoLevel
	}

	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		return err
	}

	// Stores.
	base := store.Base{Pool: pool, Log: log}
	users := store.NewUserStore(base)
	repos := store.NewRepoStore(base)
	sessions := store.NewSessionStore(base)
	legacyTags := store.NewLegacyTagStore(base)
	unifiedTags := store.NewUnifiedTagStore(base)
	migrator := store.NewTagMigrator(base)

	// One-shot legacy tag migration. The guard makes restarts no-ops; a
	// failure here is an infrastructure problem worth failing startup for.
	result, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}

	if result.Ran {
		log.WithFields(logrus.Fields{
			"migrated": result.Migrated,
			"skipped":  result.Skipped,
		}).Info("legacy tags migrated to unified table")
	} else {
		log.Debug("legacy tag migration already done, skipping")
	}

	// GitHub client and services.
	gh := github.NewClient(cfg.GithubAPIURL, cfg.GithubOAuthURL, cfg.GithubClientID, cfg.GithubClientSecret.Value(), log)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	tagSvc := service.NewTagService(unifiedTags, legacyTags, users, repos, migrator, log)
	scanSvc := service.NewScanService(gh, users, repos, tagSvc, hub, cfg.ScanConcurrency, log)

	authHandler := auth.NewHandler(gh, users, sessions, cfg.SessionKey.Value(), cfg.OAuthRedirectURL, log)

	handler := api.NewRouter(ctx, &api.RouterDeps{
		Log:         log,
		Pool:        pool,
		Hub:         hub,
		Auth:        authHandler,
		Tags:        tagSvc,
		Scans:       scanSvc,
		Users:       users,
		IsAdmin:     cfg.IsAdmin,
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
		Version:     version(),
	})

	// Expired sessions pile up without a janitor.
	go purgeSessions(ctx, sessions, log)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.WithField("addr", cfg.Addr()).Info("server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// purgeSessions deletes expired login sessions once an hour.
func purgeSessions(ctx context.Context, sessions *store.SessionStore, log *logrus.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				log.WithError(err).Warn("purging expired sessions failed")

				continue
			}

			if n > 0 {
				log.WithField("count", n).Debug("purged expired sessions")
			}
		}
	}
}

// version reports the build version, overridable at link time.
var buildVersion = "dev"

func version() string {
	if v := os.Getenv("BRANCH_VERSION"); v != "" {
		return v
	}

	return buildVersion
}
