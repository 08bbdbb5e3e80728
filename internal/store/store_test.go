package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/db"
	"github.com/kmikeym/branch/internal/db/migrations"
	"github.com/kmikeym/branch/internal/dbpool"
	"github.com/kmikeym/branch/internal/models"
	"github.com/kmikeym/branch/internal/store"
)

// testEnv holds shared test infrastructure (single pool across all tests).
type testEnv struct {
	pool *dbpool.Pool
	log  *logrus.Logger
	base store.Base
}

var sharedEnv *testEnv

func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if sharedEnv != nil {
		return sharedEnv
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := dbpool.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("connecting to test DB: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	sharedEnv = &testEnv{
		pool: pool,
		log:  log,
		base: store.Base{Pool: pool, Log: log},
	}

	return sharedEnv
}

// resetTags truncates every tag-related table so each test starts clean.
func resetTags(t *testing.T, env *testEnv) {
	t.Helper()

	_, err := env.pool.Exec(context.Background(),
		"TRUNCATE tags_unified, user_tags, user_services, repo_ai_tools, user_technologies")
	if err != nil {
		t.Fatalf("truncating tag tables: %v", err)
	}
}

// seedUser inserts a minimal user row (FK target for tag tables).
func seedUser(t *testing.T, env *testEnv, id int64, login string) {
	t.Helper()

	users := store.NewUserStore(env.base)

	_, err := users.UpsertUser(context.Background(), &models.User{ID: id, Login: login})
	if err != nil {
		t.Fatalf("seeding user %d: %v", id, err)
	}
}

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

// countFacts returns the total tags_unified row count.
func countFacts(t *testing.T, env *testEnv) int {
	t.Helper()

	var n int
	if err := env.pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM tags_unified").Scan(&n); err != nil {
		t.Fatalf("counting facts: %v", err)
	}

	return n
}
