package api

import (
	"context"

	"github.com/kmikeym/branch/internal/models"
	"github.com/kmikeym/branch/internal/store"
)

// TagRepository defines tag operations used by TagHandler and AdminHandler.
type TagRepository interface {
	AddTag(ctx context.Context, req models.AddTagRequest, taggerUserID int64) (*models.Fact, error)
	RemoveTag(ctx context.Context, req models.RemoveTagRequest, requesterUserID int64) error
	RenameTag(ctx context.Context, req models.RenameTagRequest) (renamed, merged int64, err error)
	TagsForUser(ctx context.Context, login string) (*models.UserTags, error)
	EntitiesForTag(ctx context.Context, tagName string) (*models.TaggedEntities, error)
	Stats(ctx context.Context) (*models.TagStats, error)
	RunMigration(ctx context.Context) (*store.MigrationResult, error)
}

// ScanRepository defines the scan operation used by ScanHandler.
type ScanRepository interface {
	Scan(ctx context.Context, userID int64, token string) (*models.ScanResult, error)
}

// UserRepository defines user lookups used by the me endpoint.
type UserRepository interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}
