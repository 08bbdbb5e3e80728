// Package models defines data types for the branch dashboard.
package models

import (
	"time"
)

// EntityType identifies whether a fact describes a user or a repository.
type EntityType string

// Entity types.
const (
	EntityUser EntityType = "user"
	EntityRepo EntityType = "repo"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityUser || t == EntityRepo
}

// SourceType identifies whether a fact was added by a human or auto-detected.
type SourceType string

// Source types.
const (
	SourceUser   SourceType = "user"
	SourceSystem SourceType = "system"
)

// TagCategory classifies a fact.
type TagCategory string

// Tag categories.
const (
	CategoryLanguage  TagCategory = "language"
	CategoryFramework TagCategory = "framework"
	CategoryAITool    TagCategory = "ai_tool"
	CategoryService   TagCategory = "service"
	CategoryUserTag   TagCategory = "user_tag"
)

// Fact is one row in tags_unified: an assertion that a tag applies to an
// entity. EntityID is always the owning user's GitHub ID — for repo-level
// facts the repo is identified by (EntityID, RepoName), never by a
// repo-internal ID.
type Fact struct {
	ID           int64       `json:"id"`
	TagName      string      `json:"tag_name"`
	EntityType   EntityType  `json:"entity_type"`
	EntityID     int64       `json:"entity_id"`
	SourceType   SourceType  `json:"source_type"`
	SourceUserID *int64      `json:"source_user_id,omitempty"`
	Category     TagCategory `json:"category"`
	RepoName     *string     `json:"repo_name,omitempty"`
	Confidence   float64     `json:"confidence"`
	CreatedAt    time.Time   `json:"created_at"`
}

// UserTags is the per-user fact listing, partitioned by category into the
// arrays the dashboard has always shipped.
type UserTags struct {
	TechStack []Fact `json:"tech_stack"`
	AITools   []Fact `json:"ai_tools"`
	Services  []Fact `json:"services"`
	Tags      []Fact `json:"tags"`
}

// TaggedUser is a user carrying a given tag, with provenance.
type TaggedUser struct {
	UserID int64  `json:"user_id"`
	Login  string `json:"login,omitempty"`
	Source string `json:"source"`
}

// TaggedRepo is an (owner, repo_name) pair carrying a given tag, with provenance.
type TaggedRepo struct {
	OwnerUserID int64  `json:"owner_user_id"`
	OwnerLogin  string `json:"owner_login,omitempty"`
	RepoName    string `json:"repo_name"`
	Source      string `json:"source"`
}

// TaggedEntities is the answer to "which entities carry tag X".
type TaggedEntities struct {
	TagName string       `json:"tag_name"`
	Users   []TaggedUser `json:"users"`
	Repos   []TaggedRepo `json:"repos"`
}

// TagStats is the aggregate-count payload for the stats endpoint.
type TagStats struct {
	TotalFacts     int            `json:"total_facts"`
	ByCategory     map[string]int `json:"by_category"`
	TaggedUsers    int            `json:"tagged_users"`
	TaggedRepos    int            `json:"tagged_repos"`
	TopTags        []TagCount     `json:"top_tags"`
	ScannedUsers   int            `json:"scanned_users"`
	TrackedRepos   int            `json:"tracked_repos"`
	LegacyMigrated bool           `json:"legacy_migrated"`
}

// TagCount pairs a tag name with its occurrence count.
type TagCount struct {
	TagName string `json:"tag_name"`
	Count   int    `json:"count"`
}

const maxTagNameLen = 100

// AddTagRequest is the payload for adding a user-sourced tag. RepoName
// selects repo-level targeting; leaving it empty tags the user itself.
type AddTagRequest struct {
	TagName    string     `json:"tag_name"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	RepoName   *string    `json:"repo_name,omitempty"`
}

// Validate checks AddTagRequest fields and the entity/repo_name pairing.
func (r *AddTagRequest) Validate() error {
	if r.TagName == "" {
		return ErrMissingTagName
	}

	if len(r.TagName) > maxTagNameLen {
		return &FieldTooLongError{Field: "tag_name", MaxLen: maxTagNameLen}
	}

	if r.EntityType == "" {
		return ErrMissingEntityType
	}

	if !r.EntityType.Valid() {
		return ErrInvalidEntityType
	}

	if r.EntityID <= 0 {
		return ErrMissingEntityID
	}

	return validateRepoName(r.EntityType, r.RepoName)
}

// RemoveTagRequest is the payload for removing a user-sourced tag.
type RemoveTagRequest struct {
	TagName    string     `json:"tag_name"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	RepoName   *string    `json:"repo_name,omitempty"`
}

// Validate checks RemoveTagRequest fields.
func (r *RemoveTagRequest) Validate() error {
	a := AddTagRequest{TagName: r.TagName, EntityType: r.EntityType, EntityID: r.EntityID, RepoName: r.RepoName}

	return a.Validate()
}

// RenameTagRequest is the payload for the administrative tag rename.
type RenameTagRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// Validate checks RenameTagRequest fields.
func (r *RenameTagRequest) Validate() error {
	if r.OldName == "" || r.NewName == "" {
		return ErrMissingTagName
	}

	if len(r.NewName) > maxTagNameLen {
		return &FieldTooLongError{Field: "new_name", MaxLen: maxTagNameLen}
	}

	// A same-name rename has nothing to update and would otherwise make
	// the merge step treat every old-name row as its own collision.
	if r.OldName == r.NewName {
		return ErrSameTagName
	}

	return nil
}

func validateRepoName(entityType EntityType, repoName *string) error {
	if entityType == EntityRepo && (repoName == nil || *repoName == "") {
		return ErrRepoNameRequired
	}

	if entityType == EntityUser && repoName != nil {
		return ErrRepoNameForbidden
	}

	return nil
}
