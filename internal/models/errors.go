package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation.
var (
	ErrMissingTagName    = errors.New("tag_name is required")
	ErrMissingEntityType = errors.New("entity_type is required")
	ErrMissingEntityID   = errors.New("entity_id is required")
	ErrInvalidEntityType = errors.New("entity_type must be 'user' or 'repo'")
	ErrRepoNameRequired  = errors.New("repo_name is required for repo-level tags")
	ErrRepoNameForbidden = errors.New("repo_name is only valid for repo-level tags")
	ErrSameTagName       = errors.New("old_name and new_name must differ")
	ErrFieldTooLong      = errors.New("field exceeds maximum length")
)

// FieldTooLongError names the over-length field and its limit; it matches
// ErrFieldTooLong under errors.Is.
type FieldTooLongError struct {
	Field  string
	MaxLen int
}

func (e *FieldTooLongError) Error() string {
	return fmt.Sprintf("%s exceeds maximum length of %d", e.Field, e.MaxLen)
}

func (e *FieldTooLongError) Unwrap() error { return ErrFieldTooLong }

// Sentinel errors for entity lookups.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrRepoNotFound = errors.New("repo not found")
	ErrTagNotFound  = errors.New("tag not found")
)

// ErrPermissionDenied indicates the requester does not own the fact they
// tried to remove (only the sourcing user may delete a tag).
var ErrPermissionDenied = errors.New("permission denied")

// ErrDuplicateKey indicates a unique constraint violation. Tag writes treat
// this as "already present", not as a failure.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrSessionExpired indicates a login session that no longer exists or has lapsed.
var ErrSessionExpired = errors.New("session expired")
