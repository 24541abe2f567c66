package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an object, snapshot, or run does not exist.
	ErrNotFound = errors.New("inventory: not found")

	// ErrSyncAlreadyInProgress is returned when a sync is requested for a
	// (platform, resource type) pair that already has a RUNNING run. The
	// request is rejected at entry with no state mutated.
	ErrSyncAlreadyInProgress = errors.New("inventory: sync already in progress")
)

// FetchError wraps a collaborator failure: the platform API was unreachable,
// rejected the request, or returned a malformed response.
type FetchError struct {
	Platform Platform
	Resource ResourceType
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s: %v", e.Platform, e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError reports a malformed override or payload value. Nothing is
// written when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
