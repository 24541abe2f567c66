package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ObjectFilter narrows object listings.
type ObjectFilter struct {
	Platform Platform
	Kind     ObjectKind
	Name     string
	Missing  *bool
	Page     int
	PerPage  int
}

// ChangeFilter narrows audit log queries. Pagination is offset based; the
// backing query orders by changed_at descending with id descending as the
// tie breaker so paging is stable.
type ChangeFilter struct {
	ChangeType ChangeType
	Platform   Platform
	ObjectID   uuid.UUID
	Since      time.Time
	Until      time.Time
	Page       int
	PerPage    int
}

// RunFilter narrows sync run listings.
type RunFilter struct {
	Platform     Platform
	ResourceType ResourceType
	Status       RunStatus
	Page         int
	PerPage      int
}

// Storage is the persistence contract the engine is written against. The
// production implementation is Postgres backed (Store); tests substitute an
// in-memory fake. All object-level writes are atomic per object: readers
// never observe a half-replaced snapshot or a snapshot without its change
// records.
type Storage interface {
	// GetObject loads one object and its latest snapshot (nil when the
	// object has never completed a sync). Returns ErrNotFound for unknown ids.
	GetObject(ctx context.Context, id uuid.UUID) (InventoryObject, *FactSnapshot, error)

	// ListObjects returns a page of objects with their snapshots and the
	// total match count.
	ListObjects(ctx context.Context, f ObjectFilter) ([]InventoryObject, map[uuid.UUID]*FactSnapshot, int64, error)

	// FindObject resolves an object id by platform-stable identity.
	FindObject(ctx context.Context, platform Platform, nativeID string) (uuid.UUID, error)

	// FindObjectByName resolves an object id by kind and display name,
	// used when matching mapping payloads that carry no native id.
	FindObjectByName(ctx context.Context, kind ObjectKind, name string) (uuid.UUID, error)

	// LatestSnapshot returns the object id and prior snapshot for a
	// platform identity, or (uuid.Nil, nil, nil) when first seen.
	LatestSnapshot(ctx context.Context, platform Platform, nativeID string) (uuid.UUID, *FactSnapshot, error)

	// CommitSnapshot upserts the object, replaces its snapshot wholesale,
	// and appends the detected change records in one transaction.
	CommitSnapshot(ctx context.Context, ref ObjectRef, snap FactSnapshot, changes []ChangeRecord, runID uuid.UUID, seenAt time.Time) (uuid.UUID, error)

	// MarkMissing flags objects of the pair that were not touched by runID.
	// CommitSnapshot clears the flag on the next sighting. Returns the
	// number of newly flagged objects.
	MarkMissing(ctx context.Context, platform Platform, kind ObjectKind, runID uuid.UUID, at time.Time) (int64, error)

	// Overrides.
	UpsertOverride(ctx context.Context, o Override) error
	DisableOverride(ctx context.Context, objectID uuid.UUID, field string) error
	ActiveOverrides(ctx context.Context, objectID uuid.UUID) (map[string]Override, error)

	// Sync runs. CreateRun transitions PENDING->RUNNING atomically with row
	// creation and fails with ErrSyncAlreadyInProgress when the pair already
	// has a RUNNING row. FinishRun is a no-op error on terminal runs.
	CreateRun(ctx context.Context, platform Platform, resource ResourceType, at time.Time) (SyncRun, error)
	FinishRun(ctx context.Context, runID uuid.UUID, status RunStatus, objectsSeen int, details RunDetails, at time.Time) (SyncRun, error)
	LatestRuns(ctx context.Context, platform Platform) ([]SyncRun, error)
	ListRuns(ctx context.Context, f RunFilter) ([]SyncRun, int64, error)

	// Audit log queries.
	QueryChanges(ctx context.Context, f ChangeFilter) ([]ChangeView, int64, error)

	// Mapping upserts for network/public-network/DNS sync payloads.
	UpsertNetworkName(ctx context.Context, platform Platform, networkID, name string, at time.Time) (created bool, err error)
	NetworkName(ctx context.Context, platform Platform, networkID string) (string, error)
	UpsertPublicNetwork(ctx context.Context, m PublicNetworkMapping) error
	UpsertDNSRecord(ctx context.Context, m DNSRecordMapping) error
}
