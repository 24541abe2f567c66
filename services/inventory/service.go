package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service is the read and override facade over storage. Sync execution lives
// in the Coordinator; everything the HTTP layer serves goes through here.
type Service struct {
	store Storage
	clock Clock
}

// NewService wires a Service against storage.
func NewService(store Storage, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("inventory: nil storage")
	}
	s := &Service{store: store, clock: SystemClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceClock substitutes the timestamp source.
func WithServiceClock(c Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// EffectiveObject returns one object with overrides applied.
func (s *Service) EffectiveObject(ctx context.Context, id uuid.UUID) (EffectiveObject, error) {
	obj, snap, err := s.store.GetObject(ctx, id)
	if err != nil {
		return EffectiveObject{}, err
	}
	overrides, err := s.store.ActiveOverrides(ctx, id)
	if err != nil {
		return EffectiveObject{}, err
	}
	return Resolve(obj, snap, overrides), nil
}

// ListEffectiveObjects returns a page of objects with overrides applied and
// the total match count.
func (s *Service) ListEffectiveObjects(ctx context.Context, f ObjectFilter) ([]EffectiveObject, int64, error) {
	objects, snaps, total, err := s.store.ListObjects(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]EffectiveObject, 0, len(objects))
	for _, obj := range objects {
		overrides, err := s.store.ActiveOverrides(ctx, obj.ID)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, Resolve(obj, snaps[obj.ID], overrides))
	}
	return out, total, nil
}

// SetOverride creates or updates an override for (objectID, field). A nil
// value disables the override, reverting the field to its platform fact.
// Returns the object resolved with the new override state.
func (s *Service) SetOverride(ctx context.Context, objectID uuid.UUID, field string, value *string, updatedBy string) (EffectiveObject, error) {
	obj, snap, err := s.store.GetObject(ctx, objectID)
	if err != nil {
		return EffectiveObject{}, err
	}

	if value == nil {
		if err := s.store.DisableOverride(ctx, objectID, field); err != nil {
			return EffectiveObject{}, err
		}
	} else {
		if err := ValidateOverride(field, *value); err != nil {
			return EffectiveObject{}, err
		}
		err := s.store.UpsertOverride(ctx, Override{
			ObjectID:  objectID,
			Field:     field,
			Value:     *value,
			Enabled:   true,
			UpdatedAt: s.clock.Now(),
			UpdatedBy: updatedBy,
		})
		if err != nil {
			return EffectiveObject{}, err
		}
	}

	overrides, err := s.store.ActiveOverrides(ctx, objectID)
	if err != nil {
		return EffectiveObject{}, err
	}
	return Resolve(obj, snap, overrides), nil
}

// Overrides returns the active overrides for an object.
func (s *Service) Overrides(ctx context.Context, objectID uuid.UUID) (map[string]Override, error) {
	if _, _, err := s.store.GetObject(ctx, objectID); err != nil {
		return nil, err
	}
	return s.store.ActiveOverrides(ctx, objectID)
}

// Changes queries the audit log.
func (s *Service) Changes(ctx context.Context, f ChangeFilter) ([]ChangeView, int64, error) {
	return s.store.QueryChanges(ctx, f)
}

// LatestRuns returns the most recent run per resource type for a platform.
func (s *Service) LatestRuns(ctx context.Context, platform Platform) ([]SyncRun, error) {
	if !ValidPlatform(platform) {
		return nil, &ValidationError{Field: "platform", Reason: fmt.Sprintf("unknown platform %q", platform)}
	}
	return s.store.LatestRuns(ctx, platform)
}

// Runs lists sync runs.
func (s *Service) Runs(ctx context.Context, f RunFilter) ([]SyncRun, int64, error) {
	return s.store.ListRuns(ctx, f)
}
