package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vmledger/pkg/db"
)

// Store is the Postgres-backed Storage implementation. Object writes go
// through gorm transactions; the read-heavy audit log queries use the pgx
// pool directly.
type Store struct {
	orm  *gorm.DB
	pool *pgxpool.Pool
}

// NewStore constructs a Store for the provided handles.
func NewStore(orm *gorm.DB, pool *pgxpool.Pool) (*Store, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	return &Store{orm: orm, pool: pool}, nil
}

func (s *Store) GetObject(ctx context.Context, id uuid.UUID) (InventoryObject, *FactSnapshot, error) {
	var obj objectModel
	err := s.orm.WithContext(ctx).First(&obj, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return InventoryObject{}, nil, ErrNotFound
		}
		return InventoryObject{}, nil, err
	}

	snap, err := s.snapshotFor(ctx, id)
	if err != nil {
		return InventoryObject{}, nil, err
	}
	return obj.toAPI(), snap, nil
}

func (s *Store) snapshotFor(ctx context.Context, objectID uuid.UUID) (*FactSnapshot, error) {
	var fact factModel
	err := s.orm.WithContext(ctx).First(&fact, "object_id = ?", objectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fact.decode()
}

func (s *Store) ListObjects(ctx context.Context, f ObjectFilter) ([]InventoryObject, map[uuid.UUID]*FactSnapshot, int64, error) {
	q := s.orm.WithContext(ctx).Model(&objectModel{})
	if f.Platform != "" {
		q = q.Where("platform = ?", string(f.Platform))
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", string(f.Kind))
	}
	if f.Name != "" {
		q = q.Where("name ILIKE ?", "%"+f.Name+"%")
	}
	if f.Missing != nil {
		if *f.Missing {
			q = q.Where("missing_since IS NOT NULL")
		} else {
			q = q.Where("missing_since IS NULL")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, nil, 0, err
	}

	page, perPage := normalizePage(f.Page, f.PerPage)
	var rows []objectModel
	err := q.Order("name ASC, native_id ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error
	if err != nil {
		return nil, nil, 0, err
	}

	objects := make([]InventoryObject, len(rows))
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		objects[i] = row.toAPI()
		ids[i] = row.ID
	}

	snapshots := make(map[uuid.UUID]*FactSnapshot, len(ids))
	if len(ids) > 0 {
		var facts []factModel
		if err := s.orm.WithContext(ctx).Where("object_id IN ?", ids).Find(&facts).Error; err != nil {
			return nil, nil, 0, err
		}
		for _, fact := range facts {
			snap, err := fact.decode()
			if err != nil {
				return nil, nil, 0, err
			}
			snapshots[fact.ObjectID] = snap
		}
	}

	return objects, snapshots, total, nil
}

func (s *Store) FindObject(ctx context.Context, platform Platform, nativeID string) (uuid.UUID, error) {
	var obj objectModel
	err := s.orm.WithContext(ctx).
		Select("id").
		First(&obj, "platform = ? AND native_id = ?", string(platform), nativeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return obj.ID, nil
}

func (s *Store) FindObjectByName(ctx context.Context, kind ObjectKind, name string) (uuid.UUID, error) {
	var obj objectModel
	err := s.orm.WithContext(ctx).
		Select("id").
		Where("kind = ? AND (name = ? OR name ILIKE ?)", string(kind), name, name).
		Order("last_seen_at DESC").
		First(&obj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return obj.ID, nil
}

func (s *Store) LatestSnapshot(ctx context.Context, platform Platform, nativeID string) (uuid.UUID, *FactSnapshot, error) {
	id, err := s.FindObject(ctx, platform, nativeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return uuid.Nil, nil, nil
		}
		return uuid.Nil, nil, err
	}
	snap, err := s.snapshotFor(ctx, id)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return id, snap, nil
}

func (s *Store) CommitSnapshot(ctx context.Context, ref ObjectRef, snap FactSnapshot, changes []ChangeRecord, runID uuid.UUID, seenAt time.Time) (uuid.UUID, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var objectID uuid.UUID
	err = s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var obj objectModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&obj, "platform = ? AND native_id = ?", string(ref.Platform), ref.NativeID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			obj = objectModel{
				ID:            uuid.New(),
				Platform:      string(ref.Platform),
				NativeID:      ref.NativeID,
				Kind:          string(ref.Kind),
				Name:          ref.Name,
				FirstSeenAt:   seenAt,
				LastSeenAt:    seenAt,
				LastSyncRunID: &runID,
			}
			if err := tx.Create(&obj).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			updates := map[string]any{
				"name":             ref.Name,
				"kind":             string(ref.Kind),
				"last_seen_at":     seenAt,
				"last_sync_run_id": runID,
				"missing_since":    nil,
			}
			if err := tx.Model(&objectModel{}).Where("id = ?", obj.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		objectID = obj.ID

		fact := factModel{
			ObjectID:  objectID,
			Snapshot:  raw,
			SyncRunID: runID,
			UpdatedAt: seenAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "object_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"snapshot", "sync_run_id", "updated_at"}),
		}).Create(&fact).Error; err != nil {
			return err
		}

		if len(changes) == 0 {
			return nil
		}
		rows := make([]changeModel, len(changes))
		for i, c := range changes {
			rows[i] = changeModel{
				ObjectID:   objectID,
				SyncRunID:  c.SyncRunID,
				ChangeType: string(c.ChangeType),
				FieldName:  c.FieldName,
				OldValue:   c.OldValue,
				NewValue:   c.NewValue,
				ChangedAt:  c.ChangedAt,
			}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return uuid.Nil, err
	}
	return objectID, nil
}

func (s *Store) MarkMissing(ctx context.Context, platform Platform, kind ObjectKind, runID uuid.UUID, at time.Time) (int64, error) {
	res := s.orm.WithContext(ctx).Model(&objectModel{}).
		Where("platform = ? AND kind = ? AND missing_since IS NULL", string(platform), string(kind)).
		Where("last_sync_run_id IS NULL OR last_sync_run_id <> ?", runID).
		Update("missing_since", at)
	return res.RowsAffected, res.Error
}

func (s *Store) UpsertOverride(ctx context.Context, o Override) error {
	row := overrideModel{
		ObjectID:  o.ObjectID,
		Field:     o.Field,
		Value:     o.Value,
		Enabled:   o.Enabled,
		UpdatedAt: o.UpdatedAt,
		UpdatedBy: o.UpdatedBy,
	}
	return s.orm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "object_id"}, {Name: "field"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "enabled", "updated_at", "updated_by"}),
	}).Create(&row).Error
}

func (s *Store) DisableOverride(ctx context.Context, objectID uuid.UUID, field string) error {
	return s.orm.WithContext(ctx).Model(&overrideModel{}).
		Where("object_id = ? AND field = ?", objectID, field).
		Update("enabled", false).Error
}

func (s *Store) ActiveOverrides(ctx context.Context, objectID uuid.UUID) (map[string]Override, error) {
	var rows []overrideModel
	err := s.orm.WithContext(ctx).
		Where("object_id = ? AND enabled", objectID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]Override, len(rows))
	for _, row := range rows {
		out[row.Field] = row.toAPI()
	}
	return out, nil
}

func (s *Store) CreateRun(ctx context.Context, platform Platform, resource ResourceType, at time.Time) (SyncRun, error) {
	run := runModel{
		ID:           uuid.New(),
		Platform:     string(platform),
		ResourceType: string(resource),
		Status:       string(RunRunning),
		StartedAt:    at,
	}
	err := s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		err := tx.Model(&runModel{}).
			Where("platform = ? AND resource_type = ? AND status = ?",
				string(platform), string(resource), string(RunRunning)).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrSyncAlreadyInProgress
		}
		return tx.Create(&run).Error
	})
	if err != nil {
		return SyncRun{}, err
	}
	return run.toAPI(), nil
}

func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, status RunStatus, objectsSeen int, details RunDetails, at time.Time) (SyncRun, error) {
	var run runModel
	err := s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&run, "id = ?", runID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if RunStatus(run.Status).Terminal() {
			return fmt.Errorf("sync run %s already finished with status %s", runID, run.Status)
		}
		run.Status = string(status)
		run.FinishedAt = &at
		run.ObjectsSeen = objectsSeen
		run.Details = detailsToMap(details)
		return tx.Save(&run).Error
	})
	if err != nil {
		return SyncRun{}, err
	}
	return run.toAPI(), nil
}

func (s *Store) LatestRuns(ctx context.Context, platform Platform) ([]SyncRun, error) {
	query := `
SELECT DISTINCT ON (platform, resource_type) *
FROM sync_runs
`
	args := []any{}
	if platform != "" {
		query += "WHERE platform = ?\n"
		args = append(args, string(platform))
	}
	query += "ORDER BY platform, resource_type, started_at DESC"

	var rows []runModel
	if err := s.orm.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]SyncRun, len(rows))
	for i, row := range rows {
		runs[i] = row.toAPI()
	}
	return runs, nil
}

func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]SyncRun, int64, error) {
	q := s.orm.WithContext(ctx).Model(&runModel{})
	if f.Platform != "" {
		q = q.Where("platform = ?", string(f.Platform))
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", string(f.ResourceType))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, perPage := normalizePage(f.Page, f.PerPage)
	var rows []runModel
	err := q.Order("started_at DESC, id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	runs := make([]SyncRun, len(rows))
	for i, row := range rows {
		runs[i] = row.toAPI()
	}
	return runs, total, nil
}

type changeRow struct {
	ID         int64     `db:"id"`
	ObjectID   uuid.UUID `db:"object_id"`
	SyncRunID  uuid.UUID `db:"sync_run_id"`
	ChangeType string    `db:"change_type"`
	FieldName  string    `db:"field_name"`
	OldValue   string    `db:"old_value"`
	NewValue   string    `db:"new_value"`
	ChangedAt  time.Time `db:"changed_at"`
	Platform   string    `db:"platform"`
	ObjectName string    `db:"object_name"`
}

func (s *Store) QueryChanges(ctx context.Context, f ChangeFilter) ([]ChangeView, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ChangeType != "" {
		where += " AND c.change_type = " + arg(string(f.ChangeType))
	}
	if f.Platform != "" {
		where += " AND o.platform = " + arg(string(f.Platform))
	}
	if f.ObjectID != uuid.Nil {
		where += " AND c.object_id = " + arg(f.ObjectID)
	}
	if !f.Since.IsZero() {
		where += " AND c.changed_at >= " + arg(f.Since)
	}
	if !f.Until.IsZero() {
		where += " AND c.changed_at < " + arg(f.Until)
	}

	var total int64
	countQuery := `
SELECT count(*)
FROM change_records c
JOIN inventory_objects o ON o.id = c.object_id
` + where
	if err := db.Get(ctx, s.pool, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	page, perPage := normalizePage(f.Page, f.PerPage)
	listArgs := append(args, perPage, (page-1)*perPage)
	listQuery := fmt.Sprintf(`
SELECT c.id, c.object_id, c.sync_run_id, c.change_type, c.field_name,
       coalesce(c.old_value, '') AS old_value,
       coalesce(c.new_value, '') AS new_value,
       c.changed_at, o.platform, o.name AS object_name
FROM change_records c
JOIN inventory_objects o ON o.id = c.object_id
%s
ORDER BY c.changed_at DESC, c.id DESC
LIMIT $%d OFFSET $%d
`, where, len(args)+1, len(args)+2)

	var rows []changeRow
	if err := db.Select(ctx, s.pool, &rows, listQuery, listArgs...); err != nil {
		return nil, 0, err
	}

	views := make([]ChangeView, len(rows))
	for i, row := range rows {
		views[i] = ChangeView{
			ChangeRecord: ChangeRecord{
				ID:         row.ID,
				ObjectID:   row.ObjectID,
				SyncRunID:  row.SyncRunID,
				ChangeType: ChangeType(row.ChangeType),
				FieldName:  row.FieldName,
				OldValue:   row.OldValue,
				NewValue:   row.NewValue,
				ChangedAt:  row.ChangedAt,
			},
			Platform:   Platform(row.Platform),
			ObjectName: row.ObjectName,
		}
	}
	return views, total, nil
}

func (s *Store) UpsertNetworkName(ctx context.Context, platform Platform, networkID, name string, at time.Time) (bool, error) {
	created := false
	err := s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing networkModel
		err := tx.First(&existing, "platform = ? AND network_id = ?", string(platform), networkID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			return tx.Create(&networkModel{
				ID:         uuid.New(),
				Platform:   string(platform),
				NetworkID:  networkID,
				Name:       name,
				LastSyncAt: at,
				CreatedAt:  at,
			}).Error
		case err != nil:
			return err
		}
		return tx.Model(&existing).Updates(map[string]any{
			"name":         name,
			"last_sync_at": at,
		}).Error
	})
	return created, err
}

func (s *Store) NetworkName(ctx context.Context, platform Platform, networkID string) (string, error) {
	var row networkModel
	err := s.orm.WithContext(ctx).
		Select("name").
		First(&row, "platform = ? AND network_id = ?", string(platform), networkID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return row.Name, nil
}

func (s *Store) UpsertPublicNetwork(ctx context.Context, m PublicNetworkMapping) error {
	row := publicNetworkModel{
		ObjectID:     m.ObjectID,
		SNATIP:       m.SNATIP,
		DNATIP:       m.DNATIP,
		ExposedPorts: m.ExposedPorts,
		SourceRegion: m.SourceRegion,
		Active:       m.Active,
		UpdatedAt:    m.UpdatedAt,
	}
	return s.orm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "object_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"snat_ip", "dnat_ip", "exposed_ports", "source_region", "active", "updated_at"}),
	}).Create(&row).Error
}

func (s *Store) UpsertDNSRecord(ctx context.Context, m DNSRecordMapping) error {
	row := dnsRecordModel{
		ObjectID:    m.ObjectID,
		InternalDNS: m.InternalDNS,
		ExternalDNS: m.ExternalDNS,
		SSLEnabled:  m.SSLEnabled,
		Active:      m.Active,
		UpdatedAt:   m.UpdatedAt,
	}
	return s.orm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "object_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"internal_dns", "external_dns", "ssl_enabled", "active", "updated_at"}),
	}).Create(&row).Error
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 500 {
		perPage = 500
	}
	return page, perPage
}

var _ Storage = (*Store)(nil)
