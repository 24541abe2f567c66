package inventory

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type objectModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Platform      string     `gorm:"type:text;not null;uniqueIndex:uq_object_identity,priority:1"`
	NativeID      string     `gorm:"type:text;not null;uniqueIndex:uq_object_identity,priority:2"`
	Kind          string     `gorm:"type:text;not null;index"`
	Name          string     `gorm:"type:text;not null;index"`
	FirstSeenAt   time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	LastSeenAt    time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	LastSyncRunID *uuid.UUID `gorm:"type:uuid"`
	MissingSince  *time.Time `gorm:"type:timestamptz"`
}

func (objectModel) TableName() string { return "inventory_objects" }

func (m objectModel) toAPI() InventoryObject {
	return InventoryObject{
		ID:            m.ID,
		Platform:      Platform(m.Platform),
		NativeID:      m.NativeID,
		Kind:          ObjectKind(m.Kind),
		Name:          m.Name,
		FirstSeenAt:   m.FirstSeenAt,
		LastSeenAt:    m.LastSeenAt,
		LastSyncRunID: m.LastSyncRunID,
		MissingSince:  m.MissingSince,
	}
}

type factModel struct {
	ObjectID  uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Snapshot  datatypes.JSON `gorm:"type:jsonb"`
	SyncRunID uuid.UUID      `gorm:"type:uuid;not null"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;not null;default:now()"`
}

func (factModel) TableName() string { return "fact_snapshots" }

func (m factModel) decode() (*FactSnapshot, error) {
	if len(m.Snapshot) == 0 {
		return &FactSnapshot{}, nil
	}
	var snap FactSnapshot
	if err := json.Unmarshal(m.Snapshot, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

type overrideModel struct {
	ObjectID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Field     string    `gorm:"type:text;primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	Enabled   bool      `gorm:"not null;default:true"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedBy string    `gorm:"type:text"`
}

func (overrideModel) TableName() string { return "overrides" }

func (m overrideModel) toAPI() Override {
	return Override{
		ObjectID:  m.ObjectID,
		Field:     m.Field,
		Value:     m.Value,
		Enabled:   m.Enabled,
		UpdatedAt: m.UpdatedAt,
		UpdatedBy: m.UpdatedBy,
	}
}

type changeModel struct {
	ID         int64     `gorm:"type:bigserial;primaryKey"`
	ObjectID   uuid.UUID `gorm:"type:uuid;not null;index"`
	SyncRunID  uuid.UUID `gorm:"type:uuid;not null"`
	ChangeType string    `gorm:"type:text;not null;index"`
	FieldName  string    `gorm:"type:text;not null"`
	OldValue   string    `gorm:"type:text"`
	NewValue   string    `gorm:"type:text"`
	ChangedAt  time.Time `gorm:"type:timestamptz;not null;index"`
}

func (changeModel) TableName() string { return "change_records" }

type runModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Platform     string            `gorm:"type:text;not null;index:idx_runs_pair,priority:1"`
	ResourceType string            `gorm:"type:text;not null;index:idx_runs_pair,priority:2"`
	Status       string            `gorm:"type:text;not null"`
	StartedAt    time.Time         `gorm:"type:timestamptz;not null"`
	FinishedAt   *time.Time        `gorm:"type:timestamptz"`
	ObjectsSeen  int               `gorm:"not null;default:0"`
	Details      datatypes.JSONMap `gorm:"type:jsonb"`
}

func (runModel) TableName() string { return "sync_runs" }

func (m runModel) toAPI() SyncRun {
	run := SyncRun{
		ID:           m.ID,
		Platform:     Platform(m.Platform),
		ResourceType: ResourceType(m.ResourceType),
		Status:       RunStatus(m.Status),
		StartedAt:    m.StartedAt,
		FinishedAt:   m.FinishedAt,
		ObjectsSeen:  m.ObjectsSeen,
	}
	run.Details = detailsFromMap(m.Details)
	return run
}

func detailsToMap(d RunDetails) datatypes.JSONMap {
	raw, err := json.Marshal(d)
	if err != nil {
		return datatypes.JSONMap{}
	}
	out := datatypes.JSONMap{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func detailsFromMap(m datatypes.JSONMap) RunDetails {
	if m == nil {
		return RunDetails{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return RunDetails{}
	}
	var d RunDetails
	_ = json.Unmarshal(raw, &d)
	return d
}

type networkModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Platform   string    `gorm:"type:text;not null;uniqueIndex:uq_network_identity,priority:1"`
	NetworkID  string    `gorm:"type:text;not null;uniqueIndex:uq_network_identity,priority:2"`
	Name       string    `gorm:"type:text;not null"`
	LastSyncAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (networkModel) TableName() string { return "networks" }

type publicNetworkModel struct {
	ObjectID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	SNATIP       string    `gorm:"column:snat_ip;type:text"`
	DNATIP       string    `gorm:"column:dnat_ip;type:text"`
	ExposedPorts string    `gorm:"type:text"`
	SourceRegion string    `gorm:"type:text"`
	Active       bool      `gorm:"not null;default:true"`
	UpdatedAt    time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (publicNetworkModel) TableName() string { return "vm_public_networks" }

type dnsRecordModel struct {
	ObjectID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	InternalDNS string    `gorm:"type:text"`
	ExternalDNS string    `gorm:"type:text"`
	SSLEnabled  bool      `gorm:"not null;default:false"`
	Active      bool      `gorm:"not null;default:true"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (dnsRecordModel) TableName() string { return "vm_dns_records" }
