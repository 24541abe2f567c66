package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

// The structs below mirror the models in services/inventory. Migrations keep
// their own copies so schema history stays frozen while the live models evolve.

type InventoryObject struct {
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

func (InventoryObject) TableName() string { return "inventory_objects" }

type FactSnapshot struct {
	ObjectID  uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Snapshot  datatypes.JSON `gorm:"type:jsonb"`
	SyncRunID uuid.UUID      `gorm:"type:uuid;not null"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;not null;default:now()"`
	Object    InventoryObject `gorm:"foreignKey:ObjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (FactSnapshot) TableName() string { return "fact_snapshots" }

type Override struct {
	ObjectID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Field     string    `gorm:"type:text;primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	Enabled   bool      `gorm:"not null;default:true"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedBy string    `gorm:"type:text"`
	Object    InventoryObject `gorm:"foreignKey:ObjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Override) TableName() string { return "overrides" }

type ChangeRecord struct {
	ID         int64     `gorm:"type:bigserial;primaryKey"`
	ObjectID   uuid.UUID `gorm:"type:uuid;not null;index"`
	SyncRunID  uuid.UUID `gorm:"type:uuid;not null"`
	ChangeType string    `gorm:"type:text;not null;index"`
	FieldName  string    `gorm:"type:text;not null"`
	OldValue   string    `gorm:"type:text"`
	NewValue   string    `gorm:"type:text"`
	ChangedAt  time.Time `gorm:"type:timestamptz;not null;index"`
	Object     InventoryObject `gorm:"foreignKey:ObjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ChangeRecord) TableName() string { return "change_records" }

type SyncRun struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Platform     string            `gorm:"type:text;not null;index:idx_runs_pair,priority:1"`
	ResourceType string            `gorm:"type:text;not null;index:idx_runs_pair,priority:2"`
	Status       string            `gorm:"type:text;not null"`
	StartedAt    time.Time         `gorm:"type:timestamptz;not null"`
	FinishedAt   *time.Time        `gorm:"type:timestamptz"`
	ObjectsSeen  int               `gorm:"not null;default:0"`
	Details      datatypes.JSONMap `gorm:"type:jsonb"`
}

func (SyncRun) TableName() string { return "sync_runs" }

type Network struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Platform   string    `gorm:"type:text;not null;uniqueIndex:uq_network_identity,priority:1"`
	NetworkID  string    `gorm:"type:text;not null;uniqueIndex:uq_network_identity,priority:2"`
	Name       string    `gorm:"type:text;not null"`
	LastSyncAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (Network) TableName() string { return "networks" }

type PublicNetwork struct {
	ObjectID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	SNATIP       string    `gorm:"column:snat_ip;type:text"`
	DNATIP       string    `gorm:"column:dnat_ip;type:text"`
	ExposedPorts string    `gorm:"type:text"`
	SourceRegion string    `gorm:"type:text"`
	Active       bool      `gorm:"not null;default:true"`
	UpdatedAt    time.Time `gorm:"type:timestamptz;not null;default:now()"`
	Object       InventoryObject `gorm:"foreignKey:ObjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (PublicNetwork) TableName() string { return "vm_public_networks" }

type DNSRecord struct {
	ObjectID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	InternalDNS string    `gorm:"type:text"`
	ExternalDNS string    `gorm:"type:text"`
	SSLEnabled  bool      `gorm:"not null;default:false"`
	Active      bool      `gorm:"not null;default:true"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;not null;default:now()"`
	Object      InventoryObject `gorm:"foreignKey:ObjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (DNSRecord) TableName() string { return "vm_dns_records" }

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&InventoryObject{},
		&FactSnapshot{},
		&Override{},
		&ChangeRecord{},
		&SyncRun{},
		&Network{},
		&PublicNetwork{},
		&DNSRecord{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if err := m.CreateConstraint(&FactSnapshot{}, "Object"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Override{}, "Object"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&ChangeRecord{}, "Object"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&PublicNetwork{}, "Object"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&DNSRecord{}, "Object"); err != nil {
		return err
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).Migrator().DropTable(
		&DNSRecord{},
		&PublicNetwork{},
		&Network{},
		&SyncRun{},
		&ChangeRecord{},
		&Override{},
		&FactSnapshot{},
		&InventoryObject{},
	); err != nil {
		return err
	}

	return nil
}
