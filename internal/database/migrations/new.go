package migrations

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// gormigrate is a wrapper for gorm's migration functions that adds schema
// versioning and rollback capabilities.  Migration structs below are
// snapshots of the models at the time the migration was written; they do not
// track the live model types.
func New() *Migrations {
	return &Migrations{
		GormOptions: &gormigrate.Options{
			TableName:      "apiserver_migrations",
			IDColumnName:   "id",
			IDColumnSize:   40,
			UseTransaction: false,
		},
		Migrations: []*gormigrate.Migration{
			addTraceTables(),
		},
	}
}

func addTraceTables() *gormigrate.Migration {

	type Base struct {
		ID        uuid.UUID `gorm:"type:uuid;primary_key;"`
		CreatedAt time.Time
		UpdatedAt time.Time
		DeletedAt gorm.DeletedAt `gorm:"index"`
	}

	type Device struct {
		Base
		DeviceID   string `gorm:"uniqueIndex"`
		Name       string
		Kind       string
		EntityKind string
		EntityID   string
		Tags       pq.StringArray `gorm:"type:text[]"`
		Online     bool
		OnlineAt   *time.Time
		LastSeenAt *time.Time
	}

	type Product struct {
		Base
		ExternalID  string `gorm:"uniqueIndex"`
		Name        string
		Origin      string
		ProducerID  string
		BatchNumber string
		Status      string
	}

	type Shipment struct {
		Base
		ExternalID      string         `gorm:"uniqueIndex"`
		ProductIDs      pq.StringArray `gorm:"type:text[]"`
		FromWarehouseID string
		ToWarehouseID   string
		CurrentLocation string
		Status          string
	}

	type ProvenanceRecord struct {
		Base
		EntityKind string `gorm:"uniqueIndex:idx_entity_seq"`
		EntityID   string `gorm:"uniqueIndex:idx_entity_seq"`
		SequenceNo uint64 `gorm:"uniqueIndex:idx_entity_seq"`
		EventType  string
		Payload    map[string]any `gorm:"type:JSONB; serializer:json"`
		ProducedAt time.Time
		LedgerRef  string
	}

	return &gormigrate.Migration{
		ID: "20250114-0000",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&Device{},
				&Product{},
				&Shipment{},
				&ProvenanceRecord{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&Device{},
				&Product{},
				&Shipment{},
				&ProvenanceRecord{},
			)
		},
	}
}
