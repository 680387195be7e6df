package models

import (
	"time"
)

// EventType classifies provenance records.
type EventType string

const (
	EventStatusChange EventType = "status_change"
	EventSensorData   EventType = "sensor_data"
	EventAnomaly      EventType = "anomaly"
	EventRFIDBind     EventType = "rfid_bind"
	EventRFIDScan     EventType = "rfid_scan"
)

// ProvenanceRecord is one append-only entry in an entity's provenance log.
//
// SequenceNo is assigned by the ledger and strictly increasing per
// (EntityKind, EntityID).  A failed ledger-backend call still consumes a
// sequence number, so gaps in LedgerRef coverage stay auditable.  LedgerRef is
// the opaque handle returned by the backend; it is empty when the backend
// call failed, which never blocks the append.
type ProvenanceRecord struct {
	Base
	EntityKind EntityKind     `json:"entity_kind" gorm:"uniqueIndex:idx_entity_seq"`
	EntityID   string         `json:"entity_id" gorm:"uniqueIndex:idx_entity_seq"`
	SequenceNo uint64         `json:"sequence_no" gorm:"uniqueIndex:idx_entity_seq"`
	EventType  EventType      `json:"event_type" example:"status_change"`
	Payload    map[string]any `json:"payload" gorm:"type:JSONB; serializer:json"`
	ProducedAt time.Time      `json:"produced_at"`
	LedgerRef  string         `json:"ledger_ref,omitempty"`
}
