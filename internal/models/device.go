package models

import (
	"time"

	"github.com/lib/pq"
)

// DataKind is the kind of data a field device reports.
type DataKind string

const (
	KindTemp     DataKind = "temp"
	KindHumidity DataKind = "humidity"
	KindGPS      DataKind = "gps"
	KindRFID     DataKind = "rfid"
)

// Device is a field sensor or scanner.  A device is bound to at most one
// traceable entity at a time and is created on first telemetry receipt or on
// an explicit bind call.  Devices are never hard-deleted, only marked offline.
type Device struct {
	Base
	DeviceID   string         `json:"device_id" gorm:"uniqueIndex" example:"D1"`
	Name       string         `json:"name" example:"truck-7 temp probe"`
	Kind       DataKind       `json:"kind" example:"temp"`
	EntityKind EntityKind     `json:"entity_kind,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Tags       pq.StringArray `json:"tags" gorm:"type:text[]" swaggertype:"array,string"`
	Online     bool           `json:"online"`
	OnlineAt   *time.Time     `json:"online_at"`
	LastSeenAt *time.Time     `json:"last_seen_at"`
}

// Bound reports whether the device is bound to a traceable entity.
func (d *Device) Bound() bool {
	return d.EntityKind != "" && d.EntityID != ""
}

// BindDevice is the information needed to bind a device to a traceable entity.
type BindDevice struct {
	EntityKind EntityKind `json:"entity_kind" example:"shipment"`
	EntityID   string     `json:"entity_id" example:"SH1"`
	Kind       DataKind   `json:"kind" example:"temp"`
	Name       string     `json:"name" example:"truck-7 temp probe"`
}
