package models

import (
	"time"
)

// TelemetryReading is a single validated sensor reading.  It is a value, not
// a table: readings live in the retention store under a bounded horizon and
// only derived events (anomalies, scans) reach the provenance ledger.
//
// CapturedAt is device-reported and may be skewed; ReceivedAt is assigned by
// the ingestor and is monotonic per ingestor instance.
type TelemetryReading struct {
	DeviceID   string    `json:"device_id"`
	Kind       DataKind  `json:"kind"`
	Value      float64   `json:"value,omitempty"`
	Latitude   float64   `json:"latitude,omitempty"`
	Longitude  float64   `json:"longitude,omitempty"`
	RFIDTag    string    `json:"rfid_tag,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	ReceivedAt time.Time `json:"received_at"`
	OutOfRange bool      `json:"out_of_range,omitempty"`
}

// AnomalyEvent is a derived event raised when a reading violates the alert
// thresholds.  It is appended to the provenance ledger, never stored on its own.
type AnomalyEvent struct {
	DeviceID   string     `json:"device_id"`
	EntityKind EntityKind `json:"entity_kind,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	Kind       DataKind   `json:"kind"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Timestamp  time.Time  `json:"timestamp"`
}
