// The anomaly package evaluates validated readings against static alert
// thresholds.  It is pure computation: detection constructs the event, the
// caller appends it to the provenance ledger.
package anomaly

import (
	"github.com/projectTest192/FoodTrace/internal/models"
)

// Bounds is an inclusive alert range; values outside it raise an anomaly.
type Bounds struct {
	Min float64
	Max float64
}

// Thresholds are the per-kind alert bounds.  These are deliberately separate
// from the ingest validity ranges: a 35 °C reading is valid telemetry and an
// alert at the same time.
type Thresholds map[models.DataKind]Bounds

func DefaultThresholds() Thresholds {
	return Thresholds{
		models.KindTemp:     {Min: 0, Max: 30},
		models.KindHumidity: {Min: 20, Max: 80},
	}
}

type Detector struct {
	thresholds Thresholds
}

func NewDetector(thresholds Thresholds) *Detector {
	return &Detector{thresholds: thresholds}
}

// Evaluate returns the derived anomaly event for a reading that violates its
// kind's bounds.  Kinds without configured bounds (gps, rfid) never alert.
func (d *Detector) Evaluate(r models.TelemetryReading) (models.AnomalyEvent, bool) {
	bounds, found := d.thresholds[r.Kind]
	if !found {
		return models.AnomalyEvent{}, false
	}

	threshold := 0.0
	switch {
	case r.Value < bounds.Min:
		threshold = bounds.Min
	case r.Value > bounds.Max:
		threshold = bounds.Max
	default:
		return models.AnomalyEvent{}, false
	}

	return models.AnomalyEvent{
		DeviceID:  r.DeviceID,
		Kind:      r.Kind,
		Value:     r.Value,
		Threshold: threshold,
		Timestamp: r.CapturedAt,
	}, true
}
