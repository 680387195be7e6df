// The retention package holds the sliding-window time series of sensor
// readings.  Each (data kind, device) key keeps readings sorted by capture
// time under a kind-specific horizon; readings older than the horizon are
// never observable even if not yet physically purged.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/projectTest192/FoodTrace/internal/models"
)

// Store is the retention window storage.  Put is an idempotent upsert keyed
// by (deviceId, capturedAt); Window returns the live readings with
// capturedAt >= since in ascending capture order.
type Store interface {
	Put(ctx context.Context, reading models.TelemetryReading) error
	Window(ctx context.Context, kind models.DataKind, deviceID string, since time.Time) ([]models.TelemetryReading, error)

	// Alert state is kept outside the sliding windows: unbounded, cleared manually.
	PutAlert(ctx context.Context, event models.AnomalyEvent) error
	Alerts(ctx context.Context, deviceID string) ([]models.AnomalyEvent, error)
	ClearAlerts(ctx context.Context, deviceID string) error

	// Degraded reports whether the store is running on its in-process fallback.
	Degraded() bool
}

// Horizons are the per-kind retention windows.  A zero duration means
// unbounded.
type Horizons struct {
	Temp     time.Duration
	Humidity time.Duration
	GPS      time.Duration
}

func DefaultHorizons() Horizons {
	return Horizons{
		Temp:     30 * time.Minute,
		Humidity: 30 * time.Minute,
		GPS:      24 * time.Hour,
	}
}

func (h Horizons) For(kind models.DataKind) time.Duration {
	switch kind {
	case models.KindTemp:
		return h.Temp
	case models.KindHumidity:
		return h.Humidity
	case models.KindGPS:
		return h.GPS
	}
	return 0
}

// keyFor builds the logical key for a series: temp:<deviceId>,
// humid:<deviceId>, gps:<deviceId>.
func keyFor(kind models.DataKind, deviceID string) string {
	switch kind {
	case models.KindHumidity:
		return "humid:" + deviceID
	default:
		return fmt.Sprintf("%s:%s", kind, deviceID)
	}
}

func alertKey(deviceID string) string {
	return "alert:" + deviceID
}

// horizonFloor returns the oldest observable capture time for kind, and
// whether the kind is bounded at all.
func (h Horizons) horizonFloor(kind models.DataKind, now time.Time) (time.Time, bool) {
	d := h.For(kind)
	if d == 0 {
		return time.Time{}, false
	}
	return now.Add(-d), true
}
