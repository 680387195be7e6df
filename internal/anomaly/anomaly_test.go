package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectTest192/FoodTrace/internal/models"
)

func TestEvaluate(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	now := time.Now()

	tests := []struct {
		name      string
		kind      models.DataKind
		value     float64
		alert     bool
		threshold float64
	}{
		{name: "temp in bounds", kind: models.KindTemp, value: 21.0},
		{name: "temp at upper bound", kind: models.KindTemp, value: 30.0},
		{name: "temp too hot", kind: models.KindTemp, value: 35.0, alert: true, threshold: 30},
		{name: "temp too cold", kind: models.KindTemp, value: -4.0, alert: true, threshold: 0},
		{name: "humidity too dry", kind: models.KindHumidity, value: 5.0, alert: true, threshold: 20},
		{name: "gps never alerts", kind: models.KindGPS, value: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, alert := d.Evaluate(models.TelemetryReading{
				DeviceID:   "D1",
				Kind:       tt.kind,
				Value:      tt.value,
				CapturedAt: now,
			})
			require.Equal(t, tt.alert, alert)
			if alert {
				assert.Equal(t, "D1", event.DeviceID)
				assert.Equal(t, tt.value, event.Value)
				assert.Equal(t, tt.threshold, event.Threshold)
				assert.Equal(t, now, event.Timestamp)
			}
		})
	}
}
