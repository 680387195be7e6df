package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/projectTest192/FoodTrace/internal/models"
)

// Topic patterns consumed from the broker.
const (
	TopicDeviceData          = "foodtrace/+/data"
	TopicShipmentEnvironment = "shipment/environment"
)

var (
	// ErrMalformedPayload means the message could not be decoded into a
	// reading.  The message is dropped; the stream has no redelivery contract.
	ErrMalformedPayload = errors.New("malformed telemetry payload")

	// ErrUnboundDevice means the reading was stored under the device key
	// but no entity binding exists, so nothing reached the provenance log.
	ErrUnboundDevice = errors.New("device not bound to an entity")
)

// devicePayload is the per-device message published to foodtrace/<deviceId>/data.
type devicePayload struct {
	Kind       models.DataKind `json:"kind"`
	Value      *float64        `json:"value"`
	Latitude   *float64        `json:"lat"`
	Longitude  *float64        `json:"lon"`
	Tag        string          `json:"tag"`
	CapturedAt *time.Time      `json:"captured_at"`
}

// environmentPayload is the aggregate message published to shipment/environment
// by in-transit gateways.  One message fans out into up to three readings.
type environmentPayload struct {
	ShipmentID string     `json:"shipment_id"`
	Timestamp  *time.Time `json:"timestamp"`
	Data       struct {
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
		Location    *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
	} `json:"data"`
}

// binding is a device's entity attachment, either explicit or implied by the
// message's topic form.
type binding struct {
	kind models.EntityKind
	id   string
}

func (b binding) bound() bool {
	return b.kind != "" && b.id != ""
}

// decode turns a raw broker message into readings.  The environment form also
// implies a binding to the shipment it reports for.
func decode(topic string, payload []byte, now time.Time) (string, []models.TelemetryReading, binding, error) {
	parts := strings.Split(topic, "/")
	switch {
	case len(parts) == 3 && parts[0] == "foodtrace" && parts[2] == "data":
		deviceID := parts[1]
		if deviceID == "" {
			return "", nil, binding{}, fmt.Errorf("%w: empty device id in topic", ErrMalformedPayload)
		}
		reading, err := decodeDeviceData(deviceID, payload, now)
		if err != nil {
			return "", nil, binding{}, err
		}
		return deviceID, []models.TelemetryReading{reading}, binding{}, nil

	case topic == TopicShipmentEnvironment:
		return decodeEnvironment(payload, now)

	default:
		return "", nil, binding{}, fmt.Errorf("%w: unrecognized topic %q", ErrMalformedPayload, topic)
	}
}

func decodeDeviceData(deviceID string, payload []byte, now time.Time) (models.TelemetryReading, error) {
	var p devicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return models.TelemetryReading{}, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}

	reading := models.TelemetryReading{
		DeviceID:   deviceID,
		Kind:       p.Kind,
		CapturedAt: capturedAt(p.CapturedAt, now),
	}
	switch p.Kind {
	case models.KindTemp, models.KindHumidity:
		if p.Value == nil {
			return models.TelemetryReading{}, fmt.Errorf("%w: %s reading without value", ErrMalformedPayload, p.Kind)
		}
		reading.Value = *p.Value
	case models.KindGPS:
		if p.Latitude == nil || p.Longitude == nil {
			return models.TelemetryReading{}, fmt.Errorf("%w: gps reading without coordinates", ErrMalformedPayload)
		}
		reading.Latitude = *p.Latitude
		reading.Longitude = *p.Longitude
	case models.KindRFID:
		if p.Tag == "" {
			return models.TelemetryReading{}, fmt.Errorf("%w: rfid reading without tag", ErrMalformedPayload)
		}
		reading.RFIDTag = p.Tag
	default:
		return models.TelemetryReading{}, fmt.Errorf("%w: unknown data kind %q", ErrMalformedPayload, p.Kind)
	}
	return reading, nil
}

func decodeEnvironment(payload []byte, now time.Time) (string, []models.TelemetryReading, binding, error) {
	var p environmentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", nil, binding{}, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	if p.ShipmentID == "" {
		return "", nil, binding{}, fmt.Errorf("%w: environment message without shipment_id", ErrMalformedPayload)
	}

	// the reporting gateway is modeled as one device per shipment
	deviceID := "env-" + p.ShipmentID
	at := capturedAt(p.Timestamp, now)

	var readings []models.TelemetryReading
	if p.Data.Temperature != nil {
		readings = append(readings, models.TelemetryReading{
			DeviceID: deviceID, Kind: models.KindTemp, Value: *p.Data.Temperature, CapturedAt: at,
		})
	}
	if p.Data.Humidity != nil {
		readings = append(readings, models.TelemetryReading{
			DeviceID: deviceID, Kind: models.KindHumidity, Value: *p.Data.Humidity, CapturedAt: at,
		})
	}
	if p.Data.Location != nil {
		readings = append(readings, models.TelemetryReading{
			DeviceID: deviceID, Kind: models.KindGPS,
			Latitude: p.Data.Location.Latitude, Longitude: p.Data.Location.Longitude,
			CapturedAt: at,
		})
	}
	if len(readings) == 0 {
		return "", nil, binding{}, fmt.Errorf("%w: environment message without data", ErrMalformedPayload)
	}
	return deviceID, readings, binding{kind: models.EntityShipment, id: p.ShipmentID}, nil
}

func capturedAt(reported *time.Time, now time.Time) time.Time {
	if reported != nil {
		return reported.UTC()
	}
	return now
}

// Validity ranges per kind.  These bound what is physically plausible, not
// what is acceptable: an implausible value is stored anyway and flagged so
// the anomaly trail stays complete.
const (
	tempMin, tempMax   = -50.0, 80.0
	humidMin, humidMax = 0.0, 100.0
	latMin, latMax     = -90.0, 90.0
	lonMin, lonMax     = -180.0, 180.0
)

func flagOutOfRange(r *models.TelemetryReading) {
	switch r.Kind {
	case models.KindTemp:
		r.OutOfRange = r.Value < tempMin || r.Value > tempMax
	case models.KindHumidity:
		r.OutOfRange = r.Value < humidMin || r.Value > humidMax
	case models.KindGPS:
		r.OutOfRange = r.Latitude < latMin || r.Latitude > latMax ||
			r.Longitude < lonMin || r.Longitude > lonMax
	}
}
