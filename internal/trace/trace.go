// The trace package answers the consumer-facing question: everything known
// about one entity.  It joins entity metadata, the full provenance history,
// and the live retention windows of every bound device into a single view.
package trace

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/projectTest192/FoodTrace/internal/ledger"
	"github.com/projectTest192/FoodTrace/internal/models"
	"github.com/projectTest192/FoodTrace/internal/retention"
)

// ErrEntityNotFound is returned when the traced entity does not exist.  An
// existing entity with no history or no devices yields an empty view instead.
var ErrEntityNotFound = errors.New("entity not found")

// DeviceTrace is one bound device's live contribution to a trace.
type DeviceTrace struct {
	Device   models.Device                                `json:"device"`
	Readings map[models.DataKind][]models.TelemetryReading `json:"readings"`
	Alerts   []models.AnomalyEvent                        `json:"alerts"`
}

// TraceView is the assembled answer for one entity.
type TraceView struct {
	EntityKind models.EntityKind         `json:"entity_kind"`
	EntityID   string                    `json:"entity_id"`
	Status     models.Status             `json:"status"`
	Product    *models.Product           `json:"product,omitempty"`
	Shipment   *models.Shipment          `json:"shipment,omitempty"`
	History    []models.ProvenanceRecord `json:"history"`
	Devices    []DeviceTrace             `json:"devices"`

	// Degraded reports that live readings came from the in-process
	// retention fallback rather than the primary store.
	Degraded bool `json:"degraded,omitempty"`
}

type Service struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	store  retention.Store
	logger *zap.SugaredLogger
}

func New(db *gorm.DB, l *ledger.Ledger, store retention.Store, logger *zap.SugaredLogger) *Service {
	return &Service{db: db, ledger: l, store: store, logger: logger}
}

// Trace assembles the view for one entity.
func (s *Service) Trace(ctx context.Context, kind models.EntityKind, id string) (TraceView, error) {
	view := TraceView{EntityKind: kind, EntityID: id}

	switch kind {
	case models.EntityProduct:
		var product models.Product
		if res := s.db.WithContext(ctx).First(&product, "external_id = ?", id); res.Error != nil {
			return TraceView{}, notFoundOr(res.Error)
		}
		view.Product = &product
		view.Status = product.Status
	case models.EntityShipment:
		var shipment models.Shipment
		if res := s.db.WithContext(ctx).First(&shipment, "external_id = ?", id); res.Error != nil {
			return TraceView{}, notFoundOr(res.Error)
		}
		view.Shipment = &shipment
		view.Status = shipment.Status
	default:
		return TraceView{}, ErrEntityNotFound
	}

	history, err := s.ledger.History(ctx, kind, id)
	if err != nil {
		return TraceView{}, err
	}
	view.History = history

	devices := []models.Device{}
	res := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, id).
		Find(&devices)
	if res.Error != nil {
		return TraceView{}, res.Error
	}

	view.Devices = make([]DeviceTrace, 0, len(devices))
	for _, device := range devices {
		dt, err := s.deviceTrace(ctx, device)
		if err != nil {
			return TraceView{}, err
		}
		view.Devices = append(view.Devices, dt)
	}
	view.Degraded = s.store.Degraded()
	return view, nil
}

// deviceTrace collects the live windows and alert state for one device.  The
// window for the device's own kind is always present; an environment gateway
// device also carries the other kinds it reports.
func (s *Service) deviceTrace(ctx context.Context, device models.Device) (DeviceTrace, error) {
	dt := DeviceTrace{
		Device:   device,
		Readings: map[models.DataKind][]models.TelemetryReading{},
	}
	for _, kind := range []models.DataKind{models.KindTemp, models.KindHumidity, models.KindGPS} {
		window, err := s.store.Window(ctx, kind, device.DeviceID, time.Time{})
		if err != nil {
			return DeviceTrace{}, err
		}
		if len(window) > 0 || kind == device.Kind {
			dt.Readings[kind] = window
		}
	}

	alerts, err := s.store.Alerts(ctx, device.DeviceID)
	if err != nil {
		return DeviceTrace{}, err
	}
	dt.Alerts = alerts
	return dt, nil
}

// Realtime returns the live window of one kind for one device, for the
// device-scoped readout endpoint.
func (s *Service) Realtime(ctx context.Context, deviceID string, kind models.DataKind, since time.Time) ([]models.TelemetryReading, error) {
	var device models.Device
	if res := s.db.WithContext(ctx).First(&device, "device_id = ?", deviceID); res.Error != nil {
		return nil, notFoundOr(res.Error)
	}
	return s.store.Window(ctx, kind, deviceID, since)
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEntityNotFound
	}
	return err
}
