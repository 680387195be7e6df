// The ingest package accepts raw telemetry from the broker (or HTTP gateway),
// validates it, and fans it out: readings to the retention store, derived
// anomaly events to the provenance ledger and the device alert list, and
// last-seen bookkeeping to the device registry.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/projectTest192/FoodTrace/internal/anomaly"
	"github.com/projectTest192/FoodTrace/internal/ledger"
	"github.com/projectTest192/FoodTrace/internal/models"
	"github.com/projectTest192/FoodTrace/internal/pubsub"
	"github.com/projectTest192/FoodTrace/internal/retention"
	"github.com/projectTest192/FoodTrace/internal/util"
	"github.com/projectTest192/FoodTrace/internal/util/cache"
)

type Config struct {
	// MessageTimeout bounds the handling of one broker message.
	MessageTimeout time.Duration
	// OfflineAfter is the quiet period after which a device is swept offline.
	OfflineAfter time.Duration
	// SweepInterval is how often the offline sweep runs.
	SweepInterval time.Duration
	// BindingTTL is how long a device binding lookup is served from cache.
	BindingTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		MessageTimeout: 5 * time.Second,
		OfflineAfter:   2 * time.Minute,
		SweepInterval:  30 * time.Second,
		BindingTTL:     time.Minute,
	}
}

type Ingestor struct {
	db       *gorm.DB
	store    retention.Store
	detector *anomaly.Detector
	ledger   *ledger.Ledger
	logger   *zap.SugaredLogger
	cfg      Config

	deviceLocks *cache.KeyedMutex[string]
	bindings    *cache.RWMutexTTLCache[string, binding]
}

func New(db *gorm.DB, store retention.Store, detector *anomaly.Detector, l *ledger.Ledger, logger *zap.SugaredLogger, cfg Config) *Ingestor {
	return &Ingestor{
		db:          db,
		store:       store,
		detector:    detector,
		ledger:      l,
		logger:      logger,
		cfg:         cfg,
		deviceLocks: cache.NewKeyedMutex[string](),
		bindings:    cache.NewRWMutexTTLCache[string, binding](cfg.BindingTTL),
	}
}

// Ingest handles one raw message.  Malformed payloads are rejected before any
// side effect; once decoded, every reading is stored even when out of range
// or from an unbound device.  ErrUnboundDevice reports the latter after the
// fact as a diagnostic.
func (ing *Ingestor) Ingest(ctx context.Context, topic string, payload []byte) error {
	now := time.Now().UTC()
	deviceID, readings, implied, err := decode(topic, payload, now)
	if err != nil {
		return err
	}

	bound, err := ing.touchDevice(ctx, deviceID, readings[0].Kind, implied, now)
	if err != nil {
		return err
	}

	for i := range readings {
		readings[i].ReceivedAt = now
		flagOutOfRange(&readings[i])

		// rfid reads are discrete scans, not a time series; they reach the
		// ledger in propagate and have no retention window to live in
		if readings[i].Kind != models.KindRFID {
			if err := ing.store.Put(ctx, readings[i]); err != nil {
				return err
			}
		}
		if err := ing.propagate(ctx, readings[i], bound); err != nil {
			return err
		}
	}

	if !bound.bound() {
		return ErrUnboundDevice
	}
	return nil
}

// propagate derives events from a stored reading: anomaly detection for
// bounded kinds, a scan record for rfid reads on bound devices.
func (ing *Ingestor) propagate(ctx context.Context, r models.TelemetryReading, bound binding) error {
	if event, alert := ing.detector.Evaluate(r); alert {
		event.EntityKind = bound.kind
		event.EntityID = bound.id
		if err := ing.store.PutAlert(ctx, event); err != nil {
			return err
		}
		if bound.bound() {
			if _, err := ing.ledger.Append(ctx, bound.kind, bound.id, models.EventAnomaly, map[string]any{
				"device_id": event.DeviceID,
				"kind":      string(event.Kind),
				"value":     event.Value,
				"threshold": event.Threshold,
				"timestamp": event.Timestamp,
			}); err != nil {
				return err
			}
		}
	}

	if r.Kind == models.KindRFID && bound.bound() {
		if _, err := ing.ledger.Append(ctx, bound.kind, bound.id, models.EventRFIDScan, map[string]any{
			"device_id": r.DeviceID,
			"tag":       r.RFIDTag,
			"timestamp": r.CapturedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

// touchDevice upserts the registry row for a device under its keyed lock:
// first sight creates it, every sight refreshes last-seen and online state,
// and a topic-implied binding attaches an unbound device.
func (ing *Ingestor) touchDevice(ctx context.Context, deviceID string, kind models.DataKind, implied binding, now time.Time) (binding, error) {
	var bound binding
	var err error
	ing.deviceLocks.With(deviceID, func() {
		var device models.Device
		res := ing.db.WithContext(ctx).First(&device, "device_id = ?", deviceID)
		switch {
		case errors.Is(res.Error, gorm.ErrRecordNotFound):
			device = models.Device{DeviceID: deviceID, Kind: kind}
		case res.Error != nil:
			err = res.Error
			return
		}

		device.LastSeenAt = &now
		if !device.Online {
			device.Online = true
			device.OnlineAt = &now
		}
		if !device.Bound() && implied.bound() {
			device.EntityKind = implied.kind
			device.EntityID = implied.id
		}

		if res := ing.db.WithContext(ctx).Save(&device); res.Error != nil {
			err = res.Error
			return
		}
		bound = binding{kind: device.EntityKind, id: device.EntityID}
		ing.bindings.Put(deviceID, bound)
	})
	return bound, err
}

// Bind attaches a device to a traceable entity, creating the device if it has
// not reported yet, and records the binding in the entity's provenance log.
func (ing *Ingestor) Bind(ctx context.Context, deviceID string, req models.BindDevice) (models.Device, error) {
	var device models.Device
	var err error
	ing.deviceLocks.With(deviceID, func() {
		res := ing.db.WithContext(ctx).First(&device, "device_id = ?", deviceID)
		switch {
		case errors.Is(res.Error, gorm.ErrRecordNotFound):
			device = models.Device{DeviceID: deviceID}
		case res.Error != nil:
			err = res.Error
			return
		}

		device.EntityKind = req.EntityKind
		device.EntityID = req.EntityID
		if req.Kind != "" {
			device.Kind = req.Kind
		}
		if req.Name != "" {
			device.Name = req.Name
		}

		if res := ing.db.WithContext(ctx).Save(&device); res.Error != nil {
			err = res.Error
			return
		}
		ing.bindings.Put(deviceID, binding{kind: device.EntityKind, id: device.EntityID})
	})
	if err != nil {
		return models.Device{}, err
	}

	if _, err := ing.ledger.Append(ctx, req.EntityKind, req.EntityID, models.EventRFIDBind, map[string]any{
		"device_id": deviceID,
		"kind":      string(device.Kind),
	}); err != nil {
		ing.logger.Errorw("device bound but provenance append failed",
			"device-id", deviceID, "error", err)
	}
	return device, nil
}

// Run subscribes to the telemetry topic spaces and handles messages until ctx
// is cancelled.  Each message runs on its own goroutine with a bounded
// timeout; in-flight handlers are drained before Run's goroutines exit.
func (ing *Ingestor) Run(ctx context.Context, broker pubsub.Broker, wg *sync.WaitGroup) error {
	sub, err := broker.Subscribe(ctx, TopicDeviceData, TopicShipmentEnvironment)
	if err != nil {
		return err
	}

	util.GoWithWaitGroup(wg, func() {
		defer sub.Close()
		var handlers sync.WaitGroup
		defer handlers.Wait()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-sub.Signal():
				util.GoWithWaitGroup(&handlers, func() {
					ing.handle(msg)
				})
			}
		}
	})

	util.GoWithWaitGroup(wg, func() {
		util.RunPeriodically(ctx, ing.cfg.SweepInterval, func() {
			ing.sweepOffline(context.Background())
		})
	})
	return nil
}

// handle runs off the parent context so an in-flight message finishes during
// shutdown drain instead of being cut mid-write.
func (ing *Ingestor) handle(msg pubsub.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), ing.cfg.MessageTimeout)
	defer cancel()

	err := ing.Ingest(ctx, msg.Topic, msg.Payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedPayload):
		ing.logger.Warnw("dropping malformed message", "topic", msg.Topic, "error", err)
	case errors.Is(err, ErrUnboundDevice):
		ing.logger.Debugw("telemetry from unbound device", "topic", msg.Topic)
	default:
		ing.logger.Errorw("message handling failed", "topic", msg.Topic, "error", err)
	}
}

// sweepOffline marks devices offline after the configured quiet period.
func (ing *Ingestor) sweepOffline(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-ing.cfg.OfflineAfter)
	res := ing.db.WithContext(ctx).Model(&models.Device{}).
		Where("online = ? AND last_seen_at < ?", true, cutoff).
		Updates(map[string]any{"online": false, "online_at": nil})
	if res.Error != nil {
		ing.logger.Errorw("offline sweep failed", "error", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		ing.logger.Infow("marked devices offline", "count", res.RowsAffected)
	}
}

// Binding resolves a device's entity attachment, serving repeat lookups from
// a short-lived cache.
func (ing *Ingestor) Binding(ctx context.Context, deviceID string) (models.EntityKind, string, error) {
	if b, found := ing.bindings.Get(deviceID); found {
		return b.kind, b.id, nil
	}
	var device models.Device
	if res := ing.db.WithContext(ctx).First(&device, "device_id = ?", deviceID); res.Error != nil {
		return "", "", res.Error
	}
	b := binding{kind: device.EntityKind, id: device.EntityID}
	ing.bindings.Put(deviceID, b)
	return b.kind, b.id, nil
}
