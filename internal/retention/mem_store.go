package retention

import (
	"context"
	"sort"
	"time"

	"github.com/projectTest192/FoodTrace/internal/models"
	"github.com/projectTest192/FoodTrace/internal/util/cache"
)

type series struct {
	// readings ordered by CapturedAt ascending
	readings []models.TelemetryReading
}

type memStore struct {
	horizons Horizons
	data     *cache.RWMutexCache[string, *series]
	alerts   *cache.RWMutexCache[string, []models.AnomalyEvent]
	locks    *cache.KeyedMutex[string]
}

// type check the interface is implemented.
var _ Store = &memStore{}

// NewMemStore is the in-process twin of the redis store.  It backs local
// development and the degraded mode of the fallback wrapper.  Inserts for
// different keys proceed in parallel; inserts for the same key are
// serialized.
func NewMemStore(horizons Horizons) Store {
	return &memStore{
		horizons: horizons,
		data:     cache.NewRWMutexCache[string, *series](),
		alerts:   cache.NewRWMutexCache[string, []models.AnomalyEvent](),
		locks:    cache.NewKeyedMutex[string](),
	}
}

func (s *memStore) Put(ctx context.Context, r models.TelemetryReading) error {
	key := keyFor(r.Kind, r.DeviceID)

	s.locks.With(key, func() {
		ser, found := s.data.Get(key)
		if !found {
			ser = &series{}
			s.data.Put(key, ser)
		}

		// binary search by capture time; same (deviceId, capturedAt) is a no-op
		i := sort.Search(len(ser.readings), func(i int) bool {
			return !ser.readings[i].CapturedAt.Before(r.CapturedAt)
		})
		if i < len(ser.readings) && ser.readings[i].CapturedAt.Equal(r.CapturedAt) {
			return
		}
		ser.readings = append(ser.readings, models.TelemetryReading{})
		copy(ser.readings[i+1:], ser.readings[i:])
		ser.readings[i] = r

		// evict from the front, amortized against inserts
		if floor, bounded := s.horizons.horizonFloor(r.Kind, time.Now()); bounded {
			n := 0
			for n < len(ser.readings) && ser.readings[n].CapturedAt.Before(floor) {
				n++
			}
			if n > 0 {
				ser.readings = append(ser.readings[:0:0], ser.readings[n:]...)
			}
		}
	})
	return nil
}

func (s *memStore) Window(ctx context.Context, kind models.DataKind, deviceID string, since time.Time) ([]models.TelemetryReading, error) {
	key := keyFor(kind, deviceID)

	if floor, bounded := s.horizons.horizonFloor(kind, time.Now()); bounded && floor.After(since) {
		since = floor
	}

	var out []models.TelemetryReading
	s.locks.With(key, func() {
		ser, found := s.data.Get(key)
		if !found {
			out = []models.TelemetryReading{}
			return
		}
		i := sort.Search(len(ser.readings), func(i int) bool {
			return !ser.readings[i].CapturedAt.Before(since)
		})
		out = append([]models.TelemetryReading{}, ser.readings[i:]...)
	})
	return out, nil
}

func (s *memStore) PutAlert(ctx context.Context, event models.AnomalyEvent) error {
	key := alertKey(event.DeviceID)
	s.locks.With(key, func() {
		events, _ := s.alerts.Get(key)
		// keyed by timestamp like the redis hash, so re-raising is a no-op
		for _, e := range events {
			if e.Timestamp.Equal(event.Timestamp) && e.Kind == event.Kind {
				return
			}
		}
		s.alerts.Put(key, append(events, event))
	})
	return nil
}

func (s *memStore) Alerts(ctx context.Context, deviceID string) ([]models.AnomalyEvent, error) {
	events, _ := s.alerts.Get(alertKey(deviceID))
	out := append([]models.AnomalyEvent{}, events...)
	sortAlerts(out)
	return out, nil
}

func (s *memStore) ClearAlerts(ctx context.Context, deviceID string) error {
	s.alerts.Delete(alertKey(deviceID))
	return nil
}

func (s *memStore) Degraded() bool {
	return false
}

func sortAlerts(events []models.AnomalyEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
