package retention

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/projectTest192/FoodTrace/internal/models"
)

type redisStore struct {
	redis    *redis.Client
	logger   *zap.SugaredLogger
	horizons Horizons
}

// type check the interface is implemented.
var _ Store = &redisStore{}

// NewRedisStore stores each series as a redis sorted set scored by the
// capture timestamp.  Re-adding an identical member is a no-op in redis,
// which is what makes re-ingestion idempotent.
func NewRedisStore(client *redis.Client, logger *zap.SugaredLogger, horizons Horizons) Store {
	return &redisStore{
		redis:    client,
		logger:   logger,
		horizons: horizons,
	}
}

// member is the serialized sorted-set member.  ReceivedAt is deliberately not
// part of it: two ingestions of the same device reading differ only in
// receipt time and must collapse to one entry.
type member struct {
	CapturedAt int64   `json:"captured_at"`
	Value      float64 `json:"value,omitempty"`
	Latitude   float64 `json:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty"`
	RFIDTag    string  `json:"rfid_tag,omitempty"`
	OutOfRange bool    `json:"out_of_range,omitempty"`
}

func encodeMember(r models.TelemetryReading) (string, error) {
	data, err := json.Marshal(member{
		CapturedAt: r.CapturedAt.UnixNano(),
		Value:      r.Value,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		RFIDTag:    r.RFIDTag,
		OutOfRange: r.OutOfRange,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeMember(kind models.DataKind, deviceID, data string) (models.TelemetryReading, error) {
	var m member
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return models.TelemetryReading{}, err
	}
	return models.TelemetryReading{
		DeviceID:   deviceID,
		Kind:       kind,
		Value:      m.Value,
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		RFIDTag:    m.RFIDTag,
		CapturedAt: time.Unix(0, m.CapturedAt),
		OutOfRange: m.OutOfRange,
	}, nil
}

func (s *redisStore) Put(ctx context.Context, r models.TelemetryReading) error {
	key := keyFor(r.Kind, r.DeviceID)
	m, err := encodeMember(r)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(r.CapturedAt.UnixNano()),
			Member: m,
		})
		// incremental eviction, piggybacked on every insert
		if floor, bounded := s.horizons.horizonFloor(r.Kind, time.Now()); bounded {
			pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(floor.UnixNano(), 10))
		}
		return nil
	})
	return err
}

func (s *redisStore) Window(ctx context.Context, kind models.DataKind, deviceID string, since time.Time) ([]models.TelemetryReading, error) {
	key := keyFor(kind, deviceID)

	// clamp to the live horizon so not-yet-purged entries stay invisible
	if floor, bounded := s.horizons.horizonFloor(kind, time.Now()); bounded && floor.After(since) {
		since = floor
	}

	members, err := s.redis.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	readings := make([]models.TelemetryReading, 0, len(members))
	for _, m := range members {
		r, err := decodeMember(kind, deviceID, m)
		if err != nil {
			s.logger.Warnw("dropping undecodable retention entry", "key", key, "error", err)
			continue
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (s *redisStore) PutAlert(ctx context.Context, event models.AnomalyEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	field := string(event.Kind) + ":" + strconv.FormatInt(event.Timestamp.UnixNano(), 10)
	return s.redis.HSet(ctx, alertKey(event.DeviceID), field, string(data)).Err()
}

func (s *redisStore) Alerts(ctx context.Context, deviceID string) ([]models.AnomalyEvent, error) {
	fields, err := s.redis.HGetAll(ctx, alertKey(deviceID)).Result()
	if err != nil {
		return nil, err
	}
	events := make([]models.AnomalyEvent, 0, len(fields))
	for _, data := range fields {
		var e models.AnomalyEvent
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			s.logger.Warnw("dropping undecodable alert entry", "device_id", deviceID, "error", err)
			continue
		}
		events = append(events, e)
	}
	sortAlerts(events)
	return events, nil
}

func (s *redisStore) ClearAlerts(ctx context.Context, deviceID string) error {
	return s.redis.Del(ctx, alertKey(deviceID)).Err()
}

func (s *redisStore) Degraded() bool {
	return false
}
