package retention

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/projectTest192/FoodTrace/internal/models"
)

// Fallback serves from the redis store and flips to an in-process store with
// the same eviction policy when redis is unreachable.  Degraded mode is a
// resilience measure for local development and broker outages, not a
// correctness violation; callers can observe it through Degraded().
type Fallback struct {
	primary   Store
	secondary Store
	redis     *redis.Client
	logger    *zap.SugaredLogger
	degraded  atomic.Bool
}

// type check the interface is implemented.
var _ Store = &Fallback{}

func NewFallback(client *redis.Client, logger *zap.SugaredLogger, horizons Horizons) *Fallback {
	return &Fallback{
		primary:   NewRedisStore(client, logger, horizons),
		secondary: NewMemStore(horizons),
		redis:     client,
		logger:    logger,
	}
}

func (f *Fallback) active() Store {
	if f.degraded.Load() {
		return f.secondary
	}
	return f.primary
}

func (f *Fallback) degrade(op string, err error) {
	if f.degraded.CompareAndSwap(false, true) {
		f.logger.Warnw("retention store degraded to in-process fallback", "op", op, "error", err)
	}
}

// Probe pings redis and restores primary mode when it answers.  Run it
// periodically; freshly restored mode starts with an empty remote window,
// which refills as new readings arrive.
func (f *Fallback) Probe(ctx context.Context) {
	if !f.degraded.Load() {
		return
	}
	if err := f.redis.Ping(ctx).Err(); err != nil {
		return
	}
	f.degraded.Store(false)
	f.logger.Info("retention store restored to redis")
}

func (f *Fallback) Put(ctx context.Context, r models.TelemetryReading) error {
	if err := f.active().Put(ctx, r); err != nil {
		f.degrade("put", err)
		return f.secondary.Put(ctx, r)
	}
	return nil
}

func (f *Fallback) Window(ctx context.Context, kind models.DataKind, deviceID string, since time.Time) ([]models.TelemetryReading, error) {
	readings, err := f.active().Window(ctx, kind, deviceID, since)
	if err != nil {
		f.degrade("window", err)
		return f.secondary.Window(ctx, kind, deviceID, since)
	}
	return readings, nil
}

func (f *Fallback) PutAlert(ctx context.Context, event models.AnomalyEvent) error {
	if err := f.active().PutAlert(ctx, event); err != nil {
		f.degrade("put-alert", err)
		return f.secondary.PutAlert(ctx, event)
	}
	return nil
}

func (f *Fallback) Alerts(ctx context.Context, deviceID string) ([]models.AnomalyEvent, error) {
	events, err := f.active().Alerts(ctx, deviceID)
	if err != nil {
		f.degrade("alerts", err)
		return f.secondary.Alerts(ctx, deviceID)
	}
	return events, nil
}

func (f *Fallback) ClearAlerts(ctx context.Context, deviceID string) error {
	if err := f.active().ClearAlerts(ctx, deviceID); err != nil {
		f.degrade("clear-alerts", err)
		return f.secondary.ClearAlerts(ctx, deviceID)
	}
	return nil
}

func (f *Fallback) Degraded() bool {
	return f.degraded.Load()
}
