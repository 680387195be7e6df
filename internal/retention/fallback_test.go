package retention

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/projectTest192/FoodTrace/internal/models"
)

// a client pointed at a port nothing listens on, with short timeouts so the
// first operation fails fast
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestFallbackDegradesToMemory(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t).Sugar()

	f := NewFallback(unreachableRedis(), logger, DefaultHorizons())
	require.False(f.Degraded())

	r := tempReading("D1", 22, time.Now())
	require.NoError(f.Put(ctx, r))
	require.True(f.Degraded())

	// the reading landed in the in-process store and stays queryable
	window, err := f.Window(ctx, models.KindTemp, "D1", time.Time{})
	require.NoError(err)
	require.Len(window, 1)
	require.Equal(22.0, window[0].Value)

	// probing an unreachable redis keeps degraded mode
	f.Probe(ctx)
	require.True(f.Degraded())
}
