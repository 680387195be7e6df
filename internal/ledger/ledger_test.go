package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/projectTest192/FoodTrace/internal/database"
	"github.com/projectTest192/FoodTrace/internal/models"
)

// fakeBackend records invocations and hands out deterministic references.
type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	failing bool
}

func (f *fakeBackend) Invoke(ctx context.Context, function string, args []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", ErrUnavailable
	}
	f.calls++
	return fmt.Sprintf("tx-%d", f.calls), nil
}

func (f *fakeBackend) Query(ctx context.Context, function string, args []string) (json.RawMessage, error) {
	return nil, ErrUnavailable
}

func newTestLedger(t *testing.T, backend Backend) *Ledger {
	logger := zaptest.NewLogger(t).Sugar()
	db, err := database.NewTestDatabase(logger)
	require.NoError(t, err)
	return New(db, backend, logger)
}

func TestAppendAssignsSequence(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := newTestLedger(t, &fakeBackend{})

	first, err := l.Append(ctx, models.EntityProduct, "P-seq", models.EventStatusChange, map[string]any{"from": "created", "to": "active"})
	require.NoError(err)
	require.Equal(uint64(1), first.SequenceNo)
	require.Equal("tx-1", first.LedgerRef)

	second, err := l.Append(ctx, models.EntityProduct, "P-seq", models.EventAnomaly, map[string]any{"value": 35.0})
	require.NoError(err)
	require.Equal(uint64(2), second.SequenceNo)

	// another entity has its own counter
	other, err := l.Append(ctx, models.EntityShipment, "SH-seq", models.EventStatusChange, nil)
	require.NoError(err)
	require.Equal(uint64(1), other.SequenceNo)

	history, err := l.History(ctx, models.EntityProduct, "P-seq")
	require.NoError(err)
	require.Len(history, 2)
	require.Equal(models.EventStatusChange, history[0].EventType)
	require.Equal("active", history[0].Payload["to"])
	require.Equal(models.EventAnomaly, history[1].EventType)
}

func TestAppendConcurrent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := newTestLedger(t, &fakeBackend{})

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Append(ctx, models.EntityProduct, "P-conc", models.EventSensorData, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}

	history, err := l.History(ctx, models.EntityProduct, "P-conc")
	require.NoError(err)
	require.Len(history, writers)
	for i, record := range history {
		require.Equal(uint64(i+1), record.SequenceNo)
	}
}

func TestAppendSurvivesBackendFailure(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	backend := &fakeBackend{}
	l := newTestLedger(t, backend)

	_, err := l.Append(ctx, models.EntityProduct, "P-fail", models.EventStatusChange, nil)
	require.NoError(err)

	backend.failing = true
	degraded, err := l.Append(ctx, models.EntityProduct, "P-fail", models.EventAnomaly, nil)
	require.NoError(err)
	require.Equal(uint64(2), degraded.SequenceNo)
	require.Empty(degraded.LedgerRef)

	// the sequence number was consumed and the record is in the history
	backend.failing = false
	recovered, err := l.Append(ctx, models.EntityProduct, "P-fail", models.EventSensorData, nil)
	require.NoError(err)
	require.Equal(uint64(3), recovered.SequenceNo)
	require.NotEmpty(recovered.LedgerRef)

	history, err := l.History(ctx, models.EntityProduct, "P-fail")
	require.NoError(err)
	require.Len(history, 3)
	require.Empty(history[1].LedgerRef)
}

func TestHistoryEmpty(t *testing.T) {
	require := require.New(t)
	l := newTestLedger(t, &fakeBackend{})

	history, err := l.History(context.Background(), models.EntityProduct, "missing")
	require.NoError(err)
	require.Empty(history)
}
