// The ledger package owns the per-entity provenance log.  Every record gets a
// strictly increasing sequence number and is persisted locally first; the
// external backend write is best effort and only contributes the opaque
// reference.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/projectTest192/FoodTrace/internal/database"
	"github.com/projectTest192/FoodTrace/internal/models"
	"github.com/projectTest192/FoodTrace/internal/util/cache"
)

const (
	defaultBackendTimeout = 5 * time.Second

	// attempts to claim a sequence number before giving up
	maxSequenceRetries = 3
)

type Ledger struct {
	db             *gorm.DB
	backend        Backend
	logger         *zap.SugaredLogger
	backendTimeout time.Duration

	// serializes sequence assignment per (kind, id)
	seqLocks *cache.KeyedMutex[string]
}

func New(db *gorm.DB, backend Backend, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{
		db:             db,
		backend:        backend,
		logger:         logger,
		backendTimeout: defaultBackendTimeout,
		seqLocks:       cache.NewKeyedMutex[string](),
	}
}

func entityKey(kind models.EntityKind, id string) string {
	return string(kind) + "/" + id
}

// Append records an event against an entity's provenance log.  The sequence
// number is assigned under a per-entity lock so concurrent appends in this
// process never race, and it is consumed even when the backend call fails:
// the record then lands with an empty LedgerRef instead of being dropped.
// A sequence collision with another replica shows up as a duplicate key on
// insert and is resolved by reassigning.
func (l *Ledger) Append(ctx context.Context, kind models.EntityKind, id string, eventType models.EventType, payload map[string]any) (models.ProvenanceRecord, error) {
	key := entityKey(kind, id)
	l.seqLocks.Lock(key)
	defer l.seqLocks.Unlock(key)

	var lastErr error
	for attempt := 0; attempt < maxSequenceRetries; attempt++ {
		seq, err := l.nextSequence(ctx, kind, id)
		if err != nil {
			return models.ProvenanceRecord{}, err
		}

		record := models.ProvenanceRecord{
			EntityKind: kind,
			EntityID:   id,
			SequenceNo: seq,
			EventType:  eventType,
			Payload:    payload,
			ProducedAt: time.Now().UTC(),
		}

		record.LedgerRef = l.invokeBackend(ctx, record)

		res := l.db.WithContext(ctx).Create(&record)
		if res.Error == nil {
			return record, nil
		}
		if !database.IsDuplicateError(res.Error) {
			return models.ProvenanceRecord{}, res.Error
		}
		lastErr = res.Error
	}
	return models.ProvenanceRecord{}, lastErr
}

func (l *Ledger) nextSequence(ctx context.Context, kind models.EntityKind, id string) (uint64, error) {
	var last models.ProvenanceRecord
	res := database.Silent(l.db).WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, id).
		Order("sequence_no DESC").
		First(&last)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return 1, nil
		}
		return 0, res.Error
	}
	return last.SequenceNo + 1, nil
}

// invokeBackend pushes the record to the external ledger network with a
// bounded timeout.  Failure is logged and surfaces only as an empty reference.
func (l *Ledger) invokeBackend(ctx context.Context, record models.ProvenanceRecord) string {
	ctx, cancel := context.WithTimeout(ctx, l.backendTimeout)
	defer cancel()

	payload, err := json.Marshal(record.Payload)
	if err != nil {
		l.logger.Warnw("provenance payload not serializable", "error", err)
		payload = []byte("{}")
	}
	ref, err := l.backend.Invoke(ctx, "RecordEvent", []string{
		string(record.EntityKind),
		record.EntityID,
		strconv.FormatUint(record.SequenceNo, 10),
		string(record.EventType),
		string(payload),
	})
	if err != nil {
		l.logger.Warnw("ledger backend invoke failed, recording without reference",
			"entity-kind", record.EntityKind,
			"entity-id", record.EntityID,
			"sequence-no", record.SequenceNo,
			"error", err,
		)
		return ""
	}
	return ref
}

// History returns every provenance record for an entity in sequence order.
// An entity with no records yields an empty history, not an error.
func (l *Ledger) History(ctx context.Context, kind models.EntityKind, id string) ([]models.ProvenanceRecord, error) {
	records := []models.ProvenanceRecord{}
	res := l.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, id).
		Order("sequence_no ASC").
		Find(&records)
	if res.Error != nil {
		return nil, res.Error
	}
	return records, nil
}
