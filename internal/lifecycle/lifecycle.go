// The lifecycle package owns the legal status transitions for traceable
// entities.  The transition table is the single source of truth; nothing else
// in the tree writes an entity's status column.
package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/projectTest192/FoodTrace/internal/ledger"
	"github.com/projectTest192/FoodTrace/internal/models"
	"github.com/projectTest192/FoodTrace/internal/util/cache"
)

// Actor roles recognized by the role gate.  Identity resolution is the
// caller's concern; the machine only compares the resolved role string.
const (
	RoleProducer    = "producer"
	RoleDistributor = "distributor"
	RoleRetailer    = "retailer"
	RoleConsumer    = "consumer"
)

// IllegalTransitionError reports a requested edge missing from the table.
// The entity is left unchanged.
type IllegalTransitionError struct {
	Kind    models.EntityKind
	From    models.Status
	To      models.Status
	Allowed []models.Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition %s -> %s (allowed: %v)", e.Kind, e.From, e.To, e.Allowed)
}

// ForbiddenError reports an actor role not permitted to request a transition.
type ForbiddenError struct {
	Role     string
	Required string
	To       models.Status
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %q may not set status %s, requires %q", e.Role, e.To, e.Required)
}

type edge struct {
	kind models.EntityKind
	from models.Status
}

type gate struct {
	kind models.EntityKind
	to   models.Status
}

// transitions is the static table of legal edges per entity kind.
var transitions = map[edge][]models.Status{
	{models.EntityProduct, models.StatusCreated}: {models.StatusActive},
	{models.EntityProduct, models.StatusActive}:  {models.StatusSold, models.StatusInactive},
	{models.EntityProduct, models.StatusSold}:    {models.StatusInactive},

	{models.EntityShipment, models.StatusCreated}:   {models.StatusInTransit, models.StatusCancelled},
	{models.EntityShipment, models.StatusInTransit}: {models.StatusDelivered},
}

// roleGates restricts who may move an entity into a given status.  The gate
// is checked before the table lookup, so a wrong role is rejected even for an
// edge that would not have been legal anyway.
var roleGates = map[gate]string{
	{models.EntityShipment, models.StatusDelivered}: RoleRetailer,
}

type Machine struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	logger *zap.SugaredLogger

	// serializes transitions per entity so check-then-write never races
	locks *cache.KeyedMutex[string]
}

func New(db *gorm.DB, l *ledger.Ledger, logger *zap.SugaredLogger) *Machine {
	return &Machine{
		db:     db,
		ledger: l,
		logger: logger,
		locks:  cache.NewKeyedMutex[string](),
	}
}

// Transition validates and applies a status change, then records it in the
// entity's provenance log.  A ledger backend outage does not roll the status
// back; the provenance record is still appended locally.  The entity is
// looked up by its external id.
func (m *Machine) Transition(ctx context.Context, kind models.EntityKind, id string, requested models.Status, actorRole string) (models.Status, error) {
	key := string(kind) + "/" + id
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	if required, gated := roleGates[gate{kind, requested}]; gated && actorRole != required {
		return "", &ForbiddenError{Role: actorRole, Required: required, To: requested}
	}

	current, err := m.currentStatus(ctx, kind, id)
	if err != nil {
		return "", err
	}

	if !edgeAllowed(kind, current, requested) {
		return "", &IllegalTransitionError{
			Kind:    kind,
			From:    current,
			To:      requested,
			Allowed: transitions[edge{kind, current}],
		}
	}

	if err := m.updateStatus(ctx, kind, id, requested); err != nil {
		return "", err
	}

	if _, err := m.ledger.Append(ctx, kind, id, models.EventStatusChange, map[string]any{
		"from":       string(current),
		"to":         string(requested),
		"actor_role": actorRole,
	}); err != nil {
		m.logger.Errorw("status changed but provenance append failed",
			"entity-kind", kind,
			"entity-id", id,
			"to", requested,
			"error", err,
		)
	}
	return requested, nil
}

func edgeAllowed(kind models.EntityKind, from, to models.Status) bool {
	for _, allowed := range transitions[edge{kind, from}] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (m *Machine) currentStatus(ctx context.Context, kind models.EntityKind, id string) (models.Status, error) {
	switch kind {
	case models.EntityProduct:
		var product models.Product
		if res := m.db.WithContext(ctx).First(&product, "external_id = ?", id); res.Error != nil {
			return "", res.Error
		}
		return product.Status, nil
	case models.EntityShipment:
		var shipment models.Shipment
		if res := m.db.WithContext(ctx).First(&shipment, "external_id = ?", id); res.Error != nil {
			return "", res.Error
		}
		return shipment.Status, nil
	default:
		return "", gorm.ErrRecordNotFound
	}
}

func (m *Machine) updateStatus(ctx context.Context, kind models.EntityKind, id string, to models.Status) error {
	var model any
	switch kind {
	case models.EntityProduct:
		model = &models.Product{}
	case models.EntityShipment:
		model = &models.Shipment{}
	default:
		return gorm.ErrRecordNotFound
	}
	res := m.db.WithContext(ctx).Model(model).
		Where("external_id = ?", id).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
