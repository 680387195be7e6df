package handlers

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/projectTest192/FoodTrace/internal/database"
	"github.com/projectTest192/FoodTrace/internal/ingest"
	"github.com/projectTest192/FoodTrace/internal/ledger"
	"github.com/projectTest192/FoodTrace/internal/lifecycle"
	"github.com/projectTest192/FoodTrace/internal/retention"
	"github.com/projectTest192/FoodTrace/internal/trace"
)

// ActorRoleHeader carries the caller's resolved role.  Identity resolution
// happens upstream of this API; handlers only read the result.
const ActorRoleHeader = "X-Actor-Role"

type API struct {
	logger      *zap.SugaredLogger
	db          *gorm.DB
	transaction database.TransactionFunc
	store       retention.Store
	ledger      *ledger.Ledger
	machine     *lifecycle.Machine
	tracer      *trace.Service
	ingestor    *ingest.Ingestor
}

func NewAPI(
	logger *zap.SugaredLogger,
	db *gorm.DB,
	store retention.Store,
	l *ledger.Ledger,
	machine *lifecycle.Machine,
	tracer *trace.Service,
	ingestor *ingest.Ingestor,
) (*API, error) {
	transactionFunc, err := database.GetTransactionFunc(db)
	if err != nil {
		return nil, err
	}
	return &API{
		logger:      logger,
		db:          db,
		transaction: transactionFunc,
		store:       store,
		ledger:      l,
		machine:     machine,
		tracer:      tracer,
		ingestor:    ingestor,
	}, nil
}
