// Package inventory orchestrates receiving, stock adjustments and serialized
// item status changes. Each operation runs in one unit of work, writes one
// audit entry, and publishes an event once committed.
package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/audit"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/models"
	"github.com/maisonfine/stockd/internal/reports"
	"github.com/maisonfine/stockd/internal/serialized"
	"github.com/maisonfine/stockd/internal/services/assets"
)

// Tx is the transactional view of the store handed to Store.Transact
type Tx interface {
	Product(ctx context.Context, id uint) (*models.Product, error)
	Variant(ctx context.Context, productID, variantID uint) (*models.ProductVariant, error)
	ItemExists(ctx context.Context, uid string) (bool, error)
	CreateItem(ctx context.Context, item *models.SerializedItem) error
	// LockItem loads an item and holds its row until the transaction ends
	LockItem(ctx context.Context, uid string) (*models.SerializedItem, error)
	SaveItemStatus(ctx context.Context, item *models.SerializedItem) error
	RecordMovement(ctx context.Context, e ledger.Entry) (uint, error)
	AdjustAggregate(ctx context.Context, productID uint, variantID *uint, quantityDelta int, weightDelta *float64) (ledger.Level, error)
}

// Store persists inventory state. Transact commits when fn returns nil and
// rolls back otherwise.
type Store interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
	ListItems(ctx context.Context, f serialized.Filter) ([]models.SerializedItem, int64, error)
	FindItem(ctx context.Context, uid string) (*models.SerializedItem, error)
	ListMovements(ctx context.Context, f ledger.Filter) ([]models.StockMovement, int64, error)
	ProductWithVariants(ctx context.Context, id uint) (*models.Product, error)
}

// Reporter answers aggregate read queries
type Reporter interface {
	StatusCounts(ctx context.Context, productID uint) ([]reports.StatusCount, error)
	Reconcile(ctx context.Context, productID uint) (reports.Reconciliation, error)
}

// AuditRecorder stores audit entries without failing the caller
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// Notifier fans events out to live listeners
type Notifier interface {
	Broadcast(v interface{})
}

// Cache stores serialized read views
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Deps wires a Service. Everything but Store and Assets is optional.
type Deps struct {
	Store    Store
	Assets   assets.Generator
	Labels   LabelPrinter
	Reports  Reporter
	Audit    AuditRecorder
	Notifier Notifier
	Cache    Cache
	CacheKey func(productID uint) string
	Logger   *zap.Logger
}

// Service is the inventory orchestrator
type Service struct {
	store    Store
	assets   assets.Generator
	labels   LabelPrinter
	reports  Reporter
	audit    AuditRecorder
	notifier Notifier
	cache    Cache
	cacheKey func(productID uint) string
	log      *zap.Logger

	newUID func(prefix string) string
	now    func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		assets:   d.Assets,
		labels:   d.Labels,
		reports:  d.Reports,
		audit:    d.Audit,
		notifier: d.Notifier,
		cache:    d.Cache,
		cacheKey: d.CacheKey,
		log:      d.Logger,
		newUID:   NewItemUID,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.cacheKey == nil {
		s.cacheKey = defaultCacheKey
	}
	return s
}

// NewItemUID builds an identifier such as TRF-0A1B2C3D4E5F from a product prefix
func NewItemUID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return prefix + "-" + strings.ToUpper(suffix)
}

// normalize makes every failure a typed error
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	return apperr.Wrap(apperr.ErrPersistence, err, "inventory operation failed")
}

// committed runs the post-commit side effects. Neither can fail the operation.
func (s *Service) committed(ctx context.Context, ev InventoryEvent) {
	if s.cache != nil {
		if err := s.cache.Delete(context.WithoutCancel(ctx), s.cacheKey(ev.ProductID)); err != nil {
			s.log.Warn("failed to invalidate inventory cache", zap.Uint("product_id", ev.ProductID), zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.Broadcast(ev)
	}
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	s.audit.Record(ctx, e)
}

func uintPtrValue(p *uint) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
