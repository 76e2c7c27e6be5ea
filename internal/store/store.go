// Package store implements the inventory service's Store on gorm
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/models"
	"github.com/maisonfine/stockd/internal/serialized"
	"github.com/maisonfine/stockd/internal/services/inventory"
)

// Store runs inventory units of work in database transactions
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transact commits when fn returns nil and rolls back otherwise
func (s *Store) Transact(ctx context.Context, fn func(tx inventory.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(newTx(db))
	})
}

func (s *Store) ListItems(ctx context.Context, f serialized.Filter) ([]models.SerializedItem, int64, error) {
	return serialized.New(s.db).List(ctx, f)
}

func (s *Store) FindItem(ctx context.Context, uid string) (*models.SerializedItem, error) {
	return serialized.New(s.db).FindByUID(ctx, uid)
}

func (s *Store) ListMovements(ctx context.Context, f ledger.Filter) ([]models.StockMovement, int64, error) {
	return ledger.New(s.db).List(ctx, f)
}

func (s *Store) ProductWithVariants(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&p, id).Error
	if err != nil {
		return nil, notFound(err, apperr.New(apperr.ErrProductNotFound, "product %d not found", id), "load product %d", id)
	}
	return &p, nil
}

type tx struct {
	db     *gorm.DB
	ledger *ledger.Repository
	items  *serialized.Repository
}

func newTx(db *gorm.DB) *tx {
	return &tx{db: db, ledger: ledger.New(db), items: serialized.New(db)}
}

func (t *tx) Product(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := t.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, apperr.New(apperr.ErrProductNotFound, "product %d not found", id), "load product %d", id)
	}
	return &p, nil
}

func (t *tx) Variant(ctx context.Context, productID, variantID uint) (*models.ProductVariant, error) {
	var v models.ProductVariant
	err := t.db.WithContext(ctx).Where("id = ? AND product_id = ?", variantID, productID).First(&v).Error
	if err != nil {
		return nil, notFound(err, apperr.New(apperr.ErrVariantNotFound, "variant %d of product %d not found", variantID, productID), "load variant %d", variantID)
	}
	return &v, nil
}

func (t *tx) ItemExists(ctx context.Context, uid string) (bool, error) {
	return t.items.Exists(ctx, uid)
}

func (t *tx) CreateItem(ctx context.Context, item *models.SerializedItem) error {
	return t.items.Create(ctx, item)
}

func (t *tx) LockItem(ctx context.Context, uid string) (*models.SerializedItem, error) {
	return t.items.LockByUID(ctx, uid)
}

func (t *tx) SaveItemStatus(ctx context.Context, item *models.SerializedItem) error {
	return t.items.SaveStatus(ctx, item)
}

func (t *tx) RecordMovement(ctx context.Context, e ledger.Entry) (uint, error) {
	return t.ledger.Record(ctx, e)
}

func (t *tx) AdjustAggregate(ctx context.Context, productID uint, variantID *uint, quantityDelta int, weightDelta *float64) (ledger.Level, error) {
	return t.ledger.Adjust(ctx, productID, variantID, quantityDelta, weightDelta)
}

func notFound(err error, missing *apperr.Error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return missing
	}
	return apperr.Wrap(apperr.ErrPersistence, err, format, args...)
}

var _ inventory.Store = (*Store)(nil)
