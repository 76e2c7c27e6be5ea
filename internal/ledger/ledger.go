// Package ledger stores the append-only stock movement log and the aggregate
// counters on products and variants. Recording a movement never touches the
// counters; callers pair Record and Adjust inside one transaction.
package ledger

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/models"
)

// Entry describes a movement to record
type Entry struct {
	ProductID        uint
	VariantID        *uint
	SerializedItemID *uint
	Type             models.MovementType
	QuantityDelta    int
	WeightDeltaGrams *float64
	Reason           string
	ActorID          *uint
	OrderID          *uint
	Notes            string
	At               time.Time
}

// Validate checks the parts of an entry that do not need the database
func (e Entry) Validate() error {
	if !e.Type.Valid() {
		return apperr.New(apperr.ErrInvalidMovementType, "unknown movement type %q", e.Type)
	}
	if e.ProductID == 0 {
		return apperr.New(apperr.ErrProductNotFound, "movement requires a product")
	}
	return nil
}

// Movement converts the entry into its ledger row
func (e Entry) Movement() *models.StockMovement {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &models.StockMovement{
		ProductID:         e.ProductID,
		VariantID:         e.VariantID,
		SerializedItemID:  e.SerializedItemID,
		MovementType:      e.Type,
		QuantityChange:    e.QuantityDelta,
		WeightChangeGrams: e.WeightDeltaGrams,
		Reason:            strings.TrimSpace(e.Reason),
		RelatedOrderID:    e.OrderID,
		RelatedUserID:     e.ActorID,
		Notes:             e.Notes,
		MovementDate:      at,
	}
}

// Level is an aggregate counter after an adjustment
type Level struct {
	Quantity    int     `json:"quantity"`
	WeightGrams float64 `json:"weightGrams"`
}

// Filter narrows a movement listing
type Filter struct {
	ProductID        uint
	VariantID        *uint
	SerializedItemID *uint
	Type             models.MovementType
	From             *time.Time
	To               *time.Time
	Page             int
	PageSize         int
}

// Repository is the gorm-backed ledger. Bind it to a transaction with New(tx).
type Repository struct {
	db *gorm.DB
}

// New creates a ledger repository on db, which may be a transaction
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts one movement and returns its id
func (r *Repository) Record(ctx context.Context, e Entry) (uint, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", e.ProductID).Count(&count).Error; err != nil {
		return 0, apperr.Wrap(apperr.ErrPersistence, err, "check product %d", e.ProductID)
	}
	if count == 0 {
		return 0, apperr.New(apperr.ErrProductNotFound, "product %d not found", e.ProductID)
	}

	m := e.Movement()
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return 0, apperr.Wrap(apperr.ErrPersistence, err, "record %s movement", e.Type)
	}
	return m.ID, nil
}

// Adjust applies a delta to the variant counter when variantID is set, otherwise
// to the product counter. The update is a single UPDATE ... SET x = x + delta so
// concurrent adjustments on the same row serialize on the row lock. No floor is
// enforced: the returned level may be negative.
func (r *Repository) Adjust(ctx context.Context, productID uint, variantID *uint, quantityDelta int, weightDelta *float64) (Level, error) {
	updates := map[string]interface{}{
		"stock_quantity": gorm.Expr("stock_quantity + ?", quantityDelta),
		"updated_at":     time.Now().UTC(),
	}
	if weightDelta != nil {
		updates["stock_weight_grams"] = gorm.Expr("stock_weight_grams + ?", *weightDelta)
	}
	returning := clause.Returning{Columns: []clause.Column{{Name: "stock_quantity"}, {Name: "stock_weight_grams"}}}

	if variantID != nil {
		var v models.ProductVariant
		res := r.db.WithContext(ctx).Model(&v).Clauses(returning).
			Where("id = ? AND product_id = ?", *variantID, productID).
			Updates(updates)
		if res.Error != nil {
			return Level{}, apperr.Wrap(apperr.ErrPersistence, res.Error, "adjust variant %d", *variantID)
		}
		if res.RowsAffected == 0 {
			return Level{}, apperr.New(apperr.ErrVariantNotFound, "variant %d of product %d not found", *variantID, productID)
		}
		return Level{Quantity: v.StockQuantity, WeightGrams: v.StockWeightGrams}, nil
	}

	var p models.Product
	res := r.db.WithContext(ctx).Model(&p).Clauses(returning).
		Where("id = ?", productID).
		Updates(updates)
	if res.Error != nil {
		return Level{}, apperr.Wrap(apperr.ErrPersistence, res.Error, "adjust product %d", productID)
	}
	if res.RowsAffected == 0 {
		return Level{}, apperr.New(apperr.ErrProductNotFound, "product %d not found", productID)
	}
	return Level{Quantity: p.StockQuantity, WeightGrams: p.StockWeightGrams}, nil
}

// List returns movements newest first with the total match count
func (r *Repository) List(ctx context.Context, f Filter) ([]models.StockMovement, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.StockMovement{})
	if f.ProductID != 0 {
		query = query.Where("product_id = ?", f.ProductID)
	}
	if f.VariantID != nil {
		query = query.Where("variant_id = ?", *f.VariantID)
	}
	if f.SerializedItemID != nil {
		query = query.Where("serialized_item_id = ?", *f.SerializedItemID)
	}
	if f.Type != "" {
		query = query.Where("movement_type = ?", f.Type)
	}
	if f.From != nil {
		query = query.Where("movement_date >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("movement_date < ?", *f.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.ErrPersistence, err, "count movements")
	}

	page, size := Paginate(f.Page, f.PageSize)
	var movements []models.StockMovement
	err := query.Order("movement_date DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&movements).Error
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.ErrPersistence, err, "list movements")
	}
	return movements, total, nil
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Paginate normalizes page parameters
func Paginate(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
