// Package reports runs read-only aggregate queries over the inventory tables
package reports

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/models"
)

// StatusCount is the number of serialized items of a product in one status
type StatusCount struct {
	Status models.ItemStatus `db:"status" json:"status"`
	Count  int               `db:"count" json:"count"`
}

// Line compares one aggregate counter with the sum of its ledger entries.
// VariantID is nil for the product-level counter.
type Line struct {
	ProductID uint  `db:"product_id" json:"productId"`
	VariantID *uint `db:"variant_id" json:"variantId,omitempty"`
	Aggregate int   `db:"aggregate_quantity" json:"aggregateQuantity"`
	LedgerSum int   `db:"ledger_sum" json:"ledgerSum"`
	Drift     int   `db:"-" json:"drift"`
}

// Reconciliation is the ledger check for one product
type Reconciliation struct {
	ProductID uint   `json:"productId"`
	Lines     []Line `json:"lines"`
	Balanced  bool   `json:"balanced"`
}

// Summarize computes drift per line
func Summarize(productID uint, lines []Line) Reconciliation {
	r := Reconciliation{ProductID: productID, Lines: make([]Line, 0, len(lines)), Balanced: true}
	for _, l := range lines {
		l.Drift = l.Aggregate - l.LedgerSum
		if l.Drift != 0 {
			r.Balanced = false
		}
		r.Lines = append(r.Lines, l)
	}
	return r
}

const statusCountsQuery = `
	SELECT status, COUNT(*) AS count
	FROM serialized_inventory_items
	WHERE product_id = $1
	GROUP BY status
	ORDER BY status`

const reconcileQuery = `
	SELECT p.id AS product_id,
	       NULL::bigint AS variant_id,
	       p.stock_quantity AS aggregate_quantity,
	       COALESCE((SELECT SUM(m.quantity_change) FROM stock_movements m
	                 WHERE m.product_id = p.id AND m.variant_id IS NULL), 0)::bigint AS ledger_sum
	FROM products p
	WHERE p.id = $1
	UNION ALL
	SELECT v.product_id,
	       v.id,
	       v.stock_quantity,
	       COALESCE(SUM(m.quantity_change), 0)::bigint
	FROM product_variants v
	LEFT JOIN stock_movements m ON m.variant_id = v.id
	WHERE v.product_id = $1
	GROUP BY v.id, v.product_id, v.stock_quantity
	ORDER BY variant_id NULLS FIRST`

// Reporter runs report queries with sqlx
type Reporter struct {
	db *sqlx.DB
}

func NewReporter(db *sqlx.DB) *Reporter {
	return &Reporter{db: db}
}

// StatusCounts groups a product's serialized items by status
func (r *Reporter) StatusCounts(ctx context.Context, productID uint) ([]StatusCount, error) {
	counts := []StatusCount{}
	if err := r.db.SelectContext(ctx, &counts, statusCountsQuery, productID); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "count items of product %d", productID)
	}
	return counts, nil
}

// Reconcile compares every counter of a product with its ledger
func (r *Reporter) Reconcile(ctx context.Context, productID uint) (Reconciliation, error) {
	var lines []Line
	if err := r.db.SelectContext(ctx, &lines, reconcileQuery, productID); err != nil {
		return Reconciliation{}, apperr.Wrap(apperr.ErrPersistence, err, "reconcile product %d", productID)
	}
	if len(lines) == 0 {
		return Reconciliation{}, apperr.New(apperr.ErrProductNotFound, "product %d not found", productID)
	}
	return Summarize(productID, lines), nil
}
