// Package serialized stores individually tracked units and enforces their
// status rules. Notes are a cumulative trail: transitions append, never overwrite.
package serialized

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/models"
)

// Change describes who changed a status and why
type Change struct {
	ActorID *uint
	Reason  string
	At      time.Time
}

// TransitionNote renders the audit line appended to an item's notes
func TransitionNote(from, to models.ItemStatus, c Change) string {
	actor := "system"
	if c.ActorID != nil {
		actor = fmt.Sprintf("admin #%d", *c.ActorID)
	}
	line := fmt.Sprintf("[%s] %s: %s -> %s", c.At.UTC().Format(time.RFC3339), actor, from, to)
	if reason := strings.TrimSpace(c.Reason); reason != "" {
		line += " (" + reason + ")"
	}
	return line
}

// AppendNote adds a line to an existing notes trail
func AppendNote(notes, line string) string {
	if strings.TrimSpace(notes) == "" {
		return line
	}
	return strings.TrimRight(notes, "\n") + "\n" + line
}

// Apply moves item to status to, mutating it in place. It returns the previous
// status and whether anything changed. A transition to the current status is a
// no-op. Manual transitions are restricted to the manual allow-list; sold items
// accept no further transition.
func Apply(item *models.SerializedItem, to models.ItemStatus, c Change, manual bool) (models.ItemStatus, bool, error) {
	prev := item.Status
	if manual && !to.Manual() {
		return prev, false, apperr.New(apperr.ErrInvalidStatus, "status %q cannot be set manually", to)
	}
	if !to.Valid() {
		return prev, false, apperr.New(apperr.ErrInvalidStatus, "unknown status %q", to)
	}
	if prev == to {
		return prev, false, nil
	}
	if prev.Terminal() {
		return prev, false, apperr.New(apperr.ErrInvalidTransition, "item %s is %s", item.ItemUID, prev)
	}

	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	item.Status = to
	item.Notes = AppendNote(item.Notes, TransitionNote(prev, to, c))
	item.UpdatedAt = c.At
	if to == models.ItemStatusSold {
		at := c.At
		item.SoldAt = &at
	}
	return prev, true, nil
}

// Filter narrows an item listing
type Filter struct {
	ProductID   uint
	VariantID   *uint
	Status      models.ItemStatus
	UIDContains string
	Page        int
	PageSize    int
}

// Repository is the gorm-backed item store. Bind it to a transaction with New(tx).
type Repository struct {
	db *gorm.DB
}

// New creates an item repository on db, which may be a transaction
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Exists reports whether an item with uid is already stored
func (r *Repository) Exists(ctx context.Context, uid string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.SerializedItem{}).Where("item_uid = ?", uid).Count(&count).Error; err != nil {
		return false, apperr.Wrap(apperr.ErrPersistence, err, "check item uid")
	}
	return count > 0, nil
}

// Create inserts a new item in status available
func (r *Repository) Create(ctx context.Context, item *models.SerializedItem) error {
	exists, err := r.Exists(ctx, item.ItemUID)
	if err != nil {
		return err
	}
	if exists {
		return apperr.New(apperr.ErrDuplicateItemUID, "item uid %s already exists", item.ItemUID)
	}

	if item.Status == "" {
		item.Status = models.ItemStatusAvailable
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Wrap(apperr.ErrDuplicateItemUID, err, "item uid %s already exists", item.ItemUID)
		}
		return apperr.Wrap(apperr.ErrPersistence, err, "create item %s", item.ItemUID)
	}
	return nil
}

// FindByUID loads one item
func (r *Repository) FindByUID(ctx context.Context, uid string) (*models.SerializedItem, error) {
	return r.find(ctx, r.db.WithContext(ctx), uid)
}

// LockByUID loads one item with a row lock held until the transaction ends
func (r *Repository) LockByUID(ctx context.Context, uid string) (*models.SerializedItem, error) {
	return r.find(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), uid)
}

func (r *Repository) find(ctx context.Context, db *gorm.DB, uid string) (*models.SerializedItem, error) {
	var item models.SerializedItem
	if err := db.Where("item_uid = ?", uid).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrItemNotFound, "item %s not found", uid)
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, err, "load item %s", uid)
	}
	return &item, nil
}

// SaveStatus persists the status columns of an item changed by Apply
func (r *Repository) SaveStatus(ctx context.Context, item *models.SerializedItem) error {
	err := r.db.WithContext(ctx).Model(&models.SerializedItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":     item.Status,
			"notes":      item.Notes,
			"updated_at": item.UpdatedAt,
			"sold_at":    item.SoldAt,
		}).Error
	if err != nil {
		return apperr.Wrap(apperr.ErrPersistence, err, "save item %s", item.ItemUID)
	}
	return nil
}

// SetStatus applies a manual status change and returns the previous status
func (r *Repository) SetStatus(ctx context.Context, uid string, to models.ItemStatus, c Change) (models.ItemStatus, error) {
	item, err := r.LockByUID(ctx, uid)
	if err != nil {
		return "", err
	}
	prev, changed, err := Apply(item, to, c, true)
	if err != nil || !changed {
		return prev, err
	}
	return prev, r.SaveStatus(ctx, item)
}

// List returns items newest first with the total match count
func (r *Repository) List(ctx context.Context, f Filter) ([]models.SerializedItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SerializedItem{})
	if f.ProductID != 0 {
		query = query.Where("product_id = ?", f.ProductID)
	}
	if f.VariantID != nil {
		query = query.Where("variant_id = ?", *f.VariantID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if uid := strings.TrimSpace(f.UIDContains); uid != "" {
		query = query.Where("item_uid ILIKE ?", "%"+escapeLike(uid)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.ErrPersistence, err, "count items")
	}

	page, size := ledger.Paginate(f.Page, f.PageSize)
	var items []models.SerializedItem
	err := query.Order("received_at DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&items).Error
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.ErrPersistence, err, "list items")
	}
	return items, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
