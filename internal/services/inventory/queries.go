package inventory

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/models"
	"github.com/maisonfine/stockd/internal/reports"
	"github.com/maisonfine/stockd/internal/serialized"
	"github.com/maisonfine/stockd/internal/services/assets"
)

// RecentMovementsLimit is how many movements the details view carries
const RecentMovementsLimit = 20

// ItemView is a serialized item with its asset URLs resolved
type ItemView struct {
	models.SerializedItem
	QRCodeURL   string `json:"qrCodeUrl"`
	PassportURL string `json:"passportUrl"`
}

// ItemPage is one page of items
type ItemPage struct {
	Items    []ItemView `json:"items"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

// MovementPage is one page of ledger entries
type MovementPage struct {
	Movements []models.StockMovement `json:"movements"`
	Total     int64                  `json:"total"`
	Page      int                    `json:"page"`
	PageSize  int                    `json:"pageSize"`
}

// Details is the inventory view of one product
type Details struct {
	Product         *models.Product        `json:"product"`
	StatusCounts    []reports.StatusCount  `json:"statusCounts"`
	RecentMovements []models.StockMovement `json:"recentMovements"`
	GeneratedAt     time.Time              `json:"generatedAt"`
}

func (s *Service) view(item models.SerializedItem) ItemView {
	return ItemView{
		SerializedItem: item,
		QRCodeURL:      s.assets.URL(item.QRCodePath),
		PassportURL:    s.assets.URL(item.PassportPath),
	}
}

// ListSerializedItems filters items, newest first
func (s *Service) ListSerializedItems(ctx context.Context, f serialized.Filter) (ItemPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return ItemPage{}, apperr.New(apperr.ErrInvalidStatus, "unknown status %q", f.Status)
	}
	f.UIDContains = strings.TrimSpace(f.UIDContains)
	f.Page, f.PageSize = ledger.Paginate(f.Page, f.PageSize)

	items, total, err := s.store.ListItems(ctx, f)
	if err != nil {
		return ItemPage{}, normalize(err)
	}
	page := ItemPage{Items: make([]ItemView, 0, len(items)), Total: total, Page: f.Page, PageSize: f.PageSize}
	for _, item := range items {
		page.Items = append(page.Items, s.view(item))
	}
	return page, nil
}

// GetItem loads one item by uid
func (s *Service) GetItem(ctx context.Context, uid string) (ItemView, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ItemView{}, apperr.New(apperr.ErrInvalidInput, "item uid is required")
	}
	item, err := s.store.FindItem(ctx, uid)
	if err != nil {
		return ItemView{}, normalize(err)
	}
	return s.view(*item), nil
}

// ListMovements filters the ledger, newest first
func (s *Service) ListMovements(ctx context.Context, f ledger.Filter) (MovementPage, error) {
	if f.Type != "" && !f.Type.Valid() {
		return MovementPage{}, apperr.New(apperr.ErrInvalidMovementType, "unknown movement type %q", f.Type)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return MovementPage{}, apperr.New(apperr.ErrInvalidInput, "date range ends before it starts")
	}
	f.Page, f.PageSize = ledger.Paginate(f.Page, f.PageSize)

	movements, total, err := s.store.ListMovements(ctx, f)
	if err != nil {
		return MovementPage{}, normalize(err)
	}
	if movements == nil {
		movements = []models.StockMovement{}
	}
	return MovementPage{Movements: movements, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// GetInventoryDetails returns counters, status counts and recent movements of
// a product. The view is cached until the product is next mutated.
func (s *Service) GetInventoryDetails(ctx context.Context, productID uint) (*Details, error) {
	key := s.cacheKey(productID)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("inventory cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			var d Details
			if err := json.Unmarshal(raw, &d); err == nil {
				return &d, nil
			}
		}
	}

	product, err := s.store.ProductWithVariants(ctx, productID)
	if err != nil {
		return nil, normalize(err)
	}
	d := &Details{Product: product, StatusCounts: []reports.StatusCount{}, GeneratedAt: s.now()}
	if s.reports != nil {
		counts, err := s.reports.StatusCounts(ctx, productID)
		if err != nil {
			return nil, normalize(err)
		}
		d.StatusCounts = counts
	}
	movements, _, err := s.store.ListMovements(ctx, ledger.Filter{ProductID: productID, Page: 1, PageSize: RecentMovementsLimit})
	if err != nil {
		return nil, normalize(err)
	}
	d.RecentMovements = movements
	if d.RecentMovements == nil {
		d.RecentMovements = []models.StockMovement{}
	}

	if s.cache != nil {
		if raw, err := json.Marshal(d); err == nil {
			if err := s.cache.Set(ctx, key, raw); err != nil {
				s.log.Warn("inventory cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return d, nil
}

// Reconcile compares the counters of a product with its ledger
func (s *Service) Reconcile(ctx context.Context, productID uint) (reports.Reconciliation, error) {
	if s.reports == nil {
		return reports.Reconciliation{}, apperr.New(apperr.ErrPersistence, "reporting is not configured")
	}
	r, err := s.reports.Reconcile(ctx, productID)
	if err != nil {
		return reports.Reconciliation{}, normalize(err)
	}
	if !r.Balanced {
		s.log.Warn("ledger does not reconcile with aggregate stock", zap.Uint("product_id", productID))
	}
	return r, nil
}

// LabelPrinter renders printable QR label sheets
type LabelPrinter interface {
	LabelSheet(cfg assets.LabelConfig, labels []assets.Label) ([]byte, error)
}

// PrintLabels renders a sticker sheet for existing items
func (s *Service) PrintLabels(ctx context.Context, uids []string, layout assets.LabelConfig) ([]byte, error) {
	if s.labels == nil {
		return nil, apperr.New(apperr.ErrPersistence, "label printing is not configured")
	}
	uids = dedupe(uids)
	if len(uids) == 0 {
		return nil, apperr.New(apperr.ErrInvalidInput, "no item uids given")
	}
	names := make(map[uint]string)
	labels := make([]assets.Label, 0, len(uids))
	for _, uid := range uids {
		item, err := s.store.FindItem(ctx, uid)
		if err != nil {
			return nil, normalize(err)
		}
		name, ok := names[item.ProductID]
		if !ok {
			product, err := s.store.ProductWithVariants(ctx, item.ProductID)
			if err != nil {
				return nil, normalize(err)
			}
			name = product.Name
			names[item.ProductID] = name
		}
		labels = append(labels, assets.Label{ItemUID: uid, Caption: name})
	}
	pdf, err := s.labels.LabelSheet(layout, labels)
	if err != nil {
		return nil, normalize(err)
	}
	return pdf, nil
}
