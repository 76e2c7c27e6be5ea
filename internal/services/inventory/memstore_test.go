package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/audit"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/models"
	"github.com/maisonfine/stockd/internal/reports"
	"github.com/maisonfine/stockd/internal/serialized"
	"github.com/maisonfine/stockd/internal/services/assets"
)

// memState is a copy-on-transaction snapshot of the inventory tables
type memState struct {
	products  map[uint]models.Product
	variants  map[uint]models.ProductVariant
	items     map[string]models.SerializedItem
	movements []models.StockMovement
	nextItem  uint
	nextMove  uint
}

func (s *memState) clone() *memState {
	c := &memState{
		products:  make(map[uint]models.Product, len(s.products)),
		variants:  make(map[uint]models.ProductVariant, len(s.variants)),
		items:     make(map[string]models.SerializedItem, len(s.items)),
		movements: append([]models.StockMovement(nil), s.movements...),
		nextItem:  s.nextItem,
		nextMove:  s.nextMove,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.variants {
		c.variants[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	return c
}

// memStore enforces the same rules as the gorm store: unique item uids,
// movements and items reference an existing product, rollback on error.
type memStore struct {
	mu    sync.Mutex
	state *memState
	// failOn injects an error into the named Tx method
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			products: map[uint]models.Product{},
			variants: map[uint]models.ProductVariant{},
			items:    map[string]models.SerializedItem{},
		},
		failOn: map[string]error{},
	}
}

func (m *memStore) addProduct(p models.Product) {
	m.state.products[p.ID] = p
}

func (m *memStore) addVariant(v models.ProductVariant) {
	m.state.variants[v.ID] = v
}

func (m *memStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{st: m.state.clone(), failOn: m.failOn}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = tx.st
	return nil
}

func (m *memStore) ListItems(_ context.Context, f serialized.Filter) ([]models.SerializedItem, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.SerializedItem
	for _, it := range m.state.items {
		if f.ProductID != 0 && it.ProductID != f.ProductID {
			continue
		}
		if f.VariantID != nil && (it.VariantID == nil || *it.VariantID != *f.VariantID) {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		if f.UIDContains != "" && !strings.Contains(strings.ToLower(it.ItemUID), strings.ToLower(f.UIDContains)) {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	total := int64(len(out))
	start := (f.Page - 1) * f.PageSize
	if start > len(out) {
		start = len(out)
	}
	end := start + f.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (m *memStore) FindItem(_ context.Context, uid string) (*models.SerializedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.state.items[uid]
	if !ok {
		return nil, apperr.New(apperr.ErrItemNotFound, "item %s not found", uid)
	}
	return &it, nil
}

func (m *memStore) ListMovements(_ context.Context, f ledger.Filter) ([]models.StockMovement, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.StockMovement
	for i := len(m.state.movements) - 1; i >= 0; i-- {
		mv := m.state.movements[i]
		if f.ProductID != 0 && mv.ProductID != f.ProductID {
			continue
		}
		if f.Type != "" && mv.MovementType != f.Type {
			continue
		}
		out = append(out, mv)
	}
	total := int64(len(out))
	page, size := ledger.Paginate(f.Page, f.PageSize)
	start := (page - 1) * size
	if start > len(out) {
		start = len(out)
	}
	end := start + size
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (m *memStore) ProductWithVariants(_ context.Context, id uint) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.state.products[id]
	if !ok {
		return nil, apperr.New(apperr.ErrProductNotFound, "product %d not found", id)
	}
	p.Variants = nil
	for _, v := range m.state.variants {
		if v.ProductID == id {
			p.Variants = append(p.Variants, v)
		}
	}
	return &p, nil
}

// movementsFor returns committed movements of a product in insertion order
func (m *memStore) movementsFor(productID uint) []models.StockMovement {
	var out []models.StockMovement
	for _, mv := range m.state.movements {
		if mv.ProductID == productID {
			out = append(out, mv)
		}
	}
	return out
}

func (m *memStore) itemsFor(productID uint) []models.SerializedItem {
	var out []models.SerializedItem
	for _, it := range m.state.items {
		if it.ProductID == productID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ledgerSum is the quantity total of the product-level movements
func (m *memStore) ledgerSum(productID uint, variantID *uint) int {
	sum := 0
	for _, mv := range m.state.movements {
		if mv.ProductID != productID {
			continue
		}
		if (variantID == nil) != (mv.VariantID == nil) {
			continue
		}
		if variantID != nil && *variantID != *mv.VariantID {
			continue
		}
		sum += mv.QuantityChange
	}
	return sum
}

type memTx struct {
	st     *memState
	failOn map[string]error
}

func (t *memTx) fail(op string) error {
	return t.failOn[op]
}

func (t *memTx) Product(_ context.Context, id uint) (*models.Product, error) {
	if err := t.fail("Product"); err != nil {
		return nil, err
	}
	p, ok := t.st.products[id]
	if !ok {
		return nil, apperr.New(apperr.ErrProductNotFound, "product %d not found", id)
	}
	return &p, nil
}

func (t *memTx) Variant(_ context.Context, productID, variantID uint) (*models.ProductVariant, error) {
	v, ok := t.st.variants[variantID]
	if !ok || v.ProductID != productID {
		return nil, apperr.New(apperr.ErrVariantNotFound, "variant %d of product %d not found", variantID, productID)
	}
	return &v, nil
}

func (t *memTx) ItemExists(_ context.Context, uid string) (bool, error) {
	_, ok := t.st.items[uid]
	return ok, nil
}

func (t *memTx) CreateItem(_ context.Context, item *models.SerializedItem) error {
	if err := t.fail("CreateItem"); err != nil {
		return err
	}
	if _, ok := t.st.products[item.ProductID]; !ok {
		return apperr.New(apperr.ErrProductNotFound, "product %d not found", item.ProductID)
	}
	if _, ok := t.st.items[item.ItemUID]; ok {
		return apperr.New(apperr.ErrDuplicateItemUID, "item uid %s already exists", item.ItemUID)
	}
	t.st.nextItem++
	item.ID = t.st.nextItem
	t.st.items[item.ItemUID] = *item
	return nil
}

func (t *memTx) LockItem(_ context.Context, uid string) (*models.SerializedItem, error) {
	it, ok := t.st.items[uid]
	if !ok {
		return nil, apperr.New(apperr.ErrItemNotFound, "item %s not found", uid)
	}
	return &it, nil
}

func (t *memTx) SaveItemStatus(_ context.Context, item *models.SerializedItem) error {
	if err := t.fail("SaveItemStatus"); err != nil {
		return err
	}
	stored := t.st.items[item.ItemUID]
	stored.Status = item.Status
	stored.Notes = item.Notes
	stored.UpdatedAt = item.UpdatedAt
	stored.SoldAt = item.SoldAt
	t.st.items[item.ItemUID] = stored
	return nil
}

func (t *memTx) RecordMovement(_ context.Context, e ledger.Entry) (uint, error) {
	if err := t.fail("RecordMovement"); err != nil {
		return 0, err
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}
	if _, ok := t.st.products[e.ProductID]; !ok {
		return 0, apperr.New(apperr.ErrProductNotFound, "product %d not found", e.ProductID)
	}
	m := e.Movement()
	t.st.nextMove++
	m.ID = t.st.nextMove
	t.st.movements = append(t.st.movements, *m)
	return m.ID, nil
}

func (t *memTx) AdjustAggregate(_ context.Context, productID uint, variantID *uint, qty int, weight *float64) (ledger.Level, error) {
	if err := t.fail("AdjustAggregate"); err != nil {
		return ledger.Level{}, err
	}
	if variantID != nil {
		v, ok := t.st.variants[*variantID]
		if !ok || v.ProductID != productID {
			return ledger.Level{}, apperr.New(apperr.ErrVariantNotFound, "variant %d not found", *variantID)
		}
		v.StockQuantity += qty
		if weight != nil {
			v.StockWeightGrams += *weight
		}
		t.st.variants[*variantID] = v
		return ledger.Level{Quantity: v.StockQuantity, WeightGrams: v.StockWeightGrams}, nil
	}
	p, ok := t.st.products[productID]
	if !ok {
		return ledger.Level{}, apperr.New(apperr.ErrProductNotFound, "product %d not found", productID)
	}
	p.StockQuantity += qty
	if weight != nil {
		p.StockWeightGrams += *weight
	}
	t.st.products[productID] = p
	return ledger.Level{Quantity: p.StockQuantity, WeightGrams: p.StockWeightGrams}, nil
}

// failingAssets wraps a real generator and fails the n-th Generate call
type failingAssets struct {
	*assets.FileGenerator
	failAt int
	calls  int
}

func (f *failingAssets) Generate(ctx context.Context, kind assets.Kind, meta assets.ItemMeta) (string, error) {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return "", errDiskFull
	}
	return f.FileGenerator.Generate(ctx, kind, meta)
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) last() audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1]
}

type recordingNotifier struct {
	events []InventoryEvent
}

func (n *recordingNotifier) Broadcast(v interface{}) {
	n.events = append(n.events, v.(InventoryEvent))
}

type memCache struct {
	data    map[string][]byte
	deletes []string
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte) error {
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
		c.deletes = append(c.deletes, k)
	}
	return nil
}

type stubReports struct {
	counts []reports.StatusCount
	calls  int
}

func (r *stubReports) StatusCounts(context.Context, uint) ([]reports.StatusCount, error) {
	r.calls++
	return r.counts, nil
}

func (r *stubReports) Reconcile(_ context.Context, productID uint) (reports.Reconciliation, error) {
	return reports.Summarize(productID, []reports.Line{{ProductID: productID, Aggregate: 3, LedgerSum: 2}}), nil
}
