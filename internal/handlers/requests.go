package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/middleware"
	"github.com/maisonfine/stockd/internal/models"
	"github.com/maisonfine/stockd/internal/serialized"
	"github.com/maisonfine/stockd/internal/services/assets"
	"github.com/maisonfine/stockd/internal/services/inventory"
)

const dateLayout = "2006-01-02"

type receiveRequest struct {
	ProductID      uint                `json:"productId"`
	VariantID      *uint               `json:"variantId"`
	Quantity       int                 `json:"quantity"`
	BatchNumber    string              `json:"batchNumber"`
	ProductionDate string              `json:"productionDate"`
	ExpiryDate     string              `json:"expiryDate"`
	CostPrice      decimal.NullDecimal `json:"costPrice"`
	Notes          string              `json:"notes"`
}

func (b receiveRequest) command(actor *uint) (inventory.ReceiveCommand, error) {
	production, err := parseDate("productionDate", b.ProductionDate)
	if err != nil {
		return inventory.ReceiveCommand{}, err
	}
	expiry, err := parseDate("expiryDate", b.ExpiryDate)
	if err != nil {
		return inventory.ReceiveCommand{}, err
	}
	return inventory.ReceiveCommand{
		ProductID:      b.ProductID,
		VariantID:      b.VariantID,
		Quantity:       b.Quantity,
		BatchNumber:    b.BatchNumber,
		ProductionDate: production,
		ExpiryDate:     expiry,
		CostPrice:      b.CostPrice,
		Notes:          b.Notes,
		ActorID:        actor,
	}, nil
}

type receiveResponse struct {
	ItemUIDs []string `json:"itemUids"`
	Count    int      `json:"count"`
}

type adjustRequest struct {
	ProductID        uint     `json:"productId"`
	VariantID        *uint    `json:"variantId"`
	MovementType     string   `json:"movementType"`
	QuantityDelta    int      `json:"quantityDelta"`
	WeightDeltaGrams *float64 `json:"weightDeltaGrams"`
	Reason           string   `json:"reason"`
}

func (b adjustRequest) command(actor *uint) inventory.AdjustCommand {
	return inventory.AdjustCommand{
		ProductID:        b.ProductID,
		VariantID:        b.VariantID,
		Type:             models.MovementType(b.MovementType),
		QuantityDelta:    b.QuantityDelta,
		WeightDeltaGrams: b.WeightDeltaGrams,
		Reason:           b.Reason,
		ActorID:          actor,
	}
}

type statusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type labelsRequest struct {
	ItemUIDs []string           `json:"itemUids"`
	Layout   assets.LabelConfig `json:"layout"`
}

// actorID returns the authenticated admin id, if any
func actorID(req *http.Request) *uint {
	id, ok := middleware.IdentityFrom(req.Context())
	if !ok || id.UserID == 0 {
		return nil
	}
	uid := id.UserID
	return &uid
}

func parseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, apperr.New(apperr.ErrInvalidInput, "%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

// parseTime accepts RFC3339 or a plain date
func parseTime(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	return parseDate(field, value)
}

func parseUint(field, value string) (uint, error) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.ErrInvalidInput, "invalid %s", field)
	}
	return uint(id), nil
}

func optionalUint(q url.Values, field string) (*uint, error) {
	raw := q.Get(field)
	if raw == "" {
		return nil, nil
	}
	id, err := parseUint(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalInt(q url.Values, field string) (int, error) {
	raw := q.Get(field)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.New(apperr.ErrInvalidInput, "invalid %s", field)
	}
	return n, nil
}

func pageParams(q url.Values) (page, size int, err error) {
	if page, err = optionalInt(q, "page"); err != nil {
		return 0, 0, err
	}
	if size, err = optionalInt(q, "pageSize"); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func itemFilter(q url.Values) (serialized.Filter, error) {
	var f serialized.Filter
	var err error
	if raw := q.Get("productId"); raw != "" {
		if f.ProductID, err = parseUint("productId", raw); err != nil {
			return f, err
		}
	}
	if f.VariantID, err = optionalUint(q, "variantId"); err != nil {
		return f, err
	}
	if raw := q.Get("status"); raw != "" {
		status := models.ItemStatus(raw)
		if !status.Valid() {
			return f, apperr.New(apperr.ErrInvalidStatus, "unknown status %q", raw)
		}
		f.Status = status
	}
	f.UIDContains = q.Get("uid")
	f.Page, f.PageSize, err = pageParams(q)
	return f, err
}

func movementFilter(q url.Values) (ledger.Filter, error) {
	var f ledger.Filter
	var err error
	if raw := q.Get("productId"); raw != "" {
		if f.ProductID, err = parseUint("productId", raw); err != nil {
			return f, err
		}
	}
	if f.VariantID, err = optionalUint(q, "variantId"); err != nil {
		return f, err
	}
	if f.SerializedItemID, err = optionalUint(q, "serializedItemId"); err != nil {
		return f, err
	}
	if raw := q.Get("type"); raw != "" {
		t := models.MovementType(raw)
		if !t.Valid() {
			return f, apperr.New(apperr.ErrInvalidMovementType, "unknown movement type %q", raw)
		}
		f.Type = t
	}
	if f.From, err = parseTime("from", q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseTime("to", q.Get("to")); err != nil {
		return f, err
	}
	f.Page, f.PageSize, err = pageParams(q)
	return f, err
}
