package inventory

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/audit"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/models"
	"github.com/maisonfine/stockd/internal/services/assets"
)

const (
	// MaxReceiveQuantity bounds one batch; every unit renders two files inside the transaction
	MaxReceiveQuantity = 500

	uidAttempts = 5
)

// ReceiveCommand registers a batch of physical units of one product
type ReceiveCommand struct {
	ProductID      uint
	VariantID      *uint
	Quantity       int
	BatchNumber    string
	ProductionDate *time.Time
	ExpiryDate     *time.Time
	CostPrice      decimal.NullDecimal
	Notes          string
	ActorID        *uint
}

func (c ReceiveCommand) Validate() error {
	if c.ProductID == 0 {
		return apperr.New(apperr.ErrInvalidInput, "product_id is required")
	}
	if c.Quantity < 1 {
		return apperr.New(apperr.ErrInvalidQuantity, "quantity must be a positive integer, got %d", c.Quantity)
	}
	if c.Quantity > MaxReceiveQuantity {
		return apperr.New(apperr.ErrInvalidQuantity, "quantity %d exceeds the batch limit of %d", c.Quantity, MaxReceiveQuantity)
	}
	if c.ProductionDate != nil && c.ExpiryDate != nil && c.ExpiryDate.Before(*c.ProductionDate) {
		return apperr.New(apperr.ErrInvalidInput, "expiry date is before production date")
	}
	if c.CostPrice.Valid && c.CostPrice.Decimal.IsNegative() {
		return apperr.New(apperr.ErrInvalidInput, "cost price cannot be negative")
	}
	return nil
}

func (c ReceiveCommand) details() map[string]interface{} {
	d := map[string]interface{}{
		"product_id": c.ProductID,
		"variant_id": uintPtrValue(c.VariantID),
		"quantity":   c.Quantity,
	}
	if c.BatchNumber != "" {
		d["batch_number"] = c.BatchNumber
	}
	return d
}

// ReceiveSerializedBatch creates one serialized item per unit, each with a QR
// code and passport, and returns the new item uids in creation order. Either
// the whole batch commits or nothing does, files included.
func (s *Service) ReceiveSerializedBatch(ctx context.Context, cmd ReceiveCommand) ([]string, error) {
	entry := audit.Entry{
		ActorID:    cmd.ActorID,
		Action:     "inventory.receive_serialized",
		TargetType: "product",
		TargetID:   strconv.FormatUint(uint64(cmd.ProductID), 10),
		Details:    cmd.details(),
	}
	if err := cmd.Validate(); err != nil {
		entry.Err = err
		s.record(ctx, entry)
		return nil, err
	}

	cmd.BatchNumber = strings.TrimSpace(cmd.BatchNumber)
	saga := &assetSaga{gen: s.assets, log: s.log}
	at := s.now()
	var uids []string

	err := s.store.Transact(ctx, func(tx Tx) error {
		uids = nil

		product, err := tx.Product(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		meta := assets.ItemMeta{
			ProductName:    product.Name,
			SKU:            product.SKU,
			BatchNumber:    cmd.BatchNumber,
			ProductionDate: cmd.ProductionDate,
			ExpiryDate:     cmd.ExpiryDate,
			ReceivedAt:     at,
		}
		if cmd.VariantID != nil {
			variant, err := tx.Variant(ctx, cmd.ProductID, *cmd.VariantID)
			if err != nil {
				return err
			}
			meta.VariantName = variant.Name
		}

		seen := make(map[string]struct{}, cmd.Quantity)
		for i := 0; i < cmd.Quantity; i++ {
			uid, err := s.allocateUID(ctx, tx, product.UIDPrefix(), seen)
			if err != nil {
				return err
			}
			meta.ItemUID = uid

			qrPath, err := saga.generate(ctx, assets.KindQR, meta)
			if err != nil {
				return err
			}
			passportPath, err := saga.generate(ctx, assets.KindPassport, meta)
			if err != nil {
				return err
			}

			item := &models.SerializedItem{
				ItemUID:        uid,
				ProductID:      cmd.ProductID,
				VariantID:      cmd.VariantID,
				BatchNumber:    optionalString(cmd.BatchNumber),
				ProductionDate: cmd.ProductionDate,
				ExpiryDate:     cmd.ExpiryDate,
				CostPrice:      cmd.CostPrice,
				Notes:          strings.TrimSpace(cmd.Notes),
				Status:         models.ItemStatusAvailable,
				QRCodePath:     qrPath,
				PassportPath:   passportPath,
				ReceivedAt:     at,
				UpdatedAt:      at,
			}
			if err := tx.CreateItem(ctx, item); err != nil {
				return err
			}

			itemID := item.ID
			_, err = tx.RecordMovement(ctx, ledger.Entry{
				ProductID:        cmd.ProductID,
				VariantID:        cmd.VariantID,
				SerializedItemID: &itemID,
				Type:             models.MovementReceiveSerialized,
				QuantityDelta:    1,
				Reason:           "Serialized item received",
				ActorID:          cmd.ActorID,
				Notes:            batchNote(cmd.BatchNumber),
				At:               at,
			})
			if err != nil {
				return err
			}
			uids = append(uids, uid)
		}

		level, err := tx.AdjustAggregate(ctx, cmd.ProductID, cmd.VariantID, cmd.Quantity, nil)
		if err != nil {
			return err
		}
		if level.Quantity < 0 {
			s.log.Warn("aggregate stock is negative after receive",
				zap.Uint("product_id", cmd.ProductID),
				zap.Int("quantity", level.Quantity),
			)
		}
		return nil
	})
	if err != nil {
		saga.compensate()
		err = normalize(err)
		s.log.Error("serialized receive failed",
			zap.Uint("product_id", cmd.ProductID),
			zap.Int("quantity", cmd.Quantity),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err),
		)
		entry.Err = err
		s.record(ctx, entry)
		return nil, err
	}

	s.log.Info("serialized batch received",
		zap.Uint("product_id", cmd.ProductID),
		zap.Int("quantity", len(uids)),
		zap.String("batch", cmd.BatchNumber),
	)
	entry.Details["item_uids"] = uids
	s.record(ctx, entry)
	s.committed(ctx, InventoryEvent{
		Type:          EventItemsReceived,
		ProductID:     cmd.ProductID,
		VariantID:     cmd.VariantID,
		ItemUIDs:      uids,
		QuantityDelta: len(uids),
		At:            at,
	})
	return uids, nil
}

// allocateUID draws a uid that is neither stored nor already used in this batch
func (s *Service) allocateUID(ctx context.Context, tx Tx, prefix string, seen map[string]struct{}) (string, error) {
	for attempt := 0; attempt < uidAttempts; attempt++ {
		uid := s.newUID(prefix)
		if _, dup := seen[uid]; dup {
			continue
		}
		exists, err := tx.ItemExists(ctx, uid)
		if err != nil {
			return "", err
		}
		if exists {
			s.log.Warn("item uid collision, regenerating", zap.String("uid", uid))
			continue
		}
		seen[uid] = struct{}{}
		return uid, nil
	}
	return "", apperr.New(apperr.ErrDuplicateItemUID, "no unique item uid for prefix %s after %d attempts", prefix, uidAttempts)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func batchNote(batch string) string {
	if batch == "" {
		return ""
	}
	return "Batch " + batch
}
