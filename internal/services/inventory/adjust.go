package inventory

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/audit"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/models"
)

// systemMovementTypes are written only by the service itself
var systemMovementTypes = map[models.MovementType]bool{
	models.MovementReceiveSerialized:      true,
	models.MovementSerializedStatusChange: true,
	models.MovementOrderFulfillment:       true,
}

// AdjustCommand changes an aggregate counter by a delta
type AdjustCommand struct {
	ProductID        uint
	VariantID        *uint
	Type             models.MovementType
	QuantityDelta    int
	WeightDeltaGrams *float64
	Reason           string
	ActorID          *uint
}

func (c AdjustCommand) Validate() error {
	if c.ProductID == 0 {
		return apperr.New(apperr.ErrInvalidInput, "product_id is required")
	}
	if strings.TrimSpace(c.Reason) == "" {
		return apperr.New(apperr.ErrReasonRequired, "reason is required for stock adjustments")
	}
	if !c.Type.Valid() {
		return apperr.New(apperr.ErrInvalidMovementType, "unknown movement type %q", c.Type)
	}
	if systemMovementTypes[c.Type] {
		return apperr.New(apperr.ErrInvalidMovementType, "movement type %q cannot be used for manual adjustments", c.Type)
	}
	return nil
}

func (c AdjustCommand) zero() bool {
	return c.QuantityDelta == 0 && (c.WeightDeltaGrams == nil || *c.WeightDeltaGrams == 0)
}

// AdjustResult reports the counter after an adjustment
type AdjustResult struct {
	Level      ledger.Level `json:"level"`
	MovementID uint         `json:"movementId,omitempty"`
	// Negative flags a counter that went below zero. It is allowed but should be looked at.
	Negative bool `json:"negative"`
	// Skipped is set for zero-delta adjustments, which write nothing
	Skipped bool `json:"skipped"`
}

// AdjustAggregateStock applies a delta to the variant counter when a variant is
// given, otherwise to the product counter, and records the matching movement.
func (s *Service) AdjustAggregateStock(ctx context.Context, cmd AdjustCommand) (AdjustResult, error) {
	entry := audit.Entry{
		ActorID:    cmd.ActorID,
		Action:     "inventory.adjust_stock",
		TargetType: "product",
		TargetID:   strconv.FormatUint(uint64(cmd.ProductID), 10),
		Details: map[string]interface{}{
			"product_id":     cmd.ProductID,
			"variant_id":     uintPtrValue(cmd.VariantID),
			"movement_type":  cmd.Type,
			"quantity_delta": cmd.QuantityDelta,
			"reason":         cmd.Reason,
		},
	}
	if cmd.WeightDeltaGrams != nil {
		entry.Details["weight_delta_grams"] = *cmd.WeightDeltaGrams
	}
	if err := cmd.Validate(); err != nil {
		entry.Err = err
		s.record(ctx, entry)
		return AdjustResult{}, err
	}

	at := s.now()
	var result AdjustResult
	err := s.store.Transact(ctx, func(tx Tx) error {
		result = AdjustResult{}

		product, err := tx.Product(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		current := ledger.Level{Quantity: product.StockQuantity, WeightGrams: product.StockWeightGrams}
		if cmd.VariantID != nil {
			variant, err := tx.Variant(ctx, cmd.ProductID, *cmd.VariantID)
			if err != nil {
				return err
			}
			current = ledger.Level{Quantity: variant.StockQuantity, WeightGrams: variant.StockWeightGrams}
		}

		if cmd.zero() {
			result.Level = current
			result.Skipped = true
			return nil
		}

		level, err := tx.AdjustAggregate(ctx, cmd.ProductID, cmd.VariantID, cmd.QuantityDelta, cmd.WeightDeltaGrams)
		if err != nil {
			return err
		}
		id, err := tx.RecordMovement(ctx, ledger.Entry{
			ProductID:        cmd.ProductID,
			VariantID:        cmd.VariantID,
			Type:             cmd.Type,
			QuantityDelta:    cmd.QuantityDelta,
			WeightDeltaGrams: cmd.WeightDeltaGrams,
			Reason:           cmd.Reason,
			ActorID:          cmd.ActorID,
			At:               at,
		})
		if err != nil {
			return err
		}
		result.Level = level
		result.MovementID = id
		result.Negative = level.Quantity < 0
		return nil
	})
	if err != nil {
		err = normalize(err)
		s.log.Error("stock adjustment failed",
			zap.Uint("product_id", cmd.ProductID),
			zap.String("movement_type", string(cmd.Type)),
			zap.Int("quantity_delta", cmd.QuantityDelta),
			zap.Error(err),
		)
		entry.Err = err
		s.record(ctx, entry)
		return AdjustResult{}, err
	}

	entry.Details["quantity_after"] = result.Level.Quantity
	entry.Details["skipped"] = result.Skipped
	s.record(ctx, entry)

	if result.Skipped {
		s.log.Info("zero stock adjustment skipped", zap.Uint("product_id", cmd.ProductID))
		return result, nil
	}
	if result.Negative {
		s.log.Warn("aggregate stock is negative after adjustment",
			zap.Uint("product_id", cmd.ProductID),
			zap.Any("variant_id", uintPtrValue(cmd.VariantID)),
			zap.Int("quantity", result.Level.Quantity),
		)
	}
	s.log.Info("stock adjusted",
		zap.Uint("product_id", cmd.ProductID),
		zap.String("movement_type", string(cmd.Type)),
		zap.Int("quantity_delta", cmd.QuantityDelta),
		zap.Int("quantity_after", result.Level.Quantity),
	)
	s.committed(ctx, InventoryEvent{
		Type:          EventStockAdjusted,
		ProductID:     cmd.ProductID,
		VariantID:     cmd.VariantID,
		QuantityDelta: cmd.QuantityDelta,
		At:            at,
	})
	return result, nil
}
