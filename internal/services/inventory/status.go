package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/audit"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/models"
	"github.com/maisonfine/stockd/internal/serialized"
)

// StatusCommand is a manual status change of one item
type StatusCommand struct {
	ItemUID string
	Status  models.ItemStatus
	Notes   string
	ActorID *uint
}

// StatusChange is the outcome of a status change
type StatusChange struct {
	ItemUID       string            `json:"itemUid"`
	OldStatus     models.ItemStatus `json:"oldStatus"`
	NewStatus     models.ItemStatus `json:"newStatus"`
	Changed       bool              `json:"changed"`
	QuantityDelta int               `json:"quantityDelta"`
}

// sellableDelta is the aggregate change implied by moving between two statuses
func sellableDelta(from, to models.ItemStatus) int {
	switch {
	case from.Sellable() && !to.Sellable():
		return -1
	case !from.Sellable() && to.Sellable():
		return 1
	default:
		return 0
	}
}

// SetSerializedItemStatus applies a manual status change. Leaving or entering
// available also moves the aggregate counter by one, with a ledger entry.
func (s *Service) SetSerializedItemStatus(ctx context.Context, cmd StatusCommand) (StatusChange, error) {
	cmd.ItemUID = strings.TrimSpace(cmd.ItemUID)
	entry := audit.Entry{
		ActorID:    cmd.ActorID,
		Action:     "inventory.set_item_status",
		TargetType: "serialized_item",
		TargetID:   cmd.ItemUID,
		Details: map[string]interface{}{
			"new_status": cmd.Status,
		},
	}
	if cmd.Notes != "" {
		entry.Details["notes"] = cmd.Notes
	}

	var err error
	switch {
	case cmd.ItemUID == "":
		err = apperr.New(apperr.ErrInvalidInput, "item uid is required")
	case !cmd.Status.Manual():
		err = apperr.New(apperr.ErrInvalidStatus, "status %q cannot be set manually", cmd.Status)
	}
	if err != nil {
		entry.Err = err
		s.record(ctx, entry)
		return StatusChange{}, err
	}

	at := s.now()
	var change StatusChange
	var productID uint
	var variantID *uint
	err = s.store.Transact(ctx, func(tx Tx) error {
		item, err := tx.LockItem(ctx, cmd.ItemUID)
		if err != nil {
			return err
		}
		productID, variantID = item.ProductID, item.VariantID

		prev, changed, err := serialized.Apply(item, cmd.Status, serialized.Change{
			ActorID: cmd.ActorID,
			Reason:  cmd.Notes,
			At:      at,
		}, true)
		if err != nil {
			return err
		}
		change = StatusChange{ItemUID: item.ItemUID, OldStatus: prev, NewStatus: item.Status, Changed: changed}
		if !changed {
			return nil
		}
		if err := tx.SaveItemStatus(ctx, item); err != nil {
			return err
		}

		delta := sellableDelta(prev, item.Status)
		if delta == 0 {
			return nil
		}
		if _, err := tx.AdjustAggregate(ctx, item.ProductID, item.VariantID, delta, nil); err != nil {
			return err
		}
		itemID := item.ID
		_, err = tx.RecordMovement(ctx, ledger.Entry{
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			SerializedItemID: &itemID,
			Type:             models.MovementSerializedStatusChange,
			QuantityDelta:    delta,
			Reason:           fmt.Sprintf("Status %s -> %s", prev, item.Status),
			ActorID:          cmd.ActorID,
			Notes:            strings.TrimSpace(cmd.Notes),
			At:               at,
		})
		if err != nil {
			return err
		}
		change.QuantityDelta = delta
		return nil
	})
	if err != nil {
		err = normalize(err)
		s.log.Error("item status change failed",
			zap.String("item_uid", cmd.ItemUID),
			zap.String("status", string(cmd.Status)),
			zap.Error(err),
		)
		entry.Err = err
		s.record(ctx, entry)
		return StatusChange{}, err
	}

	entry.Details["old_status"] = change.OldStatus
	entry.Details["changed"] = change.Changed
	s.record(ctx, entry)
	if !change.Changed {
		return change, nil
	}

	s.log.Info("item status changed",
		zap.String("item_uid", change.ItemUID),
		zap.String("from", string(change.OldStatus)),
		zap.String("to", string(change.NewStatus)),
	)
	s.committed(ctx, InventoryEvent{
		Type:          EventItemStatusChanged,
		ProductID:     productID,
		VariantID:     variantID,
		ItemUIDs:      []string{change.ItemUID},
		QuantityDelta: change.QuantityDelta,
		At:            at,
	})
	return change, nil
}

// SoldCommand marks the serialized units shipped with an order as sold
type SoldCommand struct {
	OrderID  uint
	ItemUIDs []string
	ActorID  *uint
}

// SoldResult lists the items sold by this call and those that already were
type SoldResult struct {
	Sold    []string `json:"sold"`
	Skipped []string `json:"skipped"`
}

// MarkItemsSold moves items to sold for an order. Items that were available
// leave the aggregate counter. An unknown uid fails the whole call.
func (s *Service) MarkItemsSold(ctx context.Context, cmd SoldCommand) (SoldResult, error) {
	uids := dedupe(cmd.ItemUIDs)
	entry := audit.Entry{
		ActorID:    cmd.ActorID,
		Action:     "inventory.mark_sold",
		TargetType: "order",
		TargetID:   strconv.FormatUint(uint64(cmd.OrderID), 10),
		Details: map[string]interface{}{
			"order_id":  cmd.OrderID,
			"item_uids": uids,
		},
	}
	var err error
	switch {
	case cmd.OrderID == 0:
		err = apperr.New(apperr.ErrInvalidInput, "order id is required")
	case len(uids) == 0:
		err = apperr.New(apperr.ErrInvalidInput, "no item uids given")
	}
	if err != nil {
		entry.Err = err
		s.record(ctx, entry)
		return SoldResult{}, err
	}

	at := s.now()
	orderID := cmd.OrderID
	var result SoldResult
	var events map[uint]*InventoryEvent
	err = s.store.Transact(ctx, func(tx Tx) error {
		result = SoldResult{}
		events = make(map[uint]*InventoryEvent)

		for _, uid := range uids {
			item, err := tx.LockItem(ctx, uid)
			if err != nil {
				return err
			}
			if item.Status.Terminal() {
				result.Skipped = append(result.Skipped, uid)
				continue
			}

			prev, _, err := serialized.Apply(item, models.ItemStatusSold, serialized.Change{
				ActorID: cmd.ActorID,
				Reason:  fmt.Sprintf("order #%d", orderID),
				At:      at,
			}, false)
			if err != nil {
				return err
			}
			if err := tx.SaveItemStatus(ctx, item); err != nil {
				return err
			}

			ev, ok := events[item.ProductID]
			if !ok {
				ev = &InventoryEvent{Type: EventItemsSold, ProductID: item.ProductID, At: at}
				events[item.ProductID] = ev
			}
			ev.ItemUIDs = append(ev.ItemUIDs, uid)
			result.Sold = append(result.Sold, uid)

			if !prev.Sellable() {
				continue
			}
			if _, err := tx.AdjustAggregate(ctx, item.ProductID, item.VariantID, -1, nil); err != nil {
				return err
			}
			itemID := item.ID
			_, err = tx.RecordMovement(ctx, ledger.Entry{
				ProductID:        item.ProductID,
				VariantID:        item.VariantID,
				SerializedItemID: &itemID,
				Type:             models.MovementOrderFulfillment,
				QuantityDelta:    -1,
				Reason:           fmt.Sprintf("Sold with order #%d", orderID),
				ActorID:          cmd.ActorID,
				OrderID:          &orderID,
				At:               at,
			})
			if err != nil {
				return err
			}
			ev.QuantityDelta--
		}
		return nil
	})
	if err != nil {
		err = normalize(err)
		s.log.Error("marking items sold failed", zap.Uint("order_id", cmd.OrderID), zap.Error(err))
		entry.Err = err
		s.record(ctx, entry)
		return SoldResult{}, err
	}

	entry.Details["sold"] = result.Sold
	entry.Details["skipped"] = result.Skipped
	s.record(ctx, entry)
	s.log.Info("items sold",
		zap.Uint("order_id", cmd.OrderID),
		zap.Int("sold", len(result.Sold)),
		zap.Int("skipped", len(result.Skipped)),
	)
	for _, ev := range events {
		s.committed(ctx, *ev)
	}
	return result, nil
}

func dedupe(uids []string) []string {
	seen := make(map[string]struct{}, len(uids))
	out := make([]string, 0, len(uids))
	for _, uid := range uids {
		uid = strings.TrimSpace(uid)
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	return out
}
