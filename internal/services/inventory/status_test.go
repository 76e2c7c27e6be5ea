package inventory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/models"
)

func receive(t *testing.T, f *fixture, productID uint, qty int) []string {
	t.Helper()
	uids, err := f.svc.ReceiveSerializedBatch(context.Background(), ReceiveCommand{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
	return uids
}

func setStatus(f *fixture, uid string, status models.ItemStatus, notes string) (StatusChange, error) {
	return f.svc.SetSerializedItemStatus(context.Background(), StatusCommand{ItemUID: uid, Status: status, Notes: notes, ActorID: uintPtr(5)})
}

func TestSetSerializedItemStatus_TracksSellableStock(t *testing.T) {
	f := newFixture(t)
	uid := receive(t, f, caviarID, 2)[0]

	change, err := setStatus(f, uid, models.ItemStatusDamaged, "dented tin")
	require.NoError(t, err)
	assert.Equal(t, StatusChange{ItemUID: uid, OldStatus: models.ItemStatusAvailable, NewStatus: models.ItemStatusDamaged, Changed: true, QuantityDelta: -1}, change)
	assert.Equal(t, 1, f.product(caviarID).StockQuantity)

	change, err = setStatus(f, uid, models.ItemStatusRecalled, "supplier recall")
	require.NoError(t, err)
	assert.Equal(t, 0, change.QuantityDelta)
	assert.Equal(t, 1, f.product(caviarID).StockQuantity)

	change, err = setStatus(f, uid, models.ItemStatusAvailable, "recall lifted")
	require.NoError(t, err)
	assert.Equal(t, 1, change.QuantityDelta)
	assert.Equal(t, 2, f.product(caviarID).StockQuantity)

	var statusMoves []models.StockMovement
	for _, mv := range f.store.movementsFor(caviarID) {
		if mv.MovementType == models.MovementSerializedStatusChange {
			statusMoves = append(statusMoves, mv)
		}
	}
	require.Len(t, statusMoves, 2)
	assert.Equal(t, -1, statusMoves[0].QuantityChange)
	assert.Equal(t, "Status available -> damaged", statusMoves[0].Reason)
	assert.Equal(t, f.item(uid).ID, *statusMoves[0].SerializedItemID)
	assert.Equal(t, 1, statusMoves[1].QuantityChange)
	assert.Equal(t, f.product(caviarID).StockQuantity, f.store.ledgerSum(caviarID, nil))

	notes := strings.Split(f.item(uid).Notes, "\n")
	require.Len(t, notes, 3)
	assert.Contains(t, notes[0], "admin #5: available -> damaged (dented tin)")
	assert.Contains(t, notes[2], "recalled -> available (recall lifted)")

	assert.Equal(t, "inventory.set_item_status", f.audit.last().Action)
	assert.Equal(t, EventItemStatusChanged, f.notifier.events[len(f.notifier.events)-1].Type)
}

func TestSetSerializedItemStatus_SameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	uid := receive(t, f, caviarID, 1)[0]
	_, err := setStatus(f, uid, models.ItemStatusMissing, "")
	require.NoError(t, err)

	before := f.item(uid)
	movements := len(f.store.state.movements)
	events := len(f.notifier.events)

	change, err := setStatus(f, uid, models.ItemStatusMissing, "still missing")
	require.NoError(t, err)
	assert.False(t, change.Changed)
	assert.Equal(t, models.ItemStatusMissing, change.OldStatus)
	assert.Equal(t, before, f.item(uid))
	assert.Len(t, f.store.state.movements, movements)
	assert.Len(t, f.notifier.events, events)
	assert.NoError(t, f.audit.last().Err)
}

func TestSetSerializedItemStatus_RejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	uid := receive(t, f, caviarID, 1)[0]
	before := f.item(uid)

	for _, status := range []models.ItemStatus{"bogus_status", models.ItemStatusSold, ""} {
		_, err := setStatus(f, uid, status, "")
		assert.True(t, errors.Is(err, apperr.ErrInvalidStatus), "status %q: %v", status, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Error(t, f.audit.last().Err)
	}
	assert.Equal(t, before, f.item(uid))
}

func TestSetSerializedItemStatus_UnknownItem(t *testing.T) {
	f := newFixture(t)

	_, err := setStatus(f, "TRF-000000000000", models.ItemStatusDamaged, "")
	assert.True(t, errors.Is(err, apperr.ErrItemNotFound))

	_, err = setStatus(f, "  ", models.ItemStatusDamaged, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestSetSerializedItemStatus_SoldIsTerminal(t *testing.T) {
	f := newFixture(t)
	uid := receive(t, f, caviarID, 1)[0]
	_, err := f.svc.MarkItemsSold(context.Background(), SoldCommand{OrderID: 42, ItemUIDs: []string{uid}})
	require.NoError(t, err)

	_, err = setStatus(f, uid, models.ItemStatusAvailable, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, models.ItemStatusSold, f.item(uid).Status)
}

func TestMarkItemsSold(t *testing.T) {
	f := newFixture(t)
	uids := receive(t, f, caviarID, 3)
	_, err := setStatus(f, uids[1], models.ItemStatusReservedInternal, "tasting")
	require.NoError(t, err)
	require.Equal(t, 2, f.product(caviarID).StockQuantity)

	res, err := f.svc.MarkItemsSold(context.Background(), SoldCommand{OrderID: 42, ItemUIDs: []string{uids[0], uids[1], uids[0]}})
	require.NoError(t, err)
	assert.Equal(t, []string{uids[0], uids[1]}, res.Sold)
	assert.Empty(t, res.Skipped)

	assert.Equal(t, 1, f.product(caviarID).StockQuantity, "only the available unit leaves sellable stock")
	assert.Equal(t, f.product(caviarID).StockQuantity, f.store.ledgerSum(caviarID, nil))
	for _, uid := range uids[:2] {
		item := f.item(uid)
		assert.Equal(t, models.ItemStatusSold, item.Status)
		require.NotNil(t, item.SoldAt)
		assert.Equal(t, fixedNow, *item.SoldAt)
	}

	var sales []models.StockMovement
	for _, mv := range f.store.movementsFor(caviarID) {
		if mv.MovementType == models.MovementOrderFulfillment {
			sales = append(sales, mv)
		}
	}
	require.Len(t, sales, 1)
	assert.Equal(t, -1, sales[0].QuantityChange)
	require.NotNil(t, sales[0].RelatedOrderID)
	assert.Equal(t, uint(42), *sales[0].RelatedOrderID)

	ev := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, EventItemsSold, ev.Type)
	assert.Equal(t, -1, ev.QuantityDelta)
	assert.Equal(t, "inventory.mark_sold", f.audit.last().Action)

	res, err = f.svc.MarkItemsSold(context.Background(), SoldCommand{OrderID: 42, ItemUIDs: uids[:2]})
	require.NoError(t, err)
	assert.Empty(t, res.Sold)
	assert.Equal(t, uids[:2], res.Skipped)
	assert.Equal(t, 1, f.product(caviarID).StockQuantity)
}

func TestMarkItemsSold_UnknownItemFailsWholeCall(t *testing.T) {
	f := newFixture(t)
	uid := receive(t, f, caviarID, 1)[0]

	_, err := f.svc.MarkItemsSold(context.Background(), SoldCommand{OrderID: 43, ItemUIDs: []string{uid, "CAV-FFFFFFFFFFFF"}})
	assert.True(t, errors.Is(err, apperr.ErrItemNotFound))
	assert.Equal(t, models.ItemStatusAvailable, f.item(uid).Status)
	assert.Equal(t, 1, f.product(caviarID).StockQuantity)
	assert.Error(t, f.audit.last().Err)
}

func TestMarkItemsSold_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.MarkItemsSold(context.Background(), SoldCommand{ItemUIDs: []string{"CAV-1"}})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = f.svc.MarkItemsSold(context.Background(), SoldCommand{OrderID: 1, ItemUIDs: []string{" "}})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}
