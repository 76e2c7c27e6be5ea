package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/models"
)

func TestAdjustAggregateStock_Loss(t *testing.T) {
	f := newFixture(t)
	f.cache.data[f.svc.cacheKey(truffleID)] = []byte(`{}`)

	res, err := f.svc.AdjustAggregateStock(context.Background(), AdjustCommand{
		ProductID:     truffleID,
		Type:          models.MovementLoss,
		QuantityDelta: -2,
		Reason:        "breakage",
		ActorID:       uintPtr(3),
	})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Level.Quantity)
	assert.False(t, res.Negative)
	assert.False(t, res.Skipped)
	assert.Equal(t, 8, f.product(truffleID).StockQuantity)

	movements := f.store.movementsFor(truffleID)
	require.Len(t, movements, 1)
	assert.Equal(t, res.MovementID, movements[0].ID)
	assert.Equal(t, -2, movements[0].QuantityChange)
	assert.Equal(t, models.MovementLoss, movements[0].MovementType)
	assert.Equal(t, "breakage", movements[0].Reason)
	assert.Nil(t, movements[0].SerializedItemID)

	assert.NotContains(t, f.cache.data, f.svc.cacheKey(truffleID))
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, EventStockAdjusted, f.notifier.events[0].Type)
	assert.Equal(t, "inventory.adjust_stock", f.audit.last().Action)
	assert.NoError(t, f.audit.last().Err)
}

func TestAdjustAggregateStock_VariantWithWeight(t *testing.T) {
	f := newFixture(t)
	weight := 500.0

	res, err := f.svc.AdjustAggregateStock(context.Background(), AdjustCommand{
		ProductID:        truffleID,
		VariantID:        uintPtr(truffle250g),
		Type:             models.MovementStockDiscovery,
		QuantityDelta:    2,
		WeightDeltaGrams: &weight,
		Reason:           "found in cold room",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Level.Quantity)
	assert.Equal(t, 500.0, res.Level.WeightGrams)
	assert.Equal(t, 10, f.product(truffleID).StockQuantity, "product counter is untouched")

	mv := f.store.movementsFor(truffleID)[0]
	assert.Equal(t, uintPtr(truffle250g), mv.VariantID)
	assert.Equal(t, &weight, mv.WeightChangeGrams)
}

func TestAdjustAggregateStock_NegativeAllowed(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.AdjustAggregateStock(context.Background(), AdjustCommand{
		ProductID:     caviarID,
		Type:          models.MovementCorrection,
		QuantityDelta: -3,
		Reason:        "miscounted delivery",
	})
	require.NoError(t, err)
	assert.True(t, res.Negative)
	assert.Equal(t, -3, res.Level.Quantity)
	assert.Equal(t, f.product(caviarID).StockQuantity, f.store.ledgerSum(caviarID, nil))
}

func TestAdjustAggregateStock_ZeroDeltaSkipsWrites(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.AdjustAggregateStock(context.Background(), AdjustCommand{
		ProductID: truffleID,
		Type:      models.MovementManualAdjustment,
		Reason:    "recount, nothing changed",
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 10, res.Level.Quantity)
	assert.Empty(t, f.store.movementsFor(truffleID))
	assert.Empty(t, f.notifier.events)
	assert.Equal(t, true, f.audit.last().Details["skipped"])
}

func TestAdjustAggregateStock_Validation(t *testing.T) {
	cases := []struct {
		name string
		cmd  AdjustCommand
		want *apperr.Error
	}{
		{"missing reason", AdjustCommand{ProductID: truffleID, Type: models.MovementLoss, QuantityDelta: -1, Reason: "   "}, apperr.ErrReasonRequired},
		{"unknown type", AdjustCommand{ProductID: truffleID, Type: "teleport", QuantityDelta: 1, Reason: "x"}, apperr.ErrInvalidMovementType},
		{"system type", AdjustCommand{ProductID: truffleID, Type: models.MovementReceiveSerialized, QuantityDelta: 1, Reason: "x"}, apperr.ErrInvalidMovementType},
		{"fulfillment type", AdjustCommand{ProductID: truffleID, Type: models.MovementOrderFulfillment, QuantityDelta: -1, Reason: "x"}, apperr.ErrInvalidMovementType},
		{"missing product", AdjustCommand{Type: models.MovementLoss, QuantityDelta: -1, Reason: "x"}, apperr.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.AdjustAggregateStock(context.Background(), tc.cmd)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Empty(t, f.store.state.movements)
			assert.Equal(t, 10, f.product(truffleID).StockQuantity)
			assert.Error(t, f.audit.last().Err)
		})
	}
}

func TestAdjustAggregateStock_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdjustAggregateStock(context.Background(), AdjustCommand{ProductID: 999, Type: models.MovementLoss, QuantityDelta: -1, Reason: "x"})
	assert.True(t, errors.Is(err, apperr.ErrProductNotFound))

	_, err = f.svc.AdjustAggregateStock(context.Background(), AdjustCommand{ProductID: caviarID, VariantID: uintPtr(truffle250g), Type: models.MovementLoss, QuantityDelta: -1, Reason: "x"})
	assert.True(t, errors.Is(err, apperr.ErrVariantNotFound))
}

func TestAdjustAggregateStock_LedgerFailureRollsBackCounter(t *testing.T) {
	f := newFixture(t)
	f.store.failOn["RecordMovement"] = errors.New("connection reset")

	_, err := f.svc.AdjustAggregateStock(context.Background(), AdjustCommand{ProductID: truffleID, Type: models.MovementLoss, QuantityDelta: -4, Reason: "spoiled"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.Equal(t, 10, f.product(truffleID).StockQuantity)
	assert.Empty(t, f.store.movementsFor(truffleID))
	assert.Empty(t, f.notifier.events)
}
