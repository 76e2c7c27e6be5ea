package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/models"
)

func TestEntry_LogSuccess(t *testing.T) {
	actor := uint(4)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	row := Entry{
		ActorID:    &actor,
		Action:     "inventory.adjust",
		TargetType: "product",
		TargetID:   "7",
		Details:    map[string]interface{}{"quantity_delta": -2},
	}.Log(at)

	assert.Equal(t, models.AuditSuccess, row.Status)
	assert.Equal(t, &actor, row.ActorID)
	assert.Equal(t, at, row.CreatedAt)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(row.Details, &details))
	assert.Equal(t, float64(-2), details["quantity_delta"])
	assert.NotContains(t, details, "error")
}

func TestEntry_LogFailure(t *testing.T) {
	in := map[string]interface{}{"quantity": 5}
	row := Entry{
		Action:  "inventory.receive_serialized",
		Details: in,
		Err:     apperr.New(apperr.ErrProductNotFound, "product 999 not found"),
	}.Log(time.Now())

	assert.Equal(t, models.AuditFailure, row.Status)
	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(row.Details, &details))
	assert.Equal(t, "product 999 not found", details["error"])
	assert.Equal(t, "product_not_found", details["code"])
	assert.NotContains(t, in, "error", "caller details must not be mutated")
}

func TestEntry_LogUnserializableDetails(t *testing.T) {
	row := Entry{Action: "x", Details: map[string]interface{}{"ch": make(chan int)}}.Log(time.Now())
	assert.JSONEq(t, `{"error":"details not serializable"}`, string(row.Details))
}
