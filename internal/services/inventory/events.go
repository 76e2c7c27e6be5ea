package inventory

import (
	"strconv"
	"time"
)

// EventType names a committed inventory change
type EventType string

const (
	EventItemsReceived     EventType = "items_received"
	EventStockAdjusted     EventType = "stock_adjusted"
	EventItemStatusChanged EventType = "item_status_changed"
	EventItemsSold         EventType = "items_sold"
)

// InventoryEvent is published to live listeners after commit
type InventoryEvent struct {
	Type          EventType `json:"type"`
	ProductID     uint      `json:"product_id"`
	VariantID     *uint     `json:"variant_id,omitempty"`
	ItemUIDs      []string  `json:"item_uids,omitempty"`
	QuantityDelta int       `json:"quantity_delta"`
	At            time.Time `json:"at"`
}

func defaultCacheKey(productID uint) string {
	return "inventory:product:" + strconv.FormatUint(uint64(productID), 10)
}
