package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/maisonfine/stockd/internal/apperr"
)

// MovementType tags the cause of a stock movement
type MovementType string

const (
	MovementReceiveSerialized      MovementType = "receive-serialized"
	MovementInitialStock           MovementType = "initial-stock"
	MovementInitialStockVariant    MovementType = "initial-stock-variant"
	MovementManualAdjustment       MovementType = "manual-adjustment"
	MovementCorrection             MovementType = "correction"
	MovementLoss                   MovementType = "loss"
	MovementReturnUnordered        MovementType = "return-unordered"
	MovementStockDiscovery         MovementType = "stock-discovery"
	MovementCustomerReturn         MovementType = "customer-return"
	MovementSerializedStatusChange MovementType = "serialized-status-change"
	MovementOrderFulfillment       MovementType = "order-fulfillment"
)

var movementTypes = map[MovementType]struct{}{
	MovementReceiveSerialized:      {},
	MovementInitialStock:           {},
	MovementInitialStockVariant:    {},
	MovementManualAdjustment:       {},
	MovementCorrection:             {},
	MovementLoss:                   {},
	MovementReturnUnordered:        {},
	MovementStockDiscovery:         {},
	MovementCustomerReturn:         {},
	MovementSerializedStatusChange: {},
	MovementOrderFulfillment:       {},
}

// Valid reports whether t belongs to the fixed movement type set
func (t MovementType) Valid() bool {
	_, ok := movementTypes[t]
	return ok
}

// StockMovement is one immutable ledger row
type StockMovement struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	ProductID         uint         `gorm:"not null;index" json:"productId"`
	VariantID         *uint        `gorm:"index" json:"variantId,omitempty"`
	SerializedItemID  *uint        `gorm:"index" json:"serializedItemId,omitempty"`
	MovementType      MovementType `gorm:"type:varchar(48);not null;index" json:"movementType"`
	QuantityChange    int          `gorm:"not null" json:"quantityChange"`
	WeightChangeGrams *float64     `json:"weightChangeGrams,omitempty"`
	Reason            string       `gorm:"type:text" json:"reason"`
	RelatedOrderID    *uint        `gorm:"index" json:"relatedOrderId,omitempty"`
	RelatedUserID     *uint        `gorm:"index" json:"relatedUserId,omitempty"`
	Notes             string       `gorm:"type:text" json:"notes,omitempty"`
	MovementDate      time.Time    `gorm:"not null;index" json:"movementDate"`

	Product        *Product        `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT" json:"-"`
	Variant        *ProductVariant `gorm:"foreignKey:VariantID;constraint:OnDelete:RESTRICT" json:"-"`
	SerializedItem *SerializedItem `gorm:"foreignKey:SerializedItemID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for StockMovement model
func (StockMovement) TableName() string {
	return "stock_movements"
}

// BeforeUpdate rejects any mutation of a recorded movement
func (StockMovement) BeforeUpdate(tx *gorm.DB) error {
	return apperr.ErrLedgerImmutable
}

// BeforeDelete rejects removal of a recorded movement
func (StockMovement) BeforeDelete(tx *gorm.DB) error {
	return apperr.ErrLedgerImmutable
}
