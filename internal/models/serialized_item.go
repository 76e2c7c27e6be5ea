package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/maisonfine/stockd/internal/apperr"
)

// ItemStatus is the lifecycle state of a serialized item
type ItemStatus string

const (
	ItemStatusAvailable        ItemStatus = "available"
	ItemStatusReservedInternal ItemStatus = "reserved_internal"
	ItemStatusDamaged          ItemStatus = "damaged"
	ItemStatusRecalled         ItemStatus = "recalled"
	ItemStatusMissing          ItemStatus = "missing"
	ItemStatusSold             ItemStatus = "sold" // terminal, set by order fulfillment
)

// ManualStatuses are the statuses an admin may set by hand
var ManualStatuses = []ItemStatus{
	ItemStatusAvailable,
	ItemStatusDamaged,
	ItemStatusRecalled,
	ItemStatusReservedInternal,
	ItemStatusMissing,
}

// Valid reports whether s is a known status
func (s ItemStatus) Valid() bool {
	return s == ItemStatusSold || s.Manual()
}

// Manual reports whether s may be set by a manual status change
func (s ItemStatus) Manual() bool {
	for _, m := range ManualStatuses {
		if s == m {
			return true
		}
	}
	return false
}

// Sellable reports whether an item in this status counts towards aggregate stock
func (s ItemStatus) Sellable() bool {
	return s == ItemStatusAvailable
}

// Terminal reports whether no further transitions are allowed
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusSold
}

// SerializedItem is one physically trackable unit
type SerializedItem struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	ItemUID        string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"itemUid"`
	ProductID      uint                `gorm:"not null;index" json:"productId"`
	VariantID      *uint               `gorm:"index" json:"variantId,omitempty"`
	BatchNumber    *string             `gorm:"type:varchar(64);index" json:"batchNumber,omitempty"`
	ProductionDate *time.Time          `gorm:"type:date" json:"productionDate,omitempty"`
	ExpiryDate     *time.Time          `gorm:"type:date" json:"expiryDate,omitempty"`
	CostPrice      decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"costPrice"`
	Notes          string              `gorm:"type:text" json:"notes"`
	Status         ItemStatus          `gorm:"type:varchar(32);not null;default:'available';index" json:"status"`
	QRCodePath     string              `json:"qrCodePath"`
	PassportPath   string              `json:"passportPath"`
	ReceivedAt     time.Time           `gorm:"not null" json:"receivedAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	SoldAt         *time.Time          `json:"soldAt,omitempty"`

	Product *Product        `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT" json:"-"`
	Variant *ProductVariant `gorm:"foreignKey:VariantID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for SerializedItem model
func (SerializedItem) TableName() string {
	return "serialized_inventory_items"
}

// BeforeDelete keeps historical units: records persist even when the unit is lost
func (SerializedItem) BeforeDelete(tx *gorm.DB) error {
	return apperr.ErrItemPermanent
}
