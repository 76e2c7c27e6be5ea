package models

import (
	"strings"
	"time"
)

// Product is a catalog product. Its stock columns are the aggregate counters
// for stock that is not tracked per variant.
type Product struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"not null" json:"name"`
	SKU              string    `gorm:"uniqueIndex;not null" json:"sku"`
	SKUPrefix        string    `gorm:"type:varchar(16)" json:"skuPrefix"`
	StockQuantity    int       `gorm:"not null;default:0" json:"stockQuantity"`
	StockWeightGrams float64   `gorm:"not null;default:0" json:"stockWeightGrams"`
	IsActive         bool      `gorm:"default:true" json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`

	Variants []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
}

// TableName specifies the table name for Product model
func (Product) TableName() string {
	return "products"
}

// UIDPrefix returns the code used in front of serialized item identifiers.
// Falls back to the first letters of the SKU when no prefix is set.
func (p Product) UIDPrefix() string {
	prefix := strings.ToUpper(strings.TrimSpace(p.SKUPrefix))
	if prefix != "" {
		return prefix
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(p.SKU) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 3 {
			break
		}
	}
	if b.Len() == 0 {
		return "ITEM"
	}
	return b.String()
}

// ProductVariant is a weight option of a product with its own stock counters
type ProductVariant struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ProductID        uint      `gorm:"not null;index" json:"productId"`
	Name             string    `gorm:"not null" json:"name"` // e.g. "250 g"
	SKU              string    `gorm:"index" json:"sku"`
	WeightGrams      float64   `json:"weightGrams"`
	StockQuantity    int       `gorm:"not null;default:0" json:"stockQuantity"`
	StockWeightGrams float64   `gorm:"not null;default:0" json:"stockWeightGrams"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`

	Product *Product `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for ProductVariant model
func (ProductVariant) TableName() string {
	return "product_variants"
}
