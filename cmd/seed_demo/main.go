package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/maisonfine/stockd/internal/config"
	"github.com/maisonfine/stockd/internal/database"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/models"
)

type demoVariant struct {
	name     string
	grams    float64
	quantity int
}

type demoProduct struct {
	name     string
	sku      string
	prefix   string
	quantity int
	grams    float64
	variants []demoVariant
}

var catalog = []demoProduct{
	{name: "Black Truffle", sku: "truffle-black", prefix: "TRF", quantity: 12, grams: 1800},
	{name: "Oscietra Caviar", sku: "caviar-oscietra", prefix: "CAV", variants: []demoVariant{
		{name: "50 g", grams: 50, quantity: 20},
		{name: "125 g", grams: 125, quantity: 8},
		{name: "250 g", grams: 250, quantity: 3},
	}},
	{name: "Iberico Ham", sku: "ham-iberico", prefix: "IBH", quantity: 4, grams: 32000},
	{name: "Saffron Threads", sku: "saffron", variants: []demoVariant{
		{name: "1 g", grams: 1, quantity: 40},
		{name: "5 g", grams: 5, quantity: 15},
	}},
}

func main() {
	fmt.Println("🌱 stockd demo data seeder")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg.Database, zap.NewNop())
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	var productCount int64
	db.Model(&models.Product{}).Count(&productCount)
	if productCount > 0 {
		// The ledger is append-only, so existing data is never cleared
		fmt.Printf("⚠️  Database already has %d products. Nothing to do.\n", productCount)
		return
	}

	ctx := context.Background()
	for _, p := range catalog {
		if err := seedProduct(ctx, db.DB, p); err != nil {
			log.Fatalf("❌ Failed to seed %s: %v", p.name, err)
		}
		fmt.Printf("  ✓ %s\n", p.name)
	}
	fmt.Println("✅ Demo data created")
}

// seedProduct creates the product and books its opening stock through the ledger
func seedProduct(ctx context.Context, db *gorm.DB, p demoProduct) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product := models.Product{Name: p.name, SKU: p.sku, SKUPrefix: p.prefix, IsActive: true}
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		repo := ledger.New(tx)

		if p.quantity != 0 || p.grams != 0 {
			grams := p.grams
			if _, err := repo.Record(ctx, ledger.Entry{
				ProductID:        product.ID,
				Type:             models.MovementInitialStock,
				QuantityDelta:    p.quantity,
				WeightDeltaGrams: &grams,
				Reason:           "Opening stock",
				At:               now,
			}); err != nil {
				return err
			}
			if _, err := repo.Adjust(ctx, product.ID, nil, p.quantity, &grams); err != nil {
				return err
			}
		}

		for _, v := range p.variants {
			variant := models.ProductVariant{
				ProductID:   product.ID,
				Name:        v.name,
				SKU:         fmt.Sprintf("%s-%g", p.sku, v.grams),
				WeightGrams: v.grams,
			}
			if err := tx.Create(&variant).Error; err != nil {
				return err
			}
			variantID := variant.ID
			grams := v.grams * float64(v.quantity)
			if _, err := repo.Record(ctx, ledger.Entry{
				ProductID:        product.ID,
				VariantID:        &variantID,
				Type:             models.MovementInitialStockVariant,
				QuantityDelta:    v.quantity,
				WeightDeltaGrams: &grams,
				Reason:           "Opening stock",
				At:               now,
			}); err != nil {
				return err
			}
			if _, err := repo.Adjust(ctx, product.ID, &variantID, v.quantity, &grams); err != nil {
				return err
			}
		}
		return nil
	})
}
