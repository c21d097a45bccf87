package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a sellable catalog entry. Stock is only ever changed through
// conditional updates issued by the inventory ledger.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex"`
	Name       string    `gorm:"column:name;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	ImageURL   *string   `gorm:"column:image_url"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	MinStock   int       `gorm:"column:min_stock;not null;default:5"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }
