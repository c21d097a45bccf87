package product

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// ProductDTO represents the stock view of a product returned to staff.
type ProductDTO struct {
	ID         uuid.UUID `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	ImageURL   *string   `json:"image_url,omitempty"`
	Stock      int       `json:"stock"`
	MinStock   int       `json:"min_stock"`
	LowStock   bool      `json:"low_stock"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toDTO(p models.Product) ProductDTO {
	return ProductDTO{
		ID:         p.ID,
		SKU:        p.SKU,
		Name:       p.Name,
		PriceCents: p.PriceCents,
		ImageURL:   p.ImageURL,
		Stock:      p.Stock,
		MinStock:   p.MinStock,
		LowStock:   p.Stock <= p.MinStock,
		UpdatedAt:  p.UpdatedAt,
	}
}
