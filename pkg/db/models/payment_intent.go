package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PaymentIntent correlates a hosted payment link with the order it was created for.
type PaymentIntent struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID                 `gorm:"column:order_id;type:uuid;not null"`
	Provider        string                    `gorm:"column:provider;not null"`
	ProviderLinkID  string                    `gorm:"column:provider_link_id;not null"`
	ProviderOrderID string                    `gorm:"column:provider_order_id;not null;uniqueIndex"`
	RedirectURL     string                    `gorm:"column:redirect_url;not null"`
	AmountCents     int64                     `gorm:"column:amount_cents;not null"`
	Status          enums.PaymentIntentStatus `gorm:"column:status;type:text;not null;default:'open'"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }
