package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ProcessedEvent records an idempotency key that already advanced an order.
type ProcessedEvent struct {
	Key          string            `gorm:"column:key;primaryKey"`
	OrderID      uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	TargetStatus enums.OrderStatus `gorm:"column:target_status;type:text;not null"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
