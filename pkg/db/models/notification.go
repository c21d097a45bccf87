package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Notification stores the message delivered for an order status change.
type Notification struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID                  `gorm:"column:order_id;type:uuid;not null"`
	Audience  enums.NotificationAudience `gorm:"column:audience;type:text;not null"`
	Channel   string                     `gorm:"column:channel;type:text;not null"`
	Message   string                     `gorm:"column:message;type:text;not null"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }
