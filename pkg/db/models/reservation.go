package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Reservation is a token-scoped stock hold created at the start of a checkout attempt.
type Reservation struct {
	Token      string                  `gorm:"column:token;primaryKey"`
	Status     enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'held'"`
	OrderID    *uuid.UUID              `gorm:"column:order_id;type:uuid"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
	ConsumedAt *time.Time              `gorm:"column:consumed_at"`
	ReleasedAt *time.Time              `gorm:"column:released_at"`
	Lines      []ReservationLine       `gorm:"foreignKey:Token;references:Token"`
}

func (Reservation) TableName() string { return "reservations" }

// ReservationLine records a quantity that was actually decremented under a token.
type ReservationLine struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Token     string    `gorm:"column:token;not null"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Qty       int       `gorm:"column:qty;not null"`
}

func (ReservationLine) TableName() string { return "reservation_lines" }
