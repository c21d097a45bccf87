package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the persisted record of a submitted checkout. Customer, items and
// total are write-once; status, payment_proof_ref and updated_at may change.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerName      string              `gorm:"column:customer_name;not null"`
	CustomerEmail     string              `gorm:"column:customer_email;not null"`
	CustomerPhone     string              `gorm:"column:customer_phone;not null"`
	CustomerTaxID     *string             `gorm:"column:customer_tax_id"`
	DeliveryAddress   *string             `gorm:"column:delivery_address"`
	PickupNote        *string             `gorm:"column:pickup_note"`
	DeliveryType      enums.DeliveryType  `gorm:"column:delivery_type;type:text;not null"`
	PaymentMethod     enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Status            enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	ReservationToken  string              `gorm:"column:reservation_token;not null;uniqueIndex"`
	PaymentProofRef   *string             `gorm:"column:payment_proof_ref"`
	TotalCents        int64               `gorm:"column:total_cents;not null"`
	Currency          string              `gorm:"column:currency;not null;default:'USD'"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	Items             []OrderItem         `gorm:"foreignKey:OrderID;references:ID"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is the frozen snapshot of a cart line at submission time.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	LineTotalCents int64     `gorm:"column:line_total_cents;not null"`
	ImageURL       *string   `gorm:"column:image_url"`
}

func (OrderItem) TableName() string { return "order_items" }
