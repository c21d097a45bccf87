package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists orders, their item snapshots and payment correlation rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error)
	FindPendingBefore(ctx context.Context, status enums.OrderStatus, method enums.PaymentMethod, cutoff time.Time, limit int) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
	SetPaymentProof(ctx context.Context, id uuid.UUID, ref string, at time.Time) (bool, error)
	CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
	CloseOpenPaymentIntents(ctx context.Context, orderID uuid.UUID, status enums.PaymentIntentStatus) error
	FindProcessedEvent(ctx context.Context, key string) (*models.ProcessedEvent, error)
	RecordEvent(ctx context.Context, event *models.ProcessedEvent) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items").Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Joins("JOIN payment_intents pi ON pi.order_id = orders.id").
		Where("pi.provider_order_id = ?", providerOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, status enums.OrderStatus, method enums.PaymentMethod, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_method = ? AND created_at < ?", status, method, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPaymentProof attaches a proof once; an order that already carries one is left alone.
func (r *repository) SetPaymentProof(ctx context.Context, id uuid.UUID, ref string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_proof_ref IS NULL", id).
		Updates(map[string]any{
			"payment_proof_ref": ref,
			"updated_at":        at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) CloseOpenPaymentIntents(ctx context.Context, orderID uuid.UUID, status enums.PaymentIntentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentIntentStatusOpen).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) FindProcessedEvent(ctx context.Context, key string) (*models.ProcessedEvent, error) {
	var event models.ProcessedEvent
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) RecordEvent(ctx context.Context, event *models.ProcessedEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
