package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists reservations and their applied lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	CreateLine(ctx context.Context, line *models.ReservationLine) error
	FindByToken(ctx context.Context, token string) (*models.Reservation, error)
	Lines(ctx context.Context, token string) ([]models.ReservationLine, error)
	MarkReleased(ctx context.Context, token string, at time.Time) (bool, error)
	MarkConsumed(ctx context.Context, token string, at time.Time) (bool, error)
	AttachOrder(ctx context.Context, token string, orderID uuid.UUID) (bool, error)
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reservation repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Omit("Lines").Create(reservation).Error
}

func (r *repository) CreateLine(ctx context.Context, line *models.ReservationLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *repository) FindByToken(ctx context.Context, token string) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("token = ?", token).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) Lines(ctx context.Context, token string) ([]models.ReservationLine, error) {
	var lines []models.ReservationLine
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		Order("product_id ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repository) MarkReleased(ctx context.Context, token string, at time.Time) (bool, error) {
	return r.leaveHeld(ctx, token, map[string]any{
		"status":      enums.ReservationStatusReleased,
		"released_at": at,
	})
}

func (r *repository) MarkConsumed(ctx context.Context, token string, at time.Time) (bool, error) {
	return r.leaveHeld(ctx, token, map[string]any{
		"status":      enums.ReservationStatusConsumed,
		"consumed_at": at,
	})
}

func (r *repository) AttachOrder(ctx context.Context, token string, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("token = ? AND status = ? AND order_id IS NULL", token, enums.ReservationStatusHeld).
		Update("order_id", orderID)
	return res.RowsAffected == 1, res.Error
}

// FindStale lists held reservations that never reached an order.
func (r *repository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	var out []models.Reservation
	q := r.db.WithContext(ctx).
		Where("status = ? AND order_id IS NULL AND created_at < ?", enums.ReservationStatusHeld, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// leaveHeld moves a held reservation to another status. A reservation leaves
// held exactly once, so the update is conditional on the current status.
func (r *repository) leaveHeld(ctx context.Context, token string, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("token = ? AND status = ?", token, enums.ReservationStatusHeld).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}
