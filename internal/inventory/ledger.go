package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Outcome is the result of a conditional stock decrement.
type Outcome int

const (
	OutcomeOk Outcome = iota
	OutcomeInsufficientStock
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOk:
		return "ok"
	case OutcomeInsufficientStock:
		return "insufficient_stock"
	default:
		return "unknown"
	}
}

// Ledger owns every write to products.stock. All writes are single conditional
// UPDATE statements; stock is never read and written back.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedger builds a ledger bound to the provided DB.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithTx returns a ledger that issues its statements on tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	if tx == nil {
		return l
	}
	return &Ledger{db: tx, now: l.now}
}

// TryDecrement removes qty units when at least qty are available.
func (l *Ledger) TryDecrement(ctx context.Context, productID uuid.UUID, qty int) (Outcome, error) {
	if qty < 1 {
		return OutcomeInsufficientStock, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	res := l.db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`,
		qty, l.now(), productID, qty,
	)
	if res.Error != nil {
		return OutcomeInsufficientStock, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected == 1 {
		return OutcomeOk, nil
	}
	if err := l.ensureExists(ctx, productID); err != nil {
		return OutcomeInsufficientStock, err
	}
	return OutcomeInsufficientStock, nil
}

// Increment returns qty units to the pool. There is no upper bound.
func (l *Ledger) Increment(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	res := l.db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?`,
		qty, l.now(), productID,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

// Adjust overwrites stock only when it still equals expected, the value the
// caller read before deciding on newStock.
func (l *Ledger) Adjust(ctx context.Context, productID uuid.UUID, expected, newStock int) error {
	if newStock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	res := l.db.WithContext(ctx).Exec(
		`UPDATE products SET stock = ?, updated_at = ? WHERE id = ? AND stock = ?`,
		newStock, l.now(), productID, expected,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "adjust stock")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := l.ensureExists(ctx, productID); err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "stock changed since it was read").
		WithDetails(map[string]any{"productId": productID.String()})
}

// Get returns a single catalog entry.
func (l *Ledger) Get(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := l.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

// GetMany loads the requested products keyed by id. Missing ids are absent from the map.
func (l *Ledger) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := l.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// LowStock lists products at or below their reorder threshold, lowest stock first.
func (l *Ledger) LowStock(ctx context.Context, limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	var products []models.Product
	err := l.db.WithContext(ctx).
		Where("stock <= min_stock").
		Order("stock ASC").
		Order("sku ASC").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock")
	}
	return products, nil
}

func (l *Ledger) ensureExists(ctx context.Context, productID uuid.UUID) error {
	var count int64
	if err := l.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product")
	}
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"productId": productID.String()})
	}
	return nil
}
