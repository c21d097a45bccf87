package product

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Service exposes staff stock management. Every write goes through the
// inventory ledger so it cannot race a checkout reservation.
type Service interface {
	Get(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	Restock(ctx context.Context, productID uuid.UUID, qty int) (*ProductDTO, error)
	Correct(ctx context.Context, productID uuid.UUID, expectedStock, newStock int) (*ProductDTO, error)
	LowStock(ctx context.Context, limit int) ([]ProductDTO, error)
}

type service struct {
	ledger *inventory.Ledger
	logg   *logger.Logger
}

// NewService wires the stock management service.
func NewService(ledger *inventory.Ledger, logg *logger.Logger) (Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{ledger: ledger, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	p, err := s.ledger.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*p)
	return &dto, nil
}

// Restock adds qty units received from a supplier.
func (s *service) Restock(ctx context.Context, productID uuid.UUID, qty int) (*ProductDTO, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be at least 1")
	}
	if err := s.ledger.Increment(ctx, productID, qty); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "product_id", productID.String()), fmt.Sprintf("restocked %d units", qty))
	return s.Get(ctx, productID)
}

// Correct sets stock to newStock after a count, provided nothing moved it away
// from expectedStock since the count was read.
func (s *service) Correct(ctx context.Context, productID uuid.UUID, expectedStock, newStock int) (*ProductDTO, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if expectedStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected stock cannot be negative")
	}
	if err := s.ledger.Adjust(ctx, productID, expectedStock, newStock); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "product_id", productID.String()), fmt.Sprintf("stock corrected %d -> %d", expectedStock, newStock))
	return s.Get(ctx, productID)
}

func (s *service) LowStock(ctx context.Context, limit int) ([]ProductDTO, error) {
	rows, err := s.ledger.LowStock(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return out, nil
}
