package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Proof is the transfer receipt a customer uploads with an offline checkout.
type Proof struct {
	Filename string
	Size     int64
	Content  []byte
}

// Attempt identifies the checkout a path is staging for.
type Attempt struct {
	Token string
	Proof *Proof
}

// Staged carries what a path prepared before the order exists.
type Staged struct {
	PaymentProofRef *string

	proofObject string
}

// PendingState is where the order waits once the payment step has begun.
type PendingState struct {
	Status      enums.OrderStatus
	RedirectURL string
}

// ConfirmationEvent settles a pending payment. OrderID or ProviderOrderID must
// be set; EventID is the idempotency key for the confirmation. Paid, when the
// provider reports it, must match the order total.
type ConfirmationEvent struct {
	OrderID         uuid.UUID
	ProviderOrderID string
	EventID         string
	Paid            *Amount
}

// Amount is a sum of money in minor units.
type Amount struct {
	Cents    int64
	Currency string
}

// PaymentPath is one way of paying for an order. A checkout picks a path once
// and never switches.
type PaymentPath interface {
	Method() enums.PaymentMethod
	// Check runs before any stock is reserved.
	Check(proof *Proof) error
	// Stage runs after the reservation is held and before the order is created.
	Stage(ctx context.Context, attempt Attempt) (Staged, error)
	// Discard undoes Stage when the order could not be created.
	Discard(ctx context.Context, staged Staged) error
	// Begin runs after the order is persisted.
	Begin(ctx context.Context, order *models.Order) (PendingState, error)
	Confirm(ctx context.Context, event ConfirmationEvent) (orders.TransitionResult, error)
}

// OrderManager is the part of the order record manager the paths use.
type OrderManager interface {
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, key string) (orders.TransitionResult, error)
	FindByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error)
	RecordPaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
}

// Registry selects the payment path for a method.
type Registry struct {
	paths map[enums.PaymentMethod]PaymentPath
}

func NewRegistry(paths ...PaymentPath) (*Registry, error) {
	registry := &Registry{paths: make(map[enums.PaymentMethod]PaymentPath, len(paths))}
	for _, path := range paths {
		if path == nil {
			return nil, fmt.Errorf("payment path is nil")
		}
		method := path.Method()
		if _, exists := registry.paths[method]; exists {
			return nil, fmt.Errorf("payment path %s registered twice", method)
		}
		registry.paths[method] = path
	}
	return registry, nil
}

// Path returns the path registered for method.
func (r *Registry) Path(method enums.PaymentMethod) (PaymentPath, error) {
	path, ok := r.paths[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"paymentMethod": string(method)})
	}
	return path, nil
}
