package payments

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/storage/gcs"
)

const DefaultProofMaxBytes int64 = 5 << 20

// ProofStore persists uploaded payment proofs.
type ProofStore interface {
	Upload(ctx context.Context, name, contentType string, payload []byte) (gcs.Object, error)
	Delete(ctx context.Context, name string) error
}

type OfflineTransferParams struct {
	Store        ProofStore
	Orders       OrderManager
	Logger       *logger.Logger
	MaxBytes     int64
	AllowedTypes []string
	Prefix       string
}

// OfflineTransfer collects a proof of a manual bank transfer. Staff confirm the
// order after checking the transfer landed.
type OfflineTransfer struct {
	store        ProofStore
	orders       OrderManager
	logg         *logger.Logger
	maxBytes     int64
	allowedTypes []string
	prefix       string
}

func NewOfflineTransfer(params OfflineTransferParams) (*OfflineTransfer, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("proof store required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxBytes := params.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultProofMaxBytes
	}
	allowed := params.AllowedTypes
	if len(allowed) == 0 {
		allowed = []string{"image/png", "image/jpeg", "image/webp", "application/pdf"}
	}
	prefix := strings.Trim(params.Prefix, "/")
	if prefix == "" {
		prefix = "proofs"
	}
	return &OfflineTransfer{
		store:        params.Store,
		orders:       params.Orders,
		logg:         params.Logger,
		maxBytes:     maxBytes,
		allowedTypes: allowed,
		prefix:       prefix,
	}, nil
}

func (o *OfflineTransfer) Method() enums.PaymentMethod {
	return enums.PaymentMethodOfflineTransfer
}

// Check rejects a missing, empty, oversized or unsupported proof.
func (o *OfflineTransfer) Check(proof *Proof) error {
	if proof == nil || len(proof.Content) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment proof is required")
	}
	size := proof.Size
	if int64(len(proof.Content)) > size {
		size = int64(len(proof.Content))
	}
	if size > o.maxBytes {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment proof is too large").
			WithDetails(map[string]any{"maxBytes": o.maxBytes, "size": size})
	}
	if _, ok := o.sniff(proof.Content); !ok {
		detected := mimetype.Detect(proof.Content)
		return pkgerrors.New(pkgerrors.CodeValidation, "payment proof type not allowed").
			WithDetails(map[string]any{"contentType": detected.String(), "allowed": o.allowedTypes})
	}
	return nil
}

func (o *OfflineTransfer) sniff(content []byte) (*mimetype.MIME, bool) {
	detected := mimetype.Detect(content)
	for _, allowed := range o.allowedTypes {
		if detected.Is(strings.TrimSpace(allowed)) {
			return detected, true
		}
	}
	return detected, false
}

// Stage uploads the proof under the reservation token.
func (o *OfflineTransfer) Stage(ctx context.Context, attempt Attempt) (Staged, error) {
	if err := o.Check(attempt.Proof); err != nil {
		return Staged{}, err
	}
	detected, _ := o.sniff(attempt.Proof.Content)
	name := path.Join(o.prefix, attempt.Token, uuid.NewString()+detected.Extension())

	object, err := o.store.Upload(ctx, name, detected.String(), attempt.Proof.Content)
	if err != nil {
		return Staged{}, pkgerrors.Wrap(pkgerrors.CodePaymentStep, err, "store payment proof")
	}
	ref := object.Ref()
	o.logg.Info(o.logg.WithReservationToken(ctx, attempt.Token), "payment proof stored")
	return Staged{PaymentProofRef: &ref, proofObject: object.Name}, nil
}

// Discard removes a proof uploaded for a checkout that never produced an order.
func (o *OfflineTransfer) Discard(ctx context.Context, staged Staged) error {
	if staged.proofObject == "" {
		return nil
	}
	if err := o.store.Delete(ctx, staged.proofObject); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete payment proof").
			WithDetails(map[string]any{"object": staged.proofObject})
	}
	return nil
}

// Begin has nothing to start: the order already waits for staff verification.
func (o *OfflineTransfer) Begin(_ context.Context, order *models.Order) (PendingState, error) {
	return PendingState{Status: order.Status}, nil
}

// Confirm records the staff verification of the transfer.
func (o *OfflineTransfer) Confirm(ctx context.Context, event ConfirmationEvent) (orders.TransitionResult, error) {
	if event.OrderID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return o.orders.Transition(ctx, event.OrderID, enums.OrderStatusConfirmed, event.EventID)
}
