package orders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/reservation"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Reservations is the slice of the reservation coordinator the manager drives
// inside its own transactions.
type Reservations interface {
	AttachOrder(ctx context.Context, tx *gorm.DB, token string, orderID uuid.UUID) error
	Consume(ctx context.Context, tx *gorm.DB, token string) (bool, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, token string) (reservation.ReleaseOutcome, error)
}

// Notifier is told about every accepted status change. from is empty for a
// freshly created order.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, order *models.Order, from enums.OrderStatus)
}

// Customer is the contact and delivery data frozen on the order.
type Customer struct {
	Name            string
	Email           string
	Phone           string
	TaxID           *string
	DeliveryAddress *string
	PickupNote      *string
}

// Item is the priced snapshot of one cart line.
type Item struct {
	ProductID      uuid.UUID
	Name           string
	UnitPriceCents int64
	Qty            int
	ImageURL       *string
}

// NewOrder is everything needed to persist an order once its reservation is held.
type NewOrder struct {
	Customer         Customer
	DeliveryType     enums.DeliveryType
	PaymentMethod    enums.PaymentMethod
	Items            []Item
	ReservationToken string
	PaymentProofRef  *string
	Currency         string
}

type ManagerParams struct {
	Repo         Repository
	Tx           txRunner
	Reservations Reservations
	Notifier     Notifier
	Logger       *logger.Logger
	Metrics      *metrics.FulfillmentMetrics
	Now          func() time.Time
}

// Manager creates orders and moves them through the status machine.
type Manager struct {
	repo         Repository
	tx           txRunner
	reservations Reservations
	notifier     Notifier
	logg         *logger.Logger
	metrics      *metrics.FulfillmentMetrics
	now          func() time.Time
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Reservations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reservation coordinator required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		repo:         params.Repo,
		tx:           params.Tx,
		reservations: params.Reservations,
		notifier:     params.Notifier,
		logg:         params.Logger,
		metrics:      params.Metrics,
		now:          now,
	}, nil
}

// CreateOrder persists the order and its item snapshot and links it to the held
// reservation, all in one transaction. A failure leaves the reservation held
// and unlinked; releasing it is the caller's job.
func (m *Manager) CreateOrder(ctx context.Context, input NewOrder) (*models.Order, error) {
	if err := Validate(input); err != nil {
		return nil, err
	}

	now := m.now()
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}

	order := &models.Order{
		ID:               uuid.New(),
		CustomerName:     strings.TrimSpace(input.Customer.Name),
		CustomerEmail:    strings.TrimSpace(input.Customer.Email),
		CustomerPhone:    strings.TrimSpace(input.Customer.Phone),
		CustomerTaxID:    input.Customer.TaxID,
		DeliveryAddress:  input.Customer.DeliveryAddress,
		PickupNote:       input.Customer.PickupNote,
		DeliveryType:     input.DeliveryType,
		PaymentMethod:    input.PaymentMethod,
		Status:           InitialStatus(input.PaymentMethod, input.PaymentProofRef != nil),
		ReservationToken: input.ReservationToken,
		PaymentProofRef:  input.PaymentProofRef,
		Currency:         currency,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		lineTotal := decimal.NewFromInt(item.UnitPriceCents).Mul(decimal.NewFromInt(int64(item.Qty)))
		total = total.Add(lineTotal)
		items = append(items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
			LineTotalCents: lineTotal.IntPart(),
			ImageURL:       item.ImageURL,
		})
	}
	order.TotalCents = total.IntPart()

	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "reservation already backs an order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		return m.reservations.AttachOrder(ctx, tx, input.ReservationToken, order.ID)
	})
	if err != nil {
		return nil, err
	}
	order.Items = items

	ctx = m.logg.WithOrderID(ctx, order.ID.String())
	m.logg.Info(ctx, fmt.Sprintf("order created in %s", order.Status))
	m.notifier.OrderStatusChanged(ctx, order, "")
	return order, nil
}

// Transition moves an order to target when the status machine allows it.
//
// A non-empty key makes the call idempotent: replaying a recorded key for the
// same order and target, or confirming an order already past confirmed, yields
// TransitionAlreadyApplied without any side effect. A recorded key presented
// for a different order or target fails with CodeIdempotency. Moving to
// confirmed consumes the order's reservation; moving to cancelled releases it
// when it is still held. Notifications fire only for TransitionOk, after commit.
func (m *Manager) Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, key string) (TransitionResult, error) {
	if orderID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !target.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid target status").
			WithDetails(map[string]any{"status": string(target)})
	}
	key = strings.TrimSpace(key)
	ctx = m.logg.WithOrderID(ctx, orderID.String())

	var (
		result TransitionResult
		from   enums.OrderStatus
	)
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		from = order.Status

		if key != "" {
			event, err := repo.FindProcessedEvent(ctx, key)
			switch {
			case err == nil:
				result, err = replayed(event, order.ID, target)
				return err
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check processed event")
			}
		}
		if order.Status == target {
			result = TransitionAlreadyApplied
			return nil
		}
		if !CanTransition(order.PaymentMethod, order.Status, target) {
			if key != "" && target == enums.OrderStatusConfirmed && order.Status != enums.OrderStatusCancelled && IsPast(order.Status, target) {
				result = TransitionAlreadyApplied
			} else {
				result = TransitionInvalid
			}
			return nil
		}

		updated, err := repo.UpdateStatus(ctx, order.ID, order.Status, target, m.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
		}

		if key != "" {
			if err := repo.RecordEvent(ctx, &models.ProcessedEvent{
				Key:          key,
				OrderID:      order.ID,
				TargetStatus: target,
				CreatedAt:    m.now(),
			}); err != nil {
				if db.IsUniqueViolation(err, "") {
					return errAlreadyApplied
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record processed event")
			}
		}

		switch target {
		case enums.OrderStatusConfirmed:
			if _, err := m.reservations.Consume(ctx, tx, order.ReservationToken); err != nil {
				return err
			}
			if err := repo.CloseOpenPaymentIntents(ctx, order.ID, enums.PaymentIntentStatusCompleted); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment intent")
			}
		case enums.OrderStatusCancelled:
			if _, err := m.reservations.ReleaseTx(ctx, tx, order.ReservationToken); err != nil {
				return err
			}
			if err := repo.CloseOpenPaymentIntents(ctx, order.ID, enums.PaymentIntentStatusFailed); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payment intent")
			}
		}

		result = TransitionOk
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		var event *models.ProcessedEvent
		if event, err = m.repo.FindProcessedEvent(ctx, key); err == nil {
			result, err = replayed(event, orderID, target)
		} else {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload processed event")
		}
	}
	if err != nil {
		m.metrics.IncTransition(string(target), "error")
		return "", err
	}

	m.metrics.IncTransition(string(target), string(result))
	switch result {
	case TransitionOk:
		m.logg.Info(ctx, fmt.Sprintf("order moved %s -> %s", from, target))
		order, err := m.repo.FindOrder(ctx, orderID)
		if err != nil {
			m.logg.Error(ctx, "reload order for notification", err)
			break
		}
		m.notifier.OrderStatusChanged(ctx, order, from)
	case TransitionInvalid:
		m.logg.Warn(ctx, fmt.Sprintf("rejected transition %s -> %s", from, target))
	}
	return result, nil
}

// errAlreadyApplied rolls back a transition that lost the race to record its key.
var errAlreadyApplied = errors.New("transition already applied")

// replayed resolves a key that is already recorded. The same key may only
// ever stand for one order moving to one target.
func replayed(event *models.ProcessedEvent, orderID uuid.UUID, target enums.OrderStatus) (TransitionResult, error) {
	if event.OrderID != orderID || event.TargetStatus != target {
		return "", pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for another transition").
			WithDetails(map[string]any{
				"order_id": event.OrderID.String(),
				"status":   string(event.TargetStatus),
			})
	}
	return TransitionAlreadyApplied, nil
}

// Get returns an order with its items.
func (m *Manager) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := m.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// FindByProviderOrderID resolves the order a hosted payment was created for.
func (m *Manager) FindByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error) {
	if strings.TrimSpace(providerOrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider order id required")
	}
	order, err := m.repo.FindByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for provider order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by provider order")
	}
	return order, nil
}

// FindPendingBefore lists orders of method still in status that were created before cutoff.
func (m *Manager) FindPendingBefore(ctx context.Context, status enums.OrderStatus, method enums.PaymentMethod, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := m.repo.FindPendingBefore(ctx, status, method, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find pending orders")
	}
	return rows, nil
}

// RecordPaymentIntent stores the provider correlation for a hosted payment link.
func (m *Manager) RecordPaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	if intent == nil || intent.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent order id required")
	}
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	if intent.Status == "" {
		intent.Status = enums.PaymentIntentStatusOpen
	}
	now := m.now()
	intent.CreatedAt = now
	intent.UpdatedAt = now
	if err := m.repo.CreatePaymentIntent(ctx, intent); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.New(pkgerrors.CodeConflict, "provider order already recorded")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	return nil
}

// Validate checks a new order without touching storage.
func Validate(input NewOrder) error {
	details := map[string]any{}
	if strings.TrimSpace(input.Customer.Name) == "" {
		details["customer.name"] = "required"
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.Customer.Email)); err != nil {
		details["customer.email"] = "invalid"
	}
	if strings.TrimSpace(input.Customer.Phone) == "" {
		details["customer.phone"] = "required"
	}
	if !input.DeliveryType.IsValid() {
		details["deliveryType"] = "invalid"
	}
	if input.DeliveryType == enums.DeliveryTypeShipment &&
		(input.Customer.DeliveryAddress == nil || strings.TrimSpace(*input.Customer.DeliveryAddress) == "") {
		details["customer.deliveryAddress"] = "required for shipment"
	}
	if !input.PaymentMethod.IsValid() {
		details["paymentMethod"] = "invalid"
	}
	if input.PaymentProofRef != nil && input.PaymentMethod != enums.PaymentMethodOfflineTransfer {
		details["paymentProofRef"] = "only offline transfers carry a proof"
	}
	if strings.TrimSpace(input.ReservationToken) == "" {
		details["reservationToken"] = "required"
	}
	if len(input.Items) == 0 {
		details["items"] = "at least one item required"
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil || item.Qty < 1 || item.UnitPriceCents < 0 {
			details[fmt.Sprintf("items[%d]", i)] = "invalid"
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order").WithDetails(details)
	}
	return nil
}
