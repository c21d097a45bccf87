package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/reservation"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type catalog interface {
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type reserver interface {
	Reserve(ctx context.Context, token string, lines []reservation.Line) (reservation.Result, error)
	Release(ctx context.Context, token string) (reservation.ReleaseOutcome, error)
}

type orderManager interface {
	CreateOrder(ctx context.Context, input orders.NewOrder) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, key string) (orders.TransitionResult, error)
}

type pathRegistry interface {
	Path(method enums.PaymentMethod) (payments.PaymentPath, error)
}

// CartLine is one line of the submitted cart. Prices come from the catalog,
// not from the client.
type CartLine struct {
	ProductID uuid.UUID
	Qty       int
}

// Submission is one checkout attempt. Token is minted by the client per
// attempt and makes resubmission of the same attempt detectable.
type Submission struct {
	Token         string
	Customer      orders.Customer
	DeliveryType  enums.DeliveryType
	PaymentMethod enums.PaymentMethod
	Lines         []CartLine
	Proof         *payments.Proof
}

// Receipt is what the customer sees after a successful submission.
type Receipt struct {
	OrderID          uuid.UUID         `json:"order_id"`
	Status           enums.OrderStatus `json:"status"`
	TotalCents       int64             `json:"total_cents"`
	Currency         string            `json:"currency"`
	ReservationToken string            `json:"reservation_token"`
	RedirectURL      string            `json:"redirect_url,omitempty"`
}

// Service executes checkout orchestration.
type Service interface {
	Submit(ctx context.Context, submission Submission) (*Receipt, error)
}

type ServiceParams struct {
	Catalog      catalog
	Reservations reserver
	Orders       orderManager
	Paths        pathRegistry
	Logger       *logger.Logger
	Currency     string
}

type service struct {
	catalog      catalog
	reservations reserver
	orders       orderManager
	paths        pathRegistry
	logg         *logger.Logger
	currency     string
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation coordinator required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order manager required")
	}
	if params.Paths == nil {
		return nil, fmt.Errorf("payment path registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &service{
		catalog:      params.Catalog,
		reservations: params.Reservations,
		orders:       params.Orders,
		paths:        params.Paths,
		logg:         params.Logger,
		currency:     currency,
	}, nil
}

// Submit reserves the cart, runs the payment path and persists the order.
//
// Everything that can be checked without holding stock is checked first. Once
// the reservation is held, a deferred guard releases it on every return, and
// on panic, until the order is persisted. A proof staged for an order that was
// never created is discarded. Once persisted the order owns the stock and a
// failing payment step cancels the order instead.
func (s *service) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	token := strings.TrimSpace(sub.Token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation token is required")
	}
	ctx = s.logg.WithReservationToken(ctx, token)

	path, err := s.paths.Path(sub.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := path.Check(sub.Proof); err != nil {
		return nil, err
	}

	lines := make([]reservation.Line, 0, len(sub.Lines))
	for _, line := range sub.Lines {
		lines = append(lines, reservation.Line{ProductID: line.ProductID, Qty: line.Qty})
	}
	merged, err := reservation.MergeLines(lines)
	if err != nil {
		return nil, err
	}
	items, err := s.price(ctx, merged)
	if err != nil {
		return nil, err
	}

	input := orders.NewOrder{
		Customer:         sub.Customer,
		DeliveryType:     sub.DeliveryType,
		PaymentMethod:    sub.PaymentMethod,
		Items:            items,
		ReservationToken: token,
		Currency:         s.currency,
	}
	if err := orders.Validate(input); err != nil {
		return nil, err
	}

	result, err := s.reservations.Reserve(ctx, token, merged)
	if err != nil {
		return nil, err
	}
	if !result.Reserved() {
		return nil, reservationError(result)
	}

	var (
		persisted bool
		staged    *payments.Staged
	)
	defer func() {
		if persisted {
			return
		}
		if r := recover(); r != nil {
			s.release(ctx, token)
			panic(r)
		}
		s.release(ctx, token)
		if staged != nil {
			s.discard(ctx, path, *staged)
		}
	}()

	prepared, err := path.Stage(ctx, payments.Attempt{Token: token, Proof: sub.Proof})
	if err != nil {
		return nil, err
	}
	staged = &prepared
	input.PaymentProofRef = prepared.PaymentProofRef

	order, err := s.orders.CreateOrder(ctx, input)
	if err != nil {
		return nil, err
	}
	persisted = true
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	pending, err := path.Begin(ctx, order)
	if err != nil {
		s.abandon(ctx, order.ID)
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentStep, err, "payment step failed").
			WithDetails(map[string]any{"orderId": order.ID.String()})
	}

	s.logg.Info(ctx, "checkout submitted")
	return &Receipt{
		OrderID:          order.ID,
		Status:           pending.Status,
		TotalCents:       order.TotalCents,
		Currency:         order.Currency,
		ReservationToken: token,
		RedirectURL:      pending.RedirectURL,
	}, nil
}

func (s *service) price(ctx context.Context, lines []reservation.Line) ([]orders.Item, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	items := make([]orders.Item, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product").
				WithDetails(map[string]any{"productId": line.ProductID.String()})
		}
		items = append(items, orders.Item{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
			Qty:            line.Qty,
			ImageURL:       product.ImageURL,
		})
	}
	return items, nil
}

// release runs detached from the request so a disconnected client still gets
// its stock returned.
func (s *service) release(ctx context.Context, token string) {
	outcome, err := s.reservations.Release(context.WithoutCancel(ctx), token)
	if err != nil {
		s.logg.Error(ctx, "release reservation after failed checkout", err)
		return
	}
	s.logg.Warn(ctx, fmt.Sprintf("checkout aborted, reservation release: %s", outcome))
}

// discard drops whatever the payment path staged for a checkout that never
// produced an order. A failure leaves the object for manual cleanup.
func (s *service) discard(ctx context.Context, path payments.PaymentPath, staged payments.Staged) {
	if err := path.Discard(context.WithoutCancel(ctx), staged); err != nil {
		ref := ""
		if staged.PaymentProofRef != nil {
			ref = *staged.PaymentProofRef
		}
		s.logg.Error(s.logg.WithField(ctx, "payment_proof_ref", ref), "discard staged payment proof", err)
	}
}

// abandon cancels an order whose payment step failed, which releases its stock.
// A cancel that fails is left to the stale checkout sweep.
func (s *service) abandon(ctx context.Context, orderID uuid.UUID) {
	result, err := s.orders.Transition(context.WithoutCancel(ctx), orderID, enums.OrderStatusCancelled, "checkout-abort:"+orderID.String())
	if err != nil {
		s.logg.Error(ctx, "cancel order after failed payment step", err)
		return
	}
	s.logg.Warn(ctx, fmt.Sprintf("payment step failed, order cancel: %s", result))
}

func reservationError(result reservation.Result) error {
	switch result.Reason {
	case reservation.ReasonInsufficientStock:
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "an item in your cart is out of stock").
			WithDetails(map[string]any{"productId": result.ProductID.String()})
	case reservation.ReasonUnknownProduct:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown product").
			WithDetails(map[string]any{"productId": result.ProductID.String()})
	case reservation.ReasonDuplicateToken:
		return pkgerrors.New(pkgerrors.CodeConflict, "this checkout was already submitted")
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, "reservation failed")
	}
}
