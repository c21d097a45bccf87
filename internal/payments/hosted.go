package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

const providerSquare = "square"

// Gateway creates hosted payment links.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error)
}

type HostedPaymentParams struct {
	Gateway     Gateway
	Orders      OrderManager
	Logger      *logger.Logger
	Metrics     *metrics.FulfillmentMetrics
	Breaker     config.GatewayConfig
	RedirectURL string
	Currency    string
}

// HostedPayment redirects the customer to a provider checkout and confirms the
// order only when the provider reports the payment completed.
type HostedPayment struct {
	gateway     Gateway
	orders      OrderManager
	logg        *logger.Logger
	breaker     *gobreaker.CircuitBreaker
	timeout     time.Duration
	redirectURL string
	currency    string
}

func NewHostedPayment(params HostedPaymentParams) (*HostedPayment, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.Breaker.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HostedPayment{
		gateway:     params.Gateway,
		orders:      params.Orders,
		logg:        params.Logger,
		breaker:     newGatewayBreaker(params.Breaker, params.Logger, params.Metrics),
		timeout:     timeout,
		redirectURL: strings.TrimSpace(params.RedirectURL),
		currency:    params.Currency,
	}, nil
}

func (h *HostedPayment) Method() enums.PaymentMethod {
	return enums.PaymentMethodHostedPayment
}

func (h *HostedPayment) Check(proof *Proof) error {
	if proof != nil && len(proof.Content) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "hosted payments do not accept a payment proof")
	}
	return nil
}

func (h *HostedPayment) Stage(context.Context, Attempt) (Staged, error) {
	return Staged{}, nil
}

func (h *HostedPayment) Discard(context.Context, Staged) error {
	return nil
}

// Begin creates the provider payment link for a pending order and records the
// provider order id the confirmation webhook will carry.
func (h *HostedPayment) Begin(ctx context.Context, order *models.Order) (PendingState, error) {
	if order == nil || order.ID == uuid.Nil {
		return PendingState{}, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	ctx = h.logg.WithOrderID(ctx, order.ID.String())

	currency := order.Currency
	if currency == "" {
		currency = h.currency
	}
	params := square.PaymentLinkParams{
		OrderReference: order.ID.String(),
		Name:           fmt.Sprintf("Order %s", shortID(order.ID)),
		AmountCents:    order.TotalCents,
		Currency:       currency,
		RedirectURL:    h.redirectFor(order.ID),
		BuyerEmail:     order.CustomerEmail,
		BuyerPhone:     order.CustomerPhone,
		IdempotencyKey: "order-" + order.ID.String(),
	}

	out, err := h.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		return h.gateway.CreatePaymentLink(callCtx, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			h.logg.Warn(ctx, "payment gateway breaker rejected request")
		} else {
			h.logg.Error(ctx, "create payment link failed", err)
		}
		return PendingState{}, pkgerrors.Wrap(pkgerrors.CodePaymentStep, err, "create payment link")
	}
	link, ok := out.(*square.PaymentLink)
	if !ok || link == nil {
		return PendingState{}, pkgerrors.New(pkgerrors.CodePaymentStep, "payment gateway returned no link")
	}

	if err := h.orders.RecordPaymentIntent(ctx, &models.PaymentIntent{
		OrderID:         order.ID,
		Provider:        providerSquare,
		ProviderLinkID:  link.ID,
		ProviderOrderID: link.OrderID,
		RedirectURL:     link.URL,
		AmountCents:     order.TotalCents,
	}); err != nil {
		return PendingState{}, pkgerrors.Wrap(pkgerrors.CodePaymentStep, err, "record payment intent")
	}

	h.logg.Info(ctx, "payment link created")
	return PendingState{Status: enums.OrderStatusPendingPayment, RedirectURL: link.URL}, nil
}

// Confirm applies a provider confirmation. Redelivering the same event yields
// TransitionAlreadyApplied. A paid amount that differs from the total of the
// order resolved by provider order id fails with CodeStateConflict and leaves
// the order untouched.
func (h *HostedPayment) Confirm(ctx context.Context, event ConfirmationEvent) (orders.TransitionResult, error) {
	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "provider event id required")
	}
	orderID := event.OrderID
	if orderID == uuid.Nil {
		order, err := h.orders.FindByProviderOrderID(ctx, event.ProviderOrderID)
		if err != nil {
			return "", err
		}
		if err := checkPaid(order, event.Paid); err != nil {
			h.logg.Warn(h.logg.WithOrderID(ctx, order.ID.String()), "provider payment amount does not match order total")
			return "", err
		}
		orderID = order.ID
	}
	return h.orders.Transition(ctx, orderID, enums.OrderStatusConfirmed, providerSquare+":"+eventID)
}

func checkPaid(order *models.Order, paid *Amount) error {
	if paid == nil {
		return nil
	}
	if paid.Cents == order.TotalCents && strings.EqualFold(paid.Currency, order.Currency) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "paid amount does not match order total").
		WithDetails(map[string]any{
			"paidCents":     paid.Cents,
			"paidCurrency":  paid.Currency,
			"totalCents":    order.TotalCents,
			"orderCurrency": order.Currency,
		})
}

func (h *HostedPayment) redirectFor(orderID uuid.UUID) string {
	if h.redirectURL == "" {
		return ""
	}
	u, err := url.Parse(h.redirectURL)
	if err != nil {
		return h.redirectURL
	}
	q := u.Query()
	q.Set("order", orderID.String())
	u.RawQuery = q.Encode()
	return u.String()
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}
