package squarewebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const paymentStatusCompleted = "COMPLETED"

type confirmer interface {
	Confirm(ctx context.Context, event payments.ConfirmationEvent) (orders.TransitionResult, error)
}

type ServiceParams struct {
	Payments confirmer
	Logger   *logger.Logger
}

// Service applies Square payment events to storefront orders.
type Service struct {
	payments confirmer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "hosted payment path required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments: params.Payments,
		logg:     params.Logger,
	}, nil
}

type SquareWebhookEvent struct {
	MerchantID string            `json:"merchant_id"`
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	CreatedAt  string            `json:"created_at"`
	Data       SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

type SquarePayment struct {
	ID          string       `json:"id"`
	OrderID     string       `json:"order_id"`
	Status      string       `json:"status"`
	AmountMoney *SquareMoney `json:"amount_money"`
}

type SquareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// HandleEvent confirms the order behind a completed payment. Events for
// payments the storefront did not create, payments whose amount differs from
// the order total, and confirmations the order can no longer accept are
// acknowledged and logged.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil
	}

	payment := event.Data.Object.Payment
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	if !strings.EqualFold(payment.Status, paymentStatusCompleted) {
		return nil
	}
	if payment.ID == "" || payment.OrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id and order id required")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"square_payment_id": payment.ID,
		"square_order_id":   payment.OrderID,
	})

	// payment.created and payment.updated may both report the same completed
	// payment, so the payment id is the confirmation key.
	confirmation := payments.ConfirmationEvent{
		ProviderOrderID: payment.OrderID,
		EventID:         "payment:" + payment.ID,
	}
	if payment.AmountMoney != nil {
		confirmation.Paid = &payments.Amount{Cents: payment.AmountMoney.Amount, Currency: payment.AmountMoney.Currency}
	}
	result, err := s.payments.Confirm(ctx, confirmation)
	if err != nil {
		switch {
		case pkgerrors.Is(err, pkgerrors.CodeNotFound):
			s.logg.Warn(ctx, "completed payment has no storefront order")
			return nil
		case pkgerrors.Is(err, pkgerrors.CodeStateConflict):
			s.logg.Warn(ctx, "completed payment amount does not match order, left unconfirmed")
			return nil
		}
		return err
	}

	switch result {
	case orders.TransitionInvalid:
		s.logg.Warn(ctx, "payment completed for an order that can no longer be confirmed")
	default:
		s.logg.Info(ctx, fmt.Sprintf("payment confirmation %s", result))
	}
	return nil
}
