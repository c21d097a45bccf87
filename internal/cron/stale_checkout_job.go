package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/reservation"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultOrphanReservationAfter = 30 * time.Minute
	defaultPendingPaymentAfter    = 24 * time.Hour
	defaultSweepBatchSize         = 100

	sweptReservations = "reservation"
	sweptOrders       = "order"
)

type staleReservations interface {
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
	Release(ctx context.Context, token string) (reservation.ReleaseOutcome, error)
}

type pendingOrders interface {
	FindPendingBefore(ctx context.Context, status enums.OrderStatus, method enums.PaymentMethod, cutoff time.Time, limit int) ([]models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, key string) (orders.TransitionResult, error)
}

type StaleCheckoutJobParams struct {
	Logger                 *logger.Logger
	Metrics                *metrics.FulfillmentMetrics
	Reservations           staleReservations
	Orders                 pendingOrders
	OrphanReservationAfter time.Duration
	PendingPaymentAfter    time.Duration
	BatchSize              int
}

// NewStaleCheckoutJob builds the job that returns stock held by abandoned
// checkouts: reservations that never produced an order, and hosted payment
// orders the customer never paid.
func NewStaleCheckoutJob(params StaleCheckoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation coordinator required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order manager required")
	}
	orphanAfter := params.OrphanReservationAfter
	if orphanAfter <= 0 {
		orphanAfter = defaultOrphanReservationAfter
	}
	pendingAfter := params.PendingPaymentAfter
	if pendingAfter <= 0 {
		pendingAfter = defaultPendingPaymentAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &staleCheckoutJob{
		logg:         params.Logger,
		metrics:      params.Metrics,
		reservations: params.Reservations,
		orders:       params.Orders,
		orphanAfter:  orphanAfter,
		pendingAfter: pendingAfter,
		batch:        batch,
		now:          time.Now,
	}, nil
}

type staleCheckoutJob struct {
	logg         *logger.Logger
	metrics      *metrics.FulfillmentMetrics
	reservations staleReservations
	orders       pendingOrders
	orphanAfter  time.Duration
	pendingAfter time.Duration
	batch        int
	now          func() time.Time
}

func (j *staleCheckoutJob) Name() string { return "stale-checkout" }

func (j *staleCheckoutJob) Run(ctx context.Context) error {
	return multierr.Combine(
		j.releaseOrphans(ctx),
		j.cancelUnpaid(ctx),
	)
}

func (j *staleCheckoutJob) releaseOrphans(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.orphanAfter)
	stale, err := j.reservations.FindStale(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("find orphan reservations: %w", err)
	}

	var errs error
	released := 0
	for _, held := range stale {
		outcome, err := j.reservations.Release(ctx, held.Token)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release reservation %s: %w", held.Token, err))
			continue
		}
		// NotFound means checkout released it first.
		if outcome == reservation.ReleaseOk {
			released++
		}
	}
	j.metrics.AddSwept(sweptReservations, released)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"found":    len(stale),
		"released": released,
	})
	j.logg.Info(logCtx, "orphan reservation sweep complete")
	return errs
}

// cancelUnpaid only looks at hosted payment orders. Offline transfers waiting
// for staff verification are never swept.
func (j *staleCheckoutJob) cancelUnpaid(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingAfter)
	pending, err := j.orders.FindPendingBefore(ctx, enums.OrderStatusPendingPayment, enums.PaymentMethodHostedPayment, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("find unpaid orders: %w", err)
	}

	var errs error
	cancelled := 0
	for _, order := range pending {
		result, err := j.orders.Transition(ctx, order.ID, enums.OrderStatusCancelled, "sweep:"+order.ID.String())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
			continue
		}
		if result == orders.TransitionOk {
			cancelled++
		}
	}
	j.metrics.AddSwept(sweptOrders, cancelled)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"found":     len(pending),
		"cancelled": cancelled,
	})
	j.logg.Info(logCtx, "unpaid order sweep complete")
	return errs
}
