package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
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

// Line is a product quantity requested by a cart.
type Line struct {
	ProductID uuid.UUID
	Qty       int
}

// Status tags a reservation result.
type Status string

const (
	StatusReserved Status = "reserved"
	StatusFailed   Status = "failed"
)

// FailureReason explains a failed reservation.
type FailureReason string

const (
	ReasonInsufficientStock FailureReason = "insufficient_stock"
	ReasonDuplicateToken    FailureReason = "duplicate_token"
	ReasonUnknownProduct    FailureReason = "unknown_product"
)

// Result is either Reserved (Token, Lines set) or Failed (Reason and, for stock
// failures, ProductID set). A failed reservation leaves no stock held.
type Result struct {
	Status    Status
	Token     string
	Lines     []Line
	Reason    FailureReason
	ProductID uuid.UUID
}

// Reserved reports whether every line was applied.
func (r Result) Reserved() bool {
	return r.Status == StatusReserved
}

// ReleaseOutcome is the result of a release call.
type ReleaseOutcome string

const (
	ReleaseOk       ReleaseOutcome = "ok"
	ReleaseNotFound ReleaseOutcome = "not_found"
)

type CoordinatorParams struct {
	Repo    Repository
	Ledger  *inventory.Ledger
	Tx      txRunner
	Logger  *logger.Logger
	Metrics *metrics.FulfillmentMetrics
	Now     func() time.Time
}

// Coordinator reserves whole carts against the inventory ledger under a caller token.
type Coordinator struct {
	repo    Repository
	ledger  *inventory.Ledger
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.FulfillmentMetrics
	now     func() time.Time
}

func NewCoordinator(params CoordinatorParams) (*Coordinator, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reservation repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Coordinator{
		repo:    params.Repo,
		ledger:  params.Ledger,
		tx:      params.Tx,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// errAbort carries a failed result out of the reserve transaction so it rolls back.
type errAbort struct {
	result Result
}

func (e *errAbort) Error() string {
	return fmt.Sprintf("reservation aborted: %s", e.result.Reason)
}

// Reserve holds stock for every line under token, or for none of them.
//
// The reservation row, each conditional decrement and each applied line are
// written in one transaction. A line that cannot be satisfied aborts the
// transaction, which undoes the decrements already applied for the token.
// Lines are applied in product id order so concurrent carts touching the same
// products take row locks in the same order.
func (c *Coordinator) Reserve(ctx context.Context, token string, lines []Line) (Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "reservation token is required")
	}
	merged, err := MergeLines(lines)
	if err != nil {
		return Result{}, err
	}

	ctx = c.logg.WithReservationToken(ctx, token)
	err = c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		ledger := c.ledger.WithTx(tx)

		if err := repo.Create(ctx, &models.Reservation{
			Token:     token,
			Status:    enums.ReservationStatusHeld,
			CreatedAt: c.now(),
		}); err != nil {
			if db.IsUniqueViolation(err, "") {
				return &errAbort{result: Result{Status: StatusFailed, Token: token, Reason: ReasonDuplicateToken}}
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}

		for _, line := range merged {
			outcome, err := ledger.TryDecrement(ctx, line.ProductID, line.Qty)
			if err != nil {
				if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
					return &errAbort{result: Result{Status: StatusFailed, Token: token, Reason: ReasonUnknownProduct, ProductID: line.ProductID}}
				}
				return err
			}
			if outcome == inventory.OutcomeInsufficientStock {
				return &errAbort{result: Result{Status: StatusFailed, Token: token, Reason: ReasonInsufficientStock, ProductID: line.ProductID}}
			}
			if err := repo.CreateLine(ctx, &models.ReservationLine{
				ID:        uuid.New(),
				Token:     token,
				ProductID: line.ProductID,
				Qty:       line.Qty,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reservation line")
			}
		}
		return nil
	})

	var abort *errAbort
	switch {
	case errors.As(err, &abort):
		c.metrics.IncReservation(string(abort.result.Reason))
		c.logg.Warn(ctx, fmt.Sprintf("reservation failed: %s %s", abort.result.Reason, abort.result.ProductID))
		return abort.result, nil
	case err != nil:
		c.metrics.IncReservation("error")
		return Result{}, err
	}

	c.metrics.IncReservation(string(StatusReserved))
	c.logg.Info(ctx, fmt.Sprintf("reserved %d lines", len(merged)))
	return Result{Status: StatusReserved, Token: token, Lines: merged}, nil
}

// Release returns every recorded line of a held reservation to the ledger.
// A second call for the same token reports ReleaseNotFound.
func (c *Coordinator) Release(ctx context.Context, token string) (ReleaseOutcome, error) {
	var outcome ReleaseOutcome
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = c.ReleaseTx(ctx, tx, token)
		return err
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// ReleaseTx is Release inside the caller's transaction.
func (c *Coordinator) ReleaseTx(ctx context.Context, tx *gorm.DB, token string) (ReleaseOutcome, error) {
	repo := c.repo.WithTx(tx)
	ledger := c.ledger.WithTx(tx)

	released, err := repo.MarkReleased(ctx, token, c.now())
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reservation released")
	}
	if !released {
		return ReleaseNotFound, nil
	}

	lines, err := repo.Lines(ctx, token)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation lines")
	}
	for _, line := range lines {
		if err := ledger.Increment(ctx, line.ProductID, line.Qty); err != nil {
			return "", err
		}
	}

	ctx = c.logg.WithReservationToken(ctx, token)
	c.logg.Info(ctx, fmt.Sprintf("released %d lines", len(lines)))
	return ReleaseOk, nil
}

// AttachOrder links a held reservation to the order it backs.
func (c *Coordinator) AttachOrder(ctx context.Context, tx *gorm.DB, token string, orderID uuid.UUID) error {
	ok, err := c.repo.WithTx(tx).AttachOrder(ctx, token, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach order to reservation")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not held or already backs an order")
	}
	return nil
}

// Consume folds a held reservation into its order. It reports false when the
// reservation had already left held.
func (c *Coordinator) Consume(ctx context.Context, tx *gorm.DB, token string) (bool, error) {
	ok, err := c.repo.WithTx(tx).MarkConsumed(ctx, token, c.now())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume reservation")
	}
	return ok, nil
}

// Get returns a reservation with its lines.
func (c *Coordinator) Get(ctx context.Context, token string) (*models.Reservation, error) {
	reservation, err := c.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	return reservation, nil
}

// FindStale lists held reservations with no order created before cutoff.
func (c *Coordinator) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	stale, err := c.repo.FindStale(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale reservations")
	}
	return stale, nil
}

// MergeLines validates quantities and folds repeated products into one line,
// sorted by product id.
func MergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart must contain at least one line")
	}
	totals := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if line.Qty < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"productId": line.ProductID.String()})
		}
		totals[line.ProductID] += line.Qty
	}
	merged := make([]Line, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Line{ProductID: id, Qty: qty})
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ProductID.String() < merged[j].ProductID.String()
	})
	return merged, nil
}
