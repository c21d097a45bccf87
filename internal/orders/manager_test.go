package orders

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/reservation"
	"github.com/angelmondragon/storefront-backend/internal/testsupport"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type statusChange struct {
	orderID uuid.UUID
	from    enums.OrderStatus
	to      enums.OrderStatus
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []statusChange
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, order *models.Order, from enums.OrderStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, statusChange{orderID: order.ID, from: from, to: order.Status})
}

func (n *recordingNotifier) count(to enums.OrderStatus) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, change := range n.changes {
		if change.to == to {
			total++
		}
	}
	return total
}

type fixture struct {
	conn     *gorm.DB
	manager  *Manager
	coord    *reservation.Coordinator
	notifier *recordingNotifier
}

func newFixture(t *testing.T, now func() time.Time) fixture {
	t.Helper()
	conn := testsupport.OpenDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	tx := db.NewFromConn(conn)

	coord, err := reservation.NewCoordinator(reservation.CoordinatorParams{
		Repo:   reservation.NewRepository(conn),
		Ledger: inventory.NewLedger(conn),
		Tx:     tx,
		Logger: logg,
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	manager, err := NewManager(ManagerParams{
		Repo:         NewRepository(conn),
		Tx:           tx,
		Reservations: coord,
		Notifier:     notifier,
		Logger:       logg,
		Now:          now,
	})
	require.NoError(t, err)
	return fixture{conn: conn, manager: manager, coord: coord, notifier: notifier}
}

func ptr(v string) *string { return &v }

func (f fixture) placeOrder(t *testing.T, method enums.PaymentMethod, proof *string, product models.Product, qty int) *models.Order {
	t.Helper()
	ctx := context.Background()
	token := uuid.NewString()
	result, err := f.coord.Reserve(ctx, token, []reservation.Line{{ProductID: product.ID, Qty: qty}})
	require.NoError(t, err)
	require.True(t, result.Reserved())

	order, err := f.manager.CreateOrder(ctx, NewOrder{
		Customer: Customer{
			Name:            "Ada Lovelace",
			Email:           "ada@example.com",
			Phone:           "+1 555 0100",
			DeliveryAddress: ptr("12 Analytical St"),
		},
		DeliveryType:     enums.DeliveryTypeShipment,
		PaymentMethod:    method,
		Items:            []Item{{ProductID: product.ID, Name: product.Name, UnitPriceCents: product.PriceCents, Qty: qty}},
		ReservationToken: token,
		PaymentProofRef:  proof,
	})
	require.NoError(t, err)
	return order
}

func TestOfflineHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p1 := testsupport.SeedProduct(t, f.conn, 5, 1000)

	order := f.placeOrder(t, enums.PaymentMethodOfflineTransfer, ptr("gs://bucket/proofs/x.png"), p1, 1)
	assert.Equal(t, enums.OrderStatusPendingVerification, order.Status)
	assert.Equal(t, 4, testsupport.Stock(t, f.conn, p1.ID))

	result, err := f.manager.Transition(ctx, order.ID, enums.OrderStatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, TransitionOk, result)

	stored, err := f.manager.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	require.NotNil(t, stored.PaymentProofRef)
	assert.Equal(t, "gs://bucket/proofs/x.png", *stored.PaymentProofRef)

	res, err := f.coord.Get(ctx, order.ReservationToken)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusConsumed, res.Status)
	require.NotNil(t, res.OrderID)
	assert.Equal(t, order.ID, *res.OrderID)

	assert.Equal(t, 4, testsupport.Stock(t, f.conn, p1.ID))
	assert.Equal(t, 1, f.notifier.count(enums.OrderStatusPendingVerification))
	assert.Equal(t, 1, f.notifier.count(enums.OrderStatusConfirmed))
}

func TestCreateOrderFreezesTotals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := testsupport.SeedProduct(t, f.conn, 10, 1250)
	b := testsupport.SeedProduct(t, f.conn, 10, 500)

	token := "tok-totals"
	result, err := f.coord.Reserve(ctx, token, []reservation.Line{{ProductID: a.ID, Qty: 2}, {ProductID: b.ID, Qty: 1}})
	require.NoError(t, err)
	require.True(t, result.Reserved())

	order, err := f.manager.CreateOrder(ctx, NewOrder{
		Customer:      Customer{Name: "Grace", Email: "grace@example.com", Phone: "555", PickupNote: ptr("after 5pm")},
		DeliveryType:  enums.DeliveryTypePickup,
		PaymentMethod: enums.PaymentMethodHostedPayment,
		Items: []Item{
			{ProductID: a.ID, Name: "A", UnitPriceCents: 1250, Qty: 2},
			{ProductID: b.ID, Name: "B", UnitPriceCents: 500, Qty: 1},
		},
		ReservationToken: token,
		Currency:         "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), order.TotalCents)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, enums.OrderStatusPendingPayment, order.Status)

	stored, err := f.manager.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, int64(2500), stored.Items[0].LineTotalCents)
	assert.Equal(t, int64(500), stored.Items[1].LineTotalCents)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.CreateOrder(context.Background(), NewOrder{
		Customer:         Customer{Name: "Ada", Email: "not-an-email", Phone: "555"},
		DeliveryType:     enums.DeliveryTypeShipment,
		PaymentMethod:    enums.PaymentMethodHostedPayment,
		Items:            []Item{{ProductID: uuid.New(), Name: "A", UnitPriceCents: 100, Qty: 1}},
		ReservationToken: "tok",
		PaymentProofRef:  ptr("gs://bucket/x"),
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "customer.email")
	assert.Contains(t, details, "customer.deliveryAddress")
	assert.Contains(t, details, "paymentProofRef")
}

func TestCreateOrderRequiresHeldReservation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := testsupport.SeedProduct(t, f.conn, 5, 100)

	token := "tok-released"
	result, err := f.coord.Reserve(ctx, token, []reservation.Line{{ProductID: p.ID, Qty: 1}})
	require.NoError(t, err)
	require.True(t, result.Reserved())
	_, err = f.coord.Release(ctx, token)
	require.NoError(t, err)

	_, err = f.manager.CreateOrder(ctx, NewOrder{
		Customer:         Customer{Name: "Ada", Email: "ada@example.com", Phone: "555"},
		DeliveryType:     enums.DeliveryTypePickup,
		PaymentMethod:    enums.PaymentMethodHostedPayment,
		Items:            []Item{{ProductID: p.ID, Name: p.Name, UnitPriceCents: 100, Qty: 1}},
		ReservationToken: token,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTransitionIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := testsupport.SeedProduct(t, f.conn, 5, 100)
	order := f.placeOrder(t, enums.PaymentMethodHostedPayment, nil, p, 1)

	result, err := f.manager.Transition(ctx, order.ID, enums.OrderStatusConfirmed, "evt-1")
	require.NoError(t, err)
	require.Equal(t, TransitionOk, result)

	result, err = f.manager.Transition(ctx, order.ID, enums.OrderStatusPendingPayment, "")
	require.NoError(t, err)
	assert.Equal(t, TransitionInvalid, result)

	stored, err := f.manager.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.Status)
}

func TestKeyedBackwardTransitionIsInvalid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := testsupport.SeedProduct(t, f.conn, 5, 100)

	confirmed := f.placeOrder(t, enums.PaymentMethodHostedPayment, nil, p, 1)
	_, err := f.manager.Transition(ctx, confirmed.ID, enums.OrderStatusConfirmed, "evt-c1")
	require.NoError(t, err)

	result, err := f.manager.Transition(ctx, confirmed.ID, enums.OrderStatusPendingPayment, "staff:abc")
	require.NoError(t, err)
	assert.Equal(t, TransitionInvalid, result)

	shipped := f.placeOrder(t, enums.PaymentMethodHostedPayment, nil, p, 1)
	for i, target := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusPreparing, enums.OrderStatusShipped} {
		result, err := f.manager.Transition(ctx, shipped.ID, target, fmt.Sprintf("step-%d", i))
		require.NoError(t, err)
		require.Equal(t, TransitionOk, result)
	}

	result, err = f.manager.Transition(ctx, shipped.ID, enums.OrderStatusPreparing, "staff:xyz")
	require.NoError(t, err)
	assert.Equal(t, TransitionInvalid, result)

	stored, err := f.manager.Get(ctx, shipped.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, stored.Status)
}

func TestReusedKeyForAnotherOrderIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := testsupport.SeedProduct(t, f.conn, 5, 100)
	a := f.placeOrder(t, enums.PaymentMethodHostedPayment, nil, p, 1)
	b := f.placeOrder(t, enums.PaymentMethodOfflineTransfer, ptr("gs://b/p"), p, 1)

	result, err := f.manager.Transition(ctx, a.ID, enums.OrderStatusCancelled, "staff-request:k1")
	require.NoError(t, err)
	require.Equal(t, TransitionOk, result)

	_, err = f.manager.Transition(ctx, b.ID, enums.OrderStatusConfirmed, "staff-request:k1")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeIdempotency))

	_, err = f.manager.Transition(ctx, a.ID, enums.OrderStatusPreparing, "staff-request:k1")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeIdempotency))

	stored, err := f.manager.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingVerification, stored.Status)
	assert.Zero(t, f.notifier.count(enums.OrderStatusConfirmed))

	result, err = f.manager.Transition(ctx, a.ID, enums.OrderStatusCancelled, "staff-request:k1")
	require.NoError(t, err)
	assert.Equal(t, TransitionAlreadyApplied, result)
}

func TestConfirmationIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := testsupport.SeedProduct(t, f.conn, 5, 100)
	order := f.placeOrder(t, enums.PaymentMethodHostedPayment, nil, p, 2)

	first, err := f.manager.Transition(ctx, order.ID, enums.OrderStatusConfirmed, "evt-42")
	require.NoError(t, err)
	second, err := f.manager.Transition(ctx, order.ID, enums.OrderStatusConfirmed, "evt-42")
	require.NoError(t, err)

	assert.Equal(t, TransitionOk, first)
	assert.Equal(t, TransitionAlreadyApplied, second)
	assert.Equal(t, 1, f.notifier.count(enums.OrderStatusConfirmed))
	assert.Equal(t, 3, testsupport.Stock(t, f.conn, p.ID))

	// a different delivery of the same confirmation after the order moved on
	result, err := f.manager.Transition(ctx, order.ID, enums.OrderStatusPreparing, "")
	require.NoError(t, err)
	require.Equal(t, TransitionOk, result)
	result, err = f.manager.Transition(ctx, order.ID, enums.OrderStatusConfirmed, "evt-43")
	require.NoError(t, err)
	assert.Equal(t, TransitionAlreadyApplied, result)
	assert.Equal(t, 1, f.notifier.count(enums.OrderStatusConfirmed))
}

func TestConfirmationAfterCancelIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := testsupport.SeedProduct(t, f.conn, 5, 100)
	order := f.placeOrder(t, enums.PaymentMethodHostedPayment, nil, p, 2)
	require.Equal(t, 3, testsupport.Stock(t, f.conn, p.ID))

	result, err := f.manager.Transition(ctx, order.ID, enums.OrderStatusCancelled, "")
	require.NoError(t, err)
	require.Equal(t, TransitionOk, result)
	assert.Equal(t, 5, testsupport.Stock(t, f.conn, p.ID))

	res, err := f.coord.Get(ctx, order.ReservationToken)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusReleased, res.Status)

	result, err = f.manager.Transition(ctx, order.ID, enums.OrderStatusConfirmed, "evt-late")
	require.NoError(t, err)
	assert.Equal(t, TransitionInvalid, result)
	assert.Equal(t, 5, testsupport.Stock(t, f.conn, p.ID))
	assert.Zero(t, f.notifier.count(enums.OrderStatusConfirmed))
}

func TestCancelAfterConfirmKeepsStockCommitted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := testsupport.SeedProduct(t, f.conn, 5, 100)
	order := f.placeOrder(t, enums.PaymentMethodOfflineTransfer, ptr("gs://b/p"), p, 1)

	_, err := f.manager.Transition(ctx, order.ID, enums.OrderStatusConfirmed, "")
	require.NoError(t, err)
	result, err := f.manager.Transition(ctx, order.ID, enums.OrderStatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, TransitionOk, result)
	assert.Equal(t, 4, testsupport.Stock(t, f.conn, p.ID))
}

func TestTransitionUnknownOrder(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.Transition(context.Background(), uuid.New(), enums.OrderStatusConfirmed, "")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = f.manager.Transition(context.Background(), uuid.New(), enums.OrderStatus("lost"), "")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestPaymentIntentCorrelation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := testsupport.SeedProduct(t, f.conn, 5, 100)
	order := f.placeOrder(t, enums.PaymentMethodHostedPayment, nil, p, 1)

	require.NoError(t, f.manager.RecordPaymentIntent(ctx, &models.PaymentIntent{
		OrderID:         order.ID,
		Provider:        "square",
		ProviderLinkID:  "link-1",
		ProviderOrderID: "sq-order-1",
		RedirectURL:     "https://square.link/u/abc",
		AmountCents:     order.TotalCents,
	}))

	found, err := f.manager.FindByProviderOrderID(ctx, "sq-order-1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = f.manager.FindByProviderOrderID(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = f.manager.Transition(ctx, order.ID, enums.OrderStatusConfirmed, "evt-1")
	require.NoError(t, err)

	var intent models.PaymentIntent
	require.NoError(t, f.conn.First(&intent, "provider_order_id = ?", "sq-order-1").Error)
	assert.Equal(t, enums.PaymentIntentStatusCompleted, intent.Status)
}

func TestFindPendingBefore(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	f := newFixture(t, func() time.Time { return current })
	ctx := context.Background()
	p := testsupport.SeedProduct(t, f.conn, 10, 100)

	old := f.placeOrder(t, enums.PaymentMethodHostedPayment, nil, p, 1)
	current = base.Add(48 * time.Hour)
	f.placeOrder(t, enums.PaymentMethodHostedPayment, nil, p, 1)
	f.placeOrder(t, enums.PaymentMethodOfflineTransfer, ptr("gs://b/p"), p, 1)

	rows, err := f.manager.FindPendingBefore(ctx, enums.OrderStatusPendingPayment, enums.PaymentMethodHostedPayment, base.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, old.ID, rows[0].ID)
}
