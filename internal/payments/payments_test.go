package payments

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/square"
	"github.com/angelmondragon/storefront-backend/pkg/storage/gcs"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeStore struct {
	name        string
	contentType string
	payload     []byte
	deleted     []string
	err         error
}

func (s *fakeStore) Upload(_ context.Context, name, contentType string, payload []byte) (gcs.Object, error) {
	if s.err != nil {
		return gcs.Object{}, s.err
	}
	s.name, s.contentType, s.payload = name, contentType, payload
	return gcs.Object{Bucket: "proofs-bucket", Name: name, ContentType: contentType, Size: int64(len(payload))}, nil
}

func (s *fakeStore) Delete(_ context.Context, name string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, name)
	return nil
}

type transitionCall struct {
	orderID uuid.UUID
	target  enums.OrderStatus
	key     string
}

type fakeOrders struct {
	transitions []transitionCall
	intents     []*models.PaymentIntent
	byProvider  map[string]*models.Order
	result      orders.TransitionResult
	intentErr   error
}

func (f *fakeOrders) Transition(_ context.Context, orderID uuid.UUID, target enums.OrderStatus, key string) (orders.TransitionResult, error) {
	f.transitions = append(f.transitions, transitionCall{orderID: orderID, target: target, key: key})
	if f.result == "" {
		return orders.TransitionOk, nil
	}
	return f.result, nil
}

func (f *fakeOrders) FindByProviderOrderID(_ context.Context, providerOrderID string) (*models.Order, error) {
	if order, ok := f.byProvider[providerOrderID]; ok {
		return order, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for provider order")
}

func (f *fakeOrders) RecordPaymentIntent(_ context.Context, intent *models.PaymentIntent) error {
	if f.intentErr != nil {
		return f.intentErr
	}
	f.intents = append(f.intents, intent)
	return nil
}

type fakeGateway struct {
	calls  int
	last   square.PaymentLinkParams
	err    error
	linkID string
}

func (g *fakeGateway) CreatePaymentLink(_ context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error) {
	g.calls++
	g.last = params
	if g.err != nil {
		return nil, g.err
	}
	return &square.PaymentLink{
		ID:          "link-" + params.OrderReference[:4],
		URL:         "https://square.link/u/" + params.OrderReference[:4],
		OrderID:     "sq-" + params.OrderReference,
		AmountCents: params.AmountCents,
	}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newOffline(t *testing.T, store *fakeStore, orderMgr *fakeOrders) *OfflineTransfer {
	t.Helper()
	path, err := NewOfflineTransfer(OfflineTransferParams{
		Store:    store,
		Orders:   orderMgr,
		Logger:   testLogger(),
		MaxBytes: 1024,
	})
	require.NoError(t, err)
	return path
}

func TestOfflineCheck(t *testing.T) {
	path := newOffline(t, &fakeStore{}, &fakeOrders{})

	cases := []struct {
		name  string
		proof *Proof
		ok    bool
	}{
		{name: "missing", proof: nil},
		{name: "empty", proof: &Proof{Filename: "a.png"}},
		{name: "too large", proof: &Proof{Filename: "a.png", Size: 4096, Content: pngHeader}},
		{name: "text file", proof: &Proof{Filename: "a.txt", Content: []byte("hello there, this is not an image")}},
		{name: "png", proof: &Proof{Filename: "a.png", Size: int64(len(pngHeader)), Content: pngHeader}, ok: true},
		{name: "pdf", proof: &Proof{Filename: "a.pdf", Content: []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")}, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := path.Check(tc.proof)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestOfflineStageUploadsUnderToken(t *testing.T) {
	store := &fakeStore{}
	path := newOffline(t, store, &fakeOrders{})

	staged, err := path.Stage(context.Background(), Attempt{Token: "tok-9", Proof: &Proof{Filename: "r.png", Content: pngHeader}})
	require.NoError(t, err)
	require.NotNil(t, staged.PaymentProofRef)

	assert.True(t, strings.HasPrefix(store.name, "proofs/tok-9/"))
	assert.True(t, strings.HasSuffix(store.name, ".png"))
	assert.Equal(t, "image/png", store.contentType)
	assert.True(t, bytes.Equal(pngHeader, store.payload))
	assert.Equal(t, "gs://proofs-bucket/"+store.name, *staged.PaymentProofRef)
}

func TestOfflineDiscardDeletesStagedProof(t *testing.T) {
	store := &fakeStore{}
	path := newOffline(t, store, &fakeOrders{})

	staged, err := path.Stage(context.Background(), Attempt{Token: "tok-3", Proof: &Proof{Filename: "r.png", Content: pngHeader}})
	require.NoError(t, err)
	require.NoError(t, path.Discard(context.Background(), staged))
	assert.Equal(t, []string{store.name}, store.deleted)

	require.NoError(t, path.Discard(context.Background(), Staged{}))
	assert.Len(t, store.deleted, 1)

	store.err = errors.New("permission denied")
	err = path.Discard(context.Background(), staged)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestOfflineStageFailureIsPaymentStep(t *testing.T) {
	path := newOffline(t, &fakeStore{err: errors.New("503 from storage")}, &fakeOrders{})

	_, err := path.Stage(context.Background(), Attempt{Token: "tok", Proof: &Proof{Content: pngHeader}})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePaymentStep, pkgerrors.As(err).Code())
}

func TestOfflineConfirmIsStaffVerification(t *testing.T) {
	orderMgr := &fakeOrders{}
	path := newOffline(t, &fakeStore{}, orderMgr)
	orderID := uuid.New()

	result, err := path.Confirm(context.Background(), ConfirmationEvent{OrderID: orderID})
	require.NoError(t, err)
	assert.Equal(t, orders.TransitionOk, result)
	require.Len(t, orderMgr.transitions, 1)
	assert.Equal(t, transitionCall{orderID: orderID, target: enums.OrderStatusConfirmed}, orderMgr.transitions[0])
}

func newHosted(t *testing.T, gateway *fakeGateway, orderMgr *fakeOrders) *HostedPayment {
	t.Helper()
	path, err := NewHostedPayment(HostedPaymentParams{
		Gateway:     gateway,
		Orders:      orderMgr,
		Logger:      testLogger(),
		Breaker:     config.GatewayConfig{},
		RedirectURL: "https://shop.example.com/checkout/done",
		Currency:    "USD",
	})
	require.NoError(t, err)
	return path
}

func hostedOrder() *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		CustomerEmail: "ada@example.com",
		CustomerPhone: "555",
		PaymentMethod: enums.PaymentMethodHostedPayment,
		Status:        enums.OrderStatusPendingPayment,
		TotalCents:    4200,
	}
}

func TestHostedBeginRecordsIntent(t *testing.T) {
	gateway := &fakeGateway{}
	orderMgr := &fakeOrders{}
	path := newHosted(t, gateway, orderMgr)
	order := hostedOrder()

	state, err := path.Begin(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, state.Status)
	assert.NotEmpty(t, state.RedirectURL)

	assert.Equal(t, int64(4200), gateway.last.AmountCents)
	assert.Equal(t, "USD", gateway.last.Currency)
	assert.Equal(t, "order-"+order.ID.String(), gateway.last.IdempotencyKey)
	assert.Contains(t, gateway.last.RedirectURL, "order="+order.ID.String())

	require.Len(t, orderMgr.intents, 1)
	assert.Equal(t, "sq-"+order.ID.String(), orderMgr.intents[0].ProviderOrderID)
	assert.Equal(t, "square", orderMgr.intents[0].Provider)
	assert.Empty(t, orderMgr.transitions)
}

func TestHostedBeginFailureIsPaymentStep(t *testing.T) {
	gateway := &fakeGateway{err: pkgerrors.New(pkgerrors.CodeDependency, "square unavailable")}
	path := newHosted(t, gateway, &fakeOrders{})

	_, err := path.Begin(context.Background(), hostedOrder())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePaymentStep, pkgerrors.As(err).Code())
}

func TestHostedBreakerOpensAfterFailures(t *testing.T) {
	gateway := &fakeGateway{err: errors.New("connection reset")}
	path := newHosted(t, gateway, &fakeOrders{})

	for i := 0; i < 3; i++ {
		_, err := path.Begin(context.Background(), hostedOrder())
		require.Error(t, err)
	}
	require.Equal(t, 3, gateway.calls)

	_, err := path.Begin(context.Background(), hostedOrder())
	require.Error(t, err)
	assert.Equal(t, 3, gateway.calls, "open breaker must not reach the gateway")
	assert.Equal(t, pkgerrors.CodePaymentStep, pkgerrors.As(err).Code())
}

func TestHostedConfirmResolvesProviderOrder(t *testing.T) {
	order := hostedOrder()
	orderMgr := &fakeOrders{byProvider: map[string]*models.Order{"sq-1": order}}
	path := newHosted(t, &fakeGateway{}, orderMgr)

	result, err := path.Confirm(context.Background(), ConfirmationEvent{ProviderOrderID: "sq-1", EventID: "evt-7"})
	require.NoError(t, err)
	assert.Equal(t, orders.TransitionOk, result)
	require.Len(t, orderMgr.transitions, 1)
	assert.Equal(t, transitionCall{orderID: order.ID, target: enums.OrderStatusConfirmed, key: "square:evt-7"}, orderMgr.transitions[0])

	_, err = path.Confirm(context.Background(), ConfirmationEvent{ProviderOrderID: "sq-1"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = path.Confirm(context.Background(), ConfirmationEvent{ProviderOrderID: "unknown", EventID: "evt-8"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestHostedConfirmChecksPaidAmount(t *testing.T) {
	order := hostedOrder()
	order.Currency = "USD"
	orderMgr := &fakeOrders{byProvider: map[string]*models.Order{"sq-2": order}}
	path := newHosted(t, &fakeGateway{}, orderMgr)

	_, err := path.Confirm(context.Background(), ConfirmationEvent{
		ProviderOrderID: "sq-2",
		EventID:         "evt-short",
		Paid:            &Amount{Cents: 100, Currency: "USD"},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	_, err = path.Confirm(context.Background(), ConfirmationEvent{
		ProviderOrderID: "sq-2",
		EventID:         "evt-eur",
		Paid:            &Amount{Cents: 4200, Currency: "EUR"},
	})
	require.Error(t, err)
	assert.Empty(t, orderMgr.transitions)

	result, err := path.Confirm(context.Background(), ConfirmationEvent{
		ProviderOrderID: "sq-2",
		EventID:         "evt-ok",
		Paid:            &Amount{Cents: 4200, Currency: "usd"},
	})
	require.NoError(t, err)
	assert.Equal(t, orders.TransitionOk, result)
	require.Len(t, orderMgr.transitions, 1)
}

func TestHostedRejectsProof(t *testing.T) {
	path := newHosted(t, &fakeGateway{}, &fakeOrders{})
	require.NoError(t, path.Check(nil))
	require.Error(t, path.Check(&Proof{Content: pngHeader}))
}

func TestRegistry(t *testing.T) {
	offline := newOffline(t, &fakeStore{}, &fakeOrders{})
	hosted := newHosted(t, &fakeGateway{}, &fakeOrders{})

	registry, err := NewRegistry(offline, hosted)
	require.NoError(t, err)

	path, err := registry.Path(enums.PaymentMethodHostedPayment)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodHostedPayment, path.Method())

	_, err = registry.Path(enums.PaymentMethod("cash"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = NewRegistry(offline, offline)
	require.Error(t, err)
}
