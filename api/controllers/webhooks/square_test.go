package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	squarewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/square"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var testSigner = SquareSigner{SignatureKey: "sig-key", NotificationURL: "https://shop.example.com/api/v1/webhooks/square"}

type fakeService struct {
	events []string
	err    error
}

func (f *fakeService) HandleEvent(_ context.Context, event *squarewebhook.SquareWebhookEvent) error {
	f.events = append(f.events, event.EventID)
	return f.err
}

type memoryGuard struct {
	seen    map[string]bool
	deleted []string
}

func (g *memoryGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	if g.seen[eventID] {
		return true, nil
	}
	g.seen[eventID] = true
	return false, nil
}

func (g *memoryGuard) Delete(_ context.Context, eventID string) error {
	delete(g.seen, eventID)
	g.deleted = append(g.deleted, eventID)
	return nil
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSigner.SignatureKey))
	mac.Write([]byte(testSigner.NotificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

const completedEvent = `{"event_id":"evt-1","type":"payment.updated","data":{"type":"payment","id":"pay-1","object":{"payment":{"id":"pay-1","order_id":"sq-1","status":"COMPLETED"}}}}`

func deliver(handler http.HandlerFunc, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(squareSignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func newHandler(svc *fakeService, guard *memoryGuard) http.HandlerFunc {
	logg := logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard})
	return SquareWebhook(svc, testSigner, guard, logg)
}

func TestSquareWebhookProcessesOnce(t *testing.T) {
	svc := &fakeService{}
	guard := &memoryGuard{seen: map[string]bool{}}
	handler := newHandler(svc, guard)
	body := []byte(completedEvent)

	for i := 0; i < 2; i++ {
		rec := deliver(handler, body, sign(body))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	if len(svc.events) != 1 {
		t.Fatalf("expected one handled event, got %d", len(svc.events))
	}
}

func TestSquareWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeService{}
	handler := newHandler(svc, &memoryGuard{seen: map[string]bool{}})
	body := []byte(completedEvent)

	if rec := deliver(handler, body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", rec.Code)
	}
	if rec := deliver(handler, body, sign([]byte(`{"event_id":"other"}`))); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for mismatched signature, got %d", rec.Code)
	}
	if len(svc.events) != 0 {
		t.Fatalf("unsigned events must not be handled")
	}
}

func TestSquareWebhookClearsMarkOnFailure(t *testing.T) {
	svc := &fakeService{err: errors.New("db unavailable")}
	guard := &memoryGuard{seen: map[string]bool{}}
	handler := newHandler(svc, guard)
	body := []byte(completedEvent)

	rec := deliver(handler, body, sign(body))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so Square retries, got %d", rec.Code)
	}
	if len(guard.deleted) != 1 || guard.seen["evt-1"] {
		t.Fatalf("expected idempotency mark cleared, got %+v", guard)
	}

	svc.err = nil
	if rec := deliver(handler, body, sign(body)); rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if len(svc.events) != 2 {
		t.Fatalf("expected retry to reach the service, got %d calls", len(svc.events))
	}
}

func TestSquareSignerVerify(t *testing.T) {
	body := []byte(completedEvent)
	if err := testSigner.Verify(body, sign(body)); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	otherURL := SquareSigner{SignatureKey: testSigner.SignatureKey, NotificationURL: "https://elsewhere.example.com/hook"}
	if err := otherURL.Verify(body, sign(body)); err == nil {
		t.Fatal("signature must bind the notification url")
	}
	if err := (SquareSigner{}).Verify(body, sign(body)); err == nil {
		t.Fatal("expected unconfigured signer to reject")
	}
	if err := testSigner.Verify(body, ""); err == nil {
		t.Fatal("expected missing signature to reject")
	}
}

func TestSquareWebhookRejectsMissingEventID(t *testing.T) {
	svc := &fakeService{}
	guard := &memoryGuard{seen: map[string]bool{}}
	body := []byte(`{"event_id":"  ","type":"payment.updated"}`)

	rec := deliver(newHandler(svc, guard), body, sign(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.events) != 0 {
		t.Fatalf("service should not run, got %v", svc.events)
	}
}
