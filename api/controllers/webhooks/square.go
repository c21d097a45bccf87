package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	squarewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/square"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	squareSignatureHeader = "X-Square-Hmacsha256-Signature"
	maxWebhookBody        = 1 << 20
)

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

type squareWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// SquareSigner holds what Square signs a notification with.
type SquareSigner struct {
	SignatureKey    string
	NotificationURL string
}

// Verify checks signature against base64(HMAC-SHA256(key, notificationURL+body)).
func (s SquareSigner) Verify(payload []byte, signature string) error {
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing")
	}
	if s.SignatureKey == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature key not configured")
	}
	mac := hmac.New(sha256.New, []byte(s.SignatureKey))
	mac.Write([]byte(s.NotificationURL))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature")
	}
	return nil
}

// SquareWebhook verifies and applies Square payment notifications. Each event
// id is marked before handling and unmarked when handling fails so Square's
// retry gets another attempt.
func SquareWebhook(svc SquareWebhookService, signer SquareSigner, guard squareWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handling unavailable"))
			return
		}

		event, err := readSquareEvent(r, signer)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{
			"square_event_id":   event.EventID,
			"square_event_type": event.Type,
		})

		seen, err := guard.CheckAndMark(ctx, event.EventID)
		switch {
		case err != nil:
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		case seen:
			logg.Info(ctx, "webhook.square.duplicate")
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if delErr := guard.Delete(context.WithoutCancel(ctx), event.EventID); delErr != nil {
				logg.Error(ctx, "webhook.square.unmark_failed", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(ctx, "webhook.square.processed")
		responses.WriteSuccess(w, nil)
	}
}

func readSquareEvent(r *http.Request, signer SquareSigner) (*squarewebhook.SquareWebhookEvent, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	if err := signer.Verify(payload, strings.TrimSpace(r.Header.Get(squareSignatureHeader))); err != nil {
		return nil, err
	}

	var event squarewebhook.SquareWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event")
	}
	event.EventID = strings.TrimSpace(event.EventID)
	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id missing")
	}
	return &event, nil
}
