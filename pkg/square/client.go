package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

var sensitiveKeys = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"}

// Client creates hosted payment links on Square for a single location.
type Client struct {
	sdk        *sqclient.Client
	locationID string
	logg       *logger.Logger
}

// NewClient validates cfg and builds an SDK client against the sandbox or
// production base URL.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	location := strings.TrimSpace(cfg.LocationID)
	switch {
	case token == "":
		return nil, errors.New("square access token is required")
	case strings.TrimSpace(cfg.WebhookSecret) == "":
		return nil, errors.New("square webhook secret is required")
	case location == "":
		return nil, errors.New("square location id is required")
	}

	c := &Client{
		sdk:        sqclient.NewClient(sqoption.WithBaseURL(baseURLs[env]), sqoption.WithToken(token)),
		locationID: location,
		logg:       logg,
	}
	logg.Info(logg.WithField(ctx, "square_env", env), "square.client_ready")
	return c, nil
}

// CreatePaymentLink creates a hosted quick-pay link. The returned OrderID is the
// Square order that later payment webhooks reference.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*PaymentLink, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment link amount must be positive")
	}
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	ctx = c.logg.WithFields(ctx, redactFields(map[string]any{
		"square_op":       "create_payment_link",
		"location_id":     params.LocationID,
		"order_reference": params.OrderReference,
		"amount":          params.AmountCents,
		"buyer_email":     params.BuyerEmail,
	}))

	resp, err := c.sdk.Checkout.PaymentLinks.Create(ctx, params.toSquareRequest(idempotencyKey("payment_link", params.IdempotencyKey)))
	if err != nil {
		mapped := mapSquareError(err, "create payment link")
		c.logg.Error(ctx, "square.call_failed", mapped)
		return nil, mapped
	}

	link := resp.GetPaymentLink()
	if link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment link")
	}
	out := &PaymentLink{
		ID:          deref(link.GetID()),
		URL:         deref(link.GetURL()),
		OrderID:     deref(link.GetOrderID()),
		AmountCents: params.AmountCents,
	}
	if out.URL == "" || out.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square payment link missing url or order id")
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"payment_link_id": out.ID,
		"square_order_id": out.OrderID,
	}), "square.payment_link_created")
	return out, nil
}

// idempotencyKey keeps a caller supplied key or mints "<prefix>-<uuid>".
func idempotencyKey(prefix, provided string) string {
	if provided = strings.TrimSpace(provided); provided != "" {
		return provided
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "sf"
	}
	return prefix + "-" + uuid.NewString()
}

func redactFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = redact(k, v)
	}
	return out
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

// mapSquareError classifies an SDK failure. Square error bodies can refine the
// HTTP status: a reused idempotency key or an authentication category wins.
func mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf("square %s failed", op)
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}

	code := domainCodeForStatus(apiErr.StatusCode)
	for _, sqErr := range squareErrors(apiErr) {
		switch {
		case sqErr == nil:
			continue
		case sqErr.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, msg)
		case sqErr.Category == sq.ErrorCategoryAuthenticationError:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg)
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil || apiErr.Unwrap() == nil {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(apiErr.Unwrap().Error())), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

func domainCodeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		return sandboxEnv, nil
	}
	if _, ok := baseURLs[env]; !ok {
		return "", fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	}
	return env, nil
}
