package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const idempotencyHeader = "Idempotency-Key"

type orderTransitioner interface {
	orderReader
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, key string) (orders.TransitionResult, error)
}

type paymentPaths interface {
	Path(method enums.PaymentMethod) (payments.PaymentPath, error)
}

type transitionResponse struct {
	OrderID uuid.UUID               `json:"order_id"`
	Result  orders.TransitionResult `json:"result"`
	Status  enums.OrderStatus       `json:"status"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminVerifyOrder records that staff saw the transfer behind an offline
// order land. Verifying twice reports already_applied.
func AdminVerifyOrder(svc orderTransitioner, paths paymentPaths, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || paths == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		order, err := svc.Get(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if order.PaymentMethod != enums.PaymentMethodOfflineTransfer {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "only offline transfer orders are verified by staff").
				WithDetails(map[string]any{"paymentMethod": order.PaymentMethod}))
			return
		}
		path, err := paths.Path(order.PaymentMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		key := requestKey(r, "staff-verify:"+orderID.String())
		result, err := path.Confirm(ctx, payments.ConfirmationEvent{OrderID: orderID, EventID: key})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		writeTransition(ctx, w, svc, orderID, result, logg)
	}
}

// AdminTransitionOrder moves an order along fulfillment, or cancels it.
// Confirmation goes through verification or the payment provider instead.
func AdminTransitionOrder(svc orderTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		if target == enums.OrderStatusConfirmed || target.IsPending() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status cannot be set directly").
				WithDetails(map[string]any{"status": target}))
			return
		}

		key := requestKey(r, "staff:"+middleware.StaffIDFromContext(ctx)+":"+uuid.NewString())
		result, err := svc.Transition(ctx, orderID, target, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		writeTransition(ctx, w, svc, orderID, result, logg)
	}
}

func requestKey(r *http.Request, fallback string) string {
	if key := strings.TrimSpace(r.Header.Get(idempotencyHeader)); key != "" {
		return "staff-request:" + key
	}
	return fallback
}

// writeTransition reports an invalid transition as a state conflict and every
// other result as success with the order's current status.
func writeTransition(ctx context.Context, w http.ResponseWriter, svc orderReader, orderID uuid.UUID, result orders.TransitionResult, logg *logger.Logger) {
	order, err := svc.Get(ctx, orderID)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	if result == orders.TransitionInvalid {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed from current status").
			WithDetails(map[string]any{"status": order.Status, "result": result}))
		return
	}
	responses.WriteSuccess(w, transitionResponse{OrderID: orderID, Result: result, Status: order.Status})
}
