package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type orderReader interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	DeliveryType    enums.DeliveryType  `json:"delivery_type"`
	Customer        orderCustomer       `json:"customer"`
	Items           []orderItemResponse `json:"items"`
	TotalCents      int64               `json:"total_cents"`
	Currency        string              `json:"currency"`
	PaymentProofRef *string             `json:"payment_proof_ref,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type orderCustomer struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	TaxID           *string `json:"tax_id,omitempty"`
	DeliveryAddress *string `json:"delivery_address,omitempty"`
	PickupNote      *string `json:"pickup_note,omitempty"`
}

type orderItemResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Qty            int       `json:"qty"`
	LineTotalCents int64     `json:"line_total_cents"`
	ImageURL       *string   `json:"image_url,omitempty"`
}

func newOrderResponse(order *models.Order, includeProof bool) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
			LineTotalCents: item.LineTotalCents,
			ImageURL:       item.ImageURL,
		})
	}
	resp := orderResponse{
		ID:            order.ID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		DeliveryType:  order.DeliveryType,
		Customer: orderCustomer{
			Name:            order.CustomerName,
			Email:           order.CustomerEmail,
			Phone:           order.CustomerPhone,
			TaxID:           order.CustomerTaxID,
			DeliveryAddress: order.DeliveryAddress,
			PickupNote:      order.PickupNote,
		},
		Items:      items,
		TotalCents: order.TotalCents,
		Currency:   order.Currency,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
	if includeProof {
		resp.PaymentProofRef = order.PaymentProofRef
	}
	return resp
}

// OrderDetail returns the customer's view of an order.
func OrderDetail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return orderDetail(svc, false, logg)
}

// AdminOrderDetail is OrderDetail plus the payment proof reference staff
// need for verification.
func AdminOrderDetail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return orderDetail(svc, true, logg)
}

func orderDetail(svc orderReader, includeProof bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order, includeProof))
	}
}
