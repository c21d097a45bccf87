package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	checkoutPayloadField = "payload"
	checkoutProofField   = "proof"
)

type checkoutRequest struct {
	Token        string            `json:"token" validate:"required,max=128"`
	Customer     customerRequest   `json:"customer"`
	DeliveryType string            `json:"delivery_type" validate:"required,oneof=pickup shipment"`
	Lines        []cartLineRequest `json:"lines" validate:"required,min=1,max=100,dive"`
}

type customerRequest struct {
	Name            string  `json:"name" validate:"required,max=200"`
	Email           string  `json:"email" validate:"required,email"`
	Phone           string  `json:"phone" validate:"required,max=40"`
	TaxID           *string `json:"tax_id,omitempty" validate:"omitempty,max=40"`
	DeliveryAddress *string `json:"delivery_address,omitempty" validate:"omitempty,max=500"`
	PickupNote      *string `json:"pickup_note,omitempty" validate:"omitempty,max=500"`
}

type cartLineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,min=1"`
}

func (req checkoutRequest) submission(method enums.PaymentMethod) checkoutsvc.Submission {
	lines := make([]checkoutsvc.CartLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, checkoutsvc.CartLine{ProductID: line.ProductID, Qty: line.Qty})
	}
	return checkoutsvc.Submission{
		Token: strings.TrimSpace(req.Token),
		Customer: orders.Customer{
			Name:            validators.SanitizeString(req.Customer.Name, 200),
			Email:           strings.TrimSpace(req.Customer.Email),
			Phone:           validators.SanitizeString(req.Customer.Phone, 40),
			TaxID:           sanitizeOptional(req.Customer.TaxID, 40),
			DeliveryAddress: sanitizeOptional(req.Customer.DeliveryAddress, 500),
			PickupNote:      sanitizeOptional(req.Customer.PickupNote, 500),
		},
		DeliveryType:  enums.DeliveryType(req.DeliveryType),
		PaymentMethod: method,
		Lines:         lines,
	}
}

func sanitizeOptional(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	clean := validators.SanitizeString(*value, maxLen)
	if clean == "" {
		return nil
	}
	return &clean
}

// CheckoutOffline accepts a multipart checkout: the JSON submission in the
// payload field and the transfer receipt in the proof field.
func CheckoutOffline(svc checkoutsvc.Service, maxProofBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		if err := validators.ParseMultipart(w, r, maxProofBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeFormJSON(r, checkoutPayloadField, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		file, err := validators.FormFile(r, checkoutProofField)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub := payload.submission(enums.PaymentMethodOfflineTransfer)
		if file != nil {
			sub.Proof = &payments.Proof{Filename: file.Filename, Size: file.Size, Content: file.Content}
		}

		receipt, err := svc.Submit(r.Context(), sub)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receipt)
	}
}

// CheckoutHosted accepts a JSON checkout paid through the hosted gateway. The
// receipt carries the redirect URL.
func CheckoutHosted(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		receipt, err := svc.Submit(r.Context(), payload.submission(enums.PaymentMethodHostedPayment))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receipt)
	}
}
