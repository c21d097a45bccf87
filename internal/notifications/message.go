package notifications

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Message is one out-of-band notice about an order.
type Message struct {
	OrderID        uuid.UUID
	Audience       enums.NotificationAudience
	Status         enums.OrderStatus
	PreviousStatus enums.OrderStatus
	CustomerName   string
	CustomerEmail  string
	Text           string
}

func orderRef(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}

func formatTotal(cents int64, currency string) string {
	return decimal.New(cents, -2).StringFixed(2) + " " + currency
}

func customerText(order *models.Order, from enums.OrderStatus) string {
	ref := orderRef(order.ID)
	switch order.Status {
	case enums.OrderStatusPendingPayment:
		return fmt.Sprintf("We received your order %s. It is waiting for payment of %s.", ref, formatTotal(order.TotalCents, order.Currency))
	case enums.OrderStatusPendingVerification:
		return fmt.Sprintf("We received your order %s and your transfer receipt. We will confirm it once the transfer is verified.", ref)
	case enums.OrderStatusConfirmed:
		return fmt.Sprintf("Payment for your order %s is confirmed.", ref)
	case enums.OrderStatusPreparing:
		return fmt.Sprintf("Your order %s is being prepared.", ref)
	case enums.OrderStatusShipped:
		if order.DeliveryType == enums.DeliveryTypePickup {
			return fmt.Sprintf("Your order %s is ready for pickup.", ref)
		}
		return fmt.Sprintf("Your order %s has shipped.", ref)
	case enums.OrderStatusDelivered:
		return fmt.Sprintf("Your order %s was delivered. Thank you!", ref)
	case enums.OrderStatusCancelled:
		if from == enums.OrderStatusPendingPayment {
			return fmt.Sprintf("Your order %s was cancelled because payment was not completed. Nothing was charged.", ref)
		}
		return fmt.Sprintf("Your order %s was cancelled.", ref)
	default:
		return fmt.Sprintf("Your order %s is now %s.", ref, order.Status)
	}
}

// staffText returns the staff notice for a change, or "" when staff need not hear about it.
func staffText(order *models.Order, from enums.OrderStatus) string {
	ref := orderRef(order.ID)
	switch {
	case from == "":
		return fmt.Sprintf("New %s order %s from %s, %s, %s.",
			strings.ReplaceAll(string(order.PaymentMethod), "_", " "),
			ref, order.CustomerName, formatTotal(order.TotalCents, order.Currency), order.DeliveryType)
	case order.Status == enums.OrderStatusPendingVerification:
		return fmt.Sprintf("Order %s has a transfer receipt waiting for verification.", ref)
	case order.Status == enums.OrderStatusConfirmed && order.PaymentMethod == enums.PaymentMethodHostedPayment:
		return fmt.Sprintf("Order %s was paid online.", ref)
	case order.Status == enums.OrderStatusCancelled:
		return fmt.Sprintf("Order %s was cancelled (was %s).", ref, from)
	default:
		return ""
	}
}

func buildMessages(order *models.Order, from enums.OrderStatus) []Message {
	base := Message{
		OrderID:        order.ID,
		Status:         order.Status,
		PreviousStatus: from,
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
	}
	customer := base
	customer.Audience = enums.NotificationAudienceCustomer
	customer.Text = customerText(order, from)
	messages := []Message{customer}

	if text := staffText(order, from); text != "" {
		staff := base
		staff.Audience = enums.NotificationAudienceStaff
		staff.Text = text
		messages = append(messages, staff)
	}
	return messages
}
