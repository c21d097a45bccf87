package orders

import "github.com/angelmondragon/storefront-backend/pkg/enums"

// TransitionResult is the outcome of a status change request.
type TransitionResult string

const (
	TransitionOk             TransitionResult = "ok"
	TransitionInvalid        TransitionResult = "invalid_transition"
	TransitionAlreadyApplied TransitionResult = "already_applied"
)

// progress orders the forward path; cancelled is terminal and sits off it.
var progress = map[enums.OrderStatus]int{
	enums.OrderStatusPendingPayment:      0,
	enums.OrderStatusPendingVerification: 1,
	enums.OrderStatusConfirmed:           2,
	enums.OrderStatusPreparing:           3,
	enums.OrderStatusShipped:             4,
	enums.OrderStatusDelivered:           5,
}

// InitialStatus picks the status a new order is created in.
func InitialStatus(method enums.PaymentMethod, proofAttached bool) enums.OrderStatus {
	if method == enums.PaymentMethodOfflineTransfer && proofAttached {
		return enums.OrderStatusPendingVerification
	}
	return enums.OrderStatusPendingPayment
}

// CanTransition reports whether from -> to is an edge of the status machine for
// orders paid with method.
func CanTransition(method enums.PaymentMethod, from, to enums.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case enums.OrderStatusCancelled:
		return true
	case enums.OrderStatusPendingVerification:
		return from == enums.OrderStatusPendingPayment && method == enums.PaymentMethodOfflineTransfer
	case enums.OrderStatusConfirmed:
		switch from {
		case enums.OrderStatusPendingPayment:
			return method == enums.PaymentMethodHostedPayment
		case enums.OrderStatusPendingVerification:
			return method == enums.PaymentMethodOfflineTransfer
		}
		return false
	case enums.OrderStatusPreparing:
		return from == enums.OrderStatusConfirmed
	case enums.OrderStatusShipped:
		return from == enums.OrderStatusPreparing
	case enums.OrderStatusDelivered:
		return from == enums.OrderStatusShipped
	default:
		return false
	}
}

// IsPast reports whether current is strictly further along the forward path than target.
func IsPast(current, target enums.OrderStatus) bool {
	c, okC := progress[current]
	t, okT := progress[target]
	return okC && okT && c > t
}
