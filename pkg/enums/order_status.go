package enums

// OrderStatus tracks the fulfillment lifecycle of a storefront order.
type OrderStatus string

const (
	OrderStatusPendingPayment      OrderStatus = "pending_payment"
	OrderStatusPendingVerification OrderStatus = "pending_verification"
	OrderStatusConfirmed           OrderStatus = "confirmed"
	OrderStatusPreparing           OrderStatus = "preparing"
	OrderStatusShipped             OrderStatus = "shipped"
	OrderStatusDelivered           OrderStatus = "delivered"
	OrderStatusCancelled           OrderStatus = "cancelled"
)

var orderStatuses = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPendingVerification,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (o OrderStatus) String() string { return string(o) }

func (o OrderStatus) IsValid() bool { return known(orderStatuses, o) }

// IsTerminal reports whether no further transition may leave the status.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusDelivered || o == OrderStatusCancelled
}

// IsPending covers both states that still wait on payment.
func (o OrderStatus) IsPending() bool {
	return o == OrderStatusPendingPayment || o == OrderStatusPendingVerification
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse("order status", orderStatuses, value)
}
