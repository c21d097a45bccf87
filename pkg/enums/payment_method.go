package enums

// PaymentMethod is how a customer settles an order, fixed at checkout.
type PaymentMethod string

const (
	PaymentMethodOfflineTransfer PaymentMethod = "offline_transfer"
	PaymentMethodHostedPayment   PaymentMethod = "hosted_payment"
)

var paymentMethods = []PaymentMethod{PaymentMethodOfflineTransfer, PaymentMethodHostedPayment}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return known(paymentMethods, p) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse("payment method", paymentMethods, value)
}
