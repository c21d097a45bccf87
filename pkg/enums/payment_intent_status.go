package enums

// PaymentIntentStatus mirrors the hosted gateway lifecycle of a payment link.
type PaymentIntentStatus string

const (
	PaymentIntentStatusOpen      PaymentIntentStatus = "open"
	PaymentIntentStatusCompleted PaymentIntentStatus = "completed"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
)

var paymentIntentStatuses = []PaymentIntentStatus{PaymentIntentStatusOpen, PaymentIntentStatusCompleted, PaymentIntentStatusFailed}

func (p PaymentIntentStatus) String() string { return string(p) }

func (p PaymentIntentStatus) IsValid() bool { return known(paymentIntentStatuses, p) }

func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	return parse("payment intent status", paymentIntentStatuses, value)
}
