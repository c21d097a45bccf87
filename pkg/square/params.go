package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
)

// PaymentLinkParams describes a quick-pay link for a single storefront order.
type PaymentLinkParams struct {
	OrderReference string
	Name           string
	AmountCents    int64
	Currency       string
	LocationID     string
	RedirectURL    string
	BuyerEmail     string
	BuyerPhone     string
	IdempotencyKey string
}

// PaymentLink is the subset of the Square payment link the storefront persists.
type PaymentLink struct {
	ID          string
	URL         string
	OrderID     string
	AmountCents int64
}

func (p PaymentLinkParams) toSquareRequest(idempotencyKey string) *checkout.CreatePaymentLinkRequest {
	req := &checkout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		QuickPay: &sq.QuickPay{
			Name:       p.Name,
			PriceMoney: moneyPtr(p.AmountCents, p.Currency),
			LocationID: p.LocationID,
		},
	}
	if trimmed := strings.TrimSpace(p.OrderReference); trimmed != "" {
		req.PaymentNote = ptrString("storefront order " + trimmed)
	}
	if trimmed := strings.TrimSpace(p.RedirectURL); trimmed != "" {
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: ptrString(trimmed)}
	}
	email := strings.TrimSpace(p.BuyerEmail)
	phone := strings.TrimSpace(p.BuyerPhone)
	if email != "" || phone != "" {
		prefill := &sq.PrePopulatedData{}
		if email != "" {
			prefill.BuyerEmail = ptrString(email)
		}
		if phone != "" {
			prefill.BuyerPhoneNumber = ptrString(phone)
		}
		req.PrePopulatedData = prefill
	}
	return req
}

func ptrString(v string) *string {
	return &v
}

func moneyPtr(amount int64, currency string) *sq.Money {
	money := &sq.Money{Amount: &amount}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = "USD"
	}
	cur := sq.Currency(code)
	money.Currency = &cur
	return money
}
