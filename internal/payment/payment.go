// Package payment is the boundary to the payment provider.
//
// The publication workflow only needs three things from a provider: register
// an account as a billable customer, charge a payment method a fixed amount,
// and refund a charge when a later step fails. Gateway captures exactly that,
// so the service layer never imports a provider SDK.
package payment

import (
	"context"
	"errors"
)

// ErrDeclined means the provider refused the charge (declined card, invalid
// payment method, authentication required). Network and API failures are
// returned unwrapped.
var ErrDeclined = errors.New("payment declined")

// Customer is the information a provider needs to register an account.
type Customer struct {
	UserID string
	Name   string
	Email  string
}

// ChargeRequest describes a one-off charge. Amount is in the currency's
// minor unit (cents for USD).
type ChargeRequest struct {
	CustomerID      string
	PaymentMethodID string
	Amount          int64
	Currency        string
	Description     string
}

// Charge is the provider's record of a successful charge.
type Charge struct {
	ID       string
	Amount   int64
	Currency string
}

type Gateway interface {
	CreateCustomer(ctx context.Context, c Customer) (string, error)
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
	Refund(ctx context.Context, chargeID string) error
}
