package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// StripeGateway charges through Stripe PaymentIntents.
//
// Charges are confirmed immediately and card-only, mirroring a "charge now"
// checkout: an intent that ends in any state other than succeeded (for
// example one that needs 3-D Secure) is treated as declined.
type StripeGateway struct {
	api *client.API
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a gateway for the given secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, nil)}
}

// newStripeGatewayWithBackends points the client at custom backends. Tests
// use it to talk to an httptest server.
func newStripeGatewayWithBackends(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, backends)}
}

// CreateCustomer registers the account and returns the Stripe customer ID.
func (g *StripeGateway) CreateCustomer(ctx context.Context, c Customer) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(c.Name),
		Email: stripe.String(c.Email),
	}
	params.Context = ctx
	params.AddMetadata("user_id", c.UserID)

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("payment: creating stripe customer for %s: %w", c.UserID, err)
	}
	return cus.ID, nil
}

// Charge creates and confirms a PaymentIntent for the customer.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		Customer:           stripe.String(req.CustomerID),
		PaymentMethod:      stripe.String(req.PaymentMethodID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && isDecline(stripeErr) {
			return nil, fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
		}
		return nil, fmt.Errorf("payment: creating payment intent: %w", err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: payment intent %s is %s", ErrDeclined, pi.ID, pi.Status)
	}

	return &Charge{ID: pi.ID, Amount: pi.Amount, Currency: string(pi.Currency)}, nil
}

// Refund returns the full amount of a PaymentIntent.
func (g *StripeGateway) Refund(ctx context.Context, chargeID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(chargeID),
	}
	params.Context = ctx

	if _, err := g.api.Refunds.New(params); err != nil {
		return fmt.Errorf("payment: refunding %s: %w", chargeID, err)
	}
	return nil
}

// isDecline separates "the customer's card said no" from provider faults.
func isDecline(err *stripe.Error) bool {
	if err.Type == stripe.ErrorTypeCard {
		return true
	}
	// An unknown or detached payment method ID.
	return err.Type == stripe.ErrorTypeInvalidRequest && err.Code == stripe.ErrorCodeResourceMissing
}
