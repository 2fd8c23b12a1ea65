package payment

import (
	"context"
	"fmt"

	"github.com/rs/xid"
)

// declinedMethods are Stripe's documented test payment methods that always
// fail, so the offline gateway behaves like Stripe test mode for them.
var declinedMethods = map[string]bool{
	"pm_card_chargeDeclined":                  true,
	"pm_card_visa_chargeDeclined":             true,
	"pm_card_chargeDeclinedInsufficientFunds": true,
}

// OfflineGateway approves every charge without talking to a provider. The
// server falls back to it when no Stripe key is configured, so the board can
// run locally; it is never used when a key is present.
type OfflineGateway struct{}

var _ Gateway = OfflineGateway{}

func (OfflineGateway) CreateCustomer(_ context.Context, _ Customer) (string, error) {
	return "cus_offline_" + xid.New().String(), nil
}

func (OfflineGateway) Charge(_ context.Context, req ChargeRequest) (*Charge, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("payment: amount must be positive, got %d", req.Amount)
	}
	if declinedMethods[req.PaymentMethodID] {
		return nil, fmt.Errorf("%w: %s", ErrDeclined, "your card was declined")
	}
	return &Charge{
		ID:       "pi_offline_" + xid.New().String(),
		Amount:   req.Amount,
		Currency: req.Currency,
	}, nil
}

func (OfflineGateway) Refund(_ context.Context, _ string) error {
	return nil
}
