package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"golang.org/x/text/currency"
)

// Status is the normalised payment state recorded on an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// ErrIntentNotFound reports an unknown PaymentIntent reference.
var ErrIntentNotFound = errors.New("payments: payment intent not found")

// Details is the subset of a PaymentIntent the order core records.
type Details struct {
	IntentID string
	Status   Status
	Amount   int64
	Currency string
}

// Matches reports whether the intent covers total in cur, compared in minor units.
func (d Details) Matches(total decimal.Decimal, cur string) bool {
	if !strings.EqualFold(d.Currency, cur) {
		return false
	}
	return d.Amount == MinorUnits(total, cur)
}

// MinorUnits converts amount to the currency's smallest unit (cents, yen).
func MinorUnits(amount decimal.Decimal, cur string) int64 {
	scale := 2
	if unit, err := currency.ParseISO(cur); err == nil {
		s, _ := currency.Standard.Rounding(unit)
		scale = s
	}
	return amount.Shift(int32(scale)).Round(0).IntPart()
}

type paymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeStatusLookup reads PaymentIntent status. It never captures or refunds.
type StripeStatusLookup struct {
	intents paymentIntentAPI
}

// NewStripeStatusLookup builds a lookup over the Stripe API with apiKey.
func NewStripeStatusLookup(apiKey string, backends *stripe.Backends) (*StripeStatusLookup, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("stripe: api key is required")
	}
	return &StripeStatusLookup{intents: client.New(apiKey, backends).PaymentIntents}, nil
}

// Lookup fetches intentID and maps its state.
func (s *StripeStatusLookup) Lookup(ctx context.Context, intentID string) (Details, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Details{}, ErrIntentNotFound
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	intent, err := s.intents.Get(intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return Details{}, fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
		}
		return Details{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return detailsFromIntent(intent), nil
}

func detailsFromIntent(intent *stripe.PaymentIntent) Details {
	details := Details{
		IntentID: intent.ID,
		Status:   StatusPending,
		Amount:   intent.Amount,
		Currency: strings.ToUpper(string(intent.Currency)),
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		details.Status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		details.Status = StatusFailed
	}
	if charge := intent.LatestCharge; charge != nil && charge.Amount > 0 && charge.AmountRefunded >= charge.Amount {
		details.Status = StatusRefunded
	}
	return details
}
