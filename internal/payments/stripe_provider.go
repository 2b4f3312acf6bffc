package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// ProviderStripe is the manager key of the Stripe adapter.
const ProviderStripe = "stripe"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey         string
	PublishableKey string
	AccountID      string
	Backends       *stripe.Backends
	Logger         StripeLogger
	intents        stripePaymentIntentAPI
}

// StripeProvider implements Provider with PaymentIntents. Stripe has no client-side
// signature, so Verify looks the intent up and checks it succeeded for the given payment.
type StripeProvider struct {
	intents     stripePaymentIntentAPI
	publishable string
	account     string
	logger      StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	intents := cfg.intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:     intents,
		publishable: strings.TrimSpace(cfg.PublishableKey),
		account:     strings.TrimSpace(cfg.AccountID),
		logger:      logger,
	}, nil
}

// CreateOrder creates a PaymentIntent for the amount in the currency's minor unit.
func (p *StripeProvider) CreateOrder(ctx context.Context, req OrderRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(req.Amount, req.Currency)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		params.Description = stripe.String(receipt)
	}
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		p.logger(ctx, "stripe.intent.create.failed", map[string]any{"error": err.Error()})
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			return Intent{}, fmt.Errorf("%w: stripe: %s", ErrInvalidRequest, stripeErr.Msg)
		}
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" {
		currency = strings.ToUpper(req.Currency)
	}
	p.logger(ctx, "stripe.intent.created", map[string]any{"intentId": intent.ID})
	return Intent{
		Provider:        ProviderStripe,
		IntentID:        intent.ID,
		ProviderOrderID: intent.ID,
		Amount:          wholeUnits(intent.Amount, currency),
		Currency:        currency,
		KeyID:           p.publishable,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

// Verify accepts the proof when the intent succeeded and the payment id names the intent
// or its latest charge. The settlement carries the amount Stripe received.
func (p *StripeProvider) Verify(ctx context.Context, proof Proof) (Settlement, bool, error) {
	if p == nil {
		return Settlement{}, false, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.intents.Get(strings.TrimSpace(proof.ProviderOrderID), params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return Settlement{}, false, nil
		}
		return Settlement{}, false, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	if intent == nil || intent.Status != stripe.PaymentIntentStatusSucceeded {
		return Settlement{}, false, nil
	}
	paymentID := strings.TrimSpace(proof.PaymentID)
	if paymentID != intent.ID && (intent.LatestCharge == nil || intent.LatestCharge.ID != paymentID) {
		return Settlement{}, false, nil
	}

	currency := strings.ToUpper(string(intent.Currency))
	received := intent.AmountReceived
	if received == 0 {
		received = intent.Amount
	}
	notes := make(map[string]string, len(intent.Metadata))
	for k, v := range intent.Metadata {
		notes[k] = v
	}
	return Settlement{
		Provider:        ProviderStripe,
		ProviderOrderID: intent.ID,
		PaymentID:       paymentID,
		Amount:          wholeUnits(received, currency),
		Currency:        currency,
		Notes:           notes,
	}, true, nil
}
