package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidRequest signals an amount or currency the gateway would reject.
	ErrInvalidRequest = errors.New("payments: invalid request")
)

// OrderRequest asks a gateway to open a payment intent for a whole-unit amount.
type OrderRequest struct {
	Amount         int64
	Currency       string
	Receipt        string
	IdempotencyKey string
	Notes          map[string]string
}

// Intent is the gateway record the client pays against.
type Intent struct {
	Provider        string
	IntentID        string
	ProviderOrderID string
	Amount          int64
	Currency        string
	KeyID           string
	ClientSecret    string
}

// Proof is the client-supplied evidence that a provider order was paid.
type Proof struct {
	ProviderOrderID string
	PaymentID       string
	Signature       string
}

// Settlement is the gateway's own record of what a verified proof paid for. Amount is in
// whole currency units; Notes carries the metadata attached when the order was opened.
type Settlement struct {
	Provider        string
	ProviderOrderID string
	PaymentID       string
	Amount          int64
	Currency        string
	Notes           map[string]string
}

// Provider defines the contract for gateway adapters.
type Provider interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Intent, error)
	// Verify reports whether proof is authentic for its provider order and payment pair and,
	// when it is, what the gateway charged. An error means the gateway could not be asked,
	// not that the proof is forged.
	Verify(ctx context.Context, proof Proof) (Settlement, bool, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{providers: registered}
	if _, ok := registered[ProviderRazorpay]; ok {
		m.defaultProvider = ProviderRazorpay
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateOrder validates the request and delegates to the resolved provider.
func (m *Manager) CreateOrder(ctx context.Context, paymentCtx PaymentContext, req OrderRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(req.Currency) != 3 {
		return Intent{}, fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidRequest)
	}
	if paymentCtx.Currency == "" {
		paymentCtx.Currency = req.Currency
	}
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Intent{}, err
	}
	intent, err := provider.CreateOrder(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// Verify delegates proof verification to the resolved provider. The settlement always
// names the provider key, even when the proof is rejected.
func (m *Manager) Verify(ctx context.Context, paymentCtx PaymentContext, proof Proof) (Settlement, bool, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Settlement{}, false, err
	}
	rejected := Settlement{Provider: key, ProviderOrderID: proof.ProviderOrderID, PaymentID: proof.PaymentID}
	if strings.TrimSpace(proof.ProviderOrderID) == "" || strings.TrimSpace(proof.PaymentID) == "" {
		return rejected, false, nil
	}
	settlement, ok, err := provider.Verify(ctx, proof)
	if err != nil || !ok {
		return rejected, false, err
	}
	settlement.Provider = key
	settlement.Currency = strings.ToUpper(strings.TrimSpace(settlement.Currency))
	return settlement, true, nil
}

var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
}

// minorUnits converts a whole-unit amount to the smallest currency unit gateways expect.
func minorUnits(amount int64, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return amount
	}
	return amount * 100
}

// wholeUnits is the inverse of minorUnits, truncating fractions.
func wholeUnits(amount int64, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return amount
	}
	return amount / 100
}
