package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// ProviderRazorpay is the manager key of the Razorpay adapter.
	ProviderRazorpay       = "razorpay"
	defaultRazorpayBaseURL = "https://api.razorpay.com"
	razorpayErrorBodyLimit = 4 << 10
)

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     RazorpayLogger
}

// RazorpayProvider implements Provider against the Razorpay Orders API. Payment proofs are
// checked locally with the key secret, as the gateway signs "order_id|payment_id", and the
// order is read back for its amount.
type RazorpayProvider struct {
	keyID   string
	secret  []byte
	baseURL string
	client  *http.Client
	logger  RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errors.New("razorpay: key id is required")
	}
	secret := strings.TrimSpace(cfg.KeySecret)
	if secret == "" {
		return nil, errors.New("razorpay: key secret is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RazorpayProvider{
		keyID:   keyID,
		secret:  []byte(secret),
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}, nil
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Notes    json.RawMessage `json:"notes"`
}

// notes decodes the order notes. Razorpay renders empty notes as [] rather than {}.
func (o razorpayOrder) notes() map[string]string {
	out := map[string]string{}
	_ = json.Unmarshal(o.Notes, &out)
	return out
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder opens a Razorpay order for the amount converted to paise.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, req OrderRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("razorpay: provider is nil")
	}
	payload, err := json.Marshal(razorpayOrderRequest{
		Amount:   minorUnits(req.Amount, req.Currency),
		Currency: strings.ToUpper(req.Currency),
		Receipt:  truncate(req.Receipt, 40),
		Notes:    req.Notes,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("razorpay: encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return Intent{}, fmt.Errorf("razorpay: build request: %w", err)
	}
	httpReq.SetBasicAuth(p.keyID, string(p.secret))
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		httpReq.Header.Set("X-Razorpay-Idempotency-Key", key)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger(ctx, "razorpay.order.create.failed", map[string]any{"error": err.Error()})
		return Intent{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr razorpayError
		body, _ := io.ReadAll(io.LimitReader(resp.Body, razorpayErrorBodyLimit))
		_ = json.Unmarshal(body, &apiErr)
		p.logger(ctx, "razorpay.order.create.failed", map[string]any{
			"status": resp.StatusCode,
			"code":   apiErr.Error.Code,
		})
		if resp.StatusCode < http.StatusInternalServerError {
			return Intent{}, fmt.Errorf("%w: razorpay %s: %s", ErrInvalidRequest, apiErr.Error.Code, apiErr.Error.Description)
		}
		return Intent{}, fmt.Errorf("razorpay: create order: status %d", resp.StatusCode)
	}

	var order razorpayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return Intent{}, fmt.Errorf("razorpay: decode order: %w", err)
	}
	if order.ID == "" {
		return Intent{}, errors.New("razorpay: order id missing from response")
	}
	currency := strings.ToUpper(order.Currency)
	if currency == "" {
		currency = strings.ToUpper(req.Currency)
	}
	p.logger(ctx, "razorpay.order.created", map[string]any{"providerOrderId": order.ID})
	return Intent{
		Provider:        ProviderRazorpay,
		IntentID:        order.ID,
		ProviderOrderID: order.ID,
		Amount:          wholeUnits(order.Amount, currency),
		Currency:        currency,
		KeyID:           p.keyID,
	}, nil
}

// Verify recomputes the checkout signature and compares it in constant time. A matching
// signature only binds the order and payment ids, so the order is then fetched to learn the
// amount actually charged.
func (p *RazorpayProvider) Verify(ctx context.Context, proof Proof) (Settlement, bool, error) {
	if p == nil {
		return Settlement{}, false, errors.New("razorpay: provider is nil")
	}
	given, err := hex.DecodeString(strings.TrimSpace(proof.Signature))
	if err != nil || len(given) == 0 {
		return Settlement{}, false, nil
	}
	if !hmac.Equal(given, p.sign(proof.ProviderOrderID, proof.PaymentID)) {
		return Settlement{}, false, nil
	}

	order, found, err := p.fetchOrder(ctx, proof.ProviderOrderID)
	if err != nil || !found {
		return Settlement{}, false, err
	}
	currency := strings.ToUpper(order.Currency)
	return Settlement{
		Provider:        ProviderRazorpay,
		ProviderOrderID: order.ID,
		PaymentID:       proof.PaymentID,
		Amount:          wholeUnits(order.Amount, currency),
		Currency:        currency,
		Notes:           order.notes(),
	}, true, nil
}

func (p *RazorpayProvider) fetchOrder(ctx context.Context, orderID string) (razorpayOrder, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return razorpayOrder{}, false, fmt.Errorf("razorpay: build request: %w", err)
	}
	httpReq.SetBasicAuth(p.keyID, string(p.secret))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger(ctx, "razorpay.order.fetch.failed", map[string]any{"providerOrderId": orderID, "error": err.Error()})
		return razorpayOrder{}, false, fmt.Errorf("razorpay: fetch order: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		p.logger(ctx, "razorpay.order.fetch.missing", map[string]any{"providerOrderId": orderID, "status": resp.StatusCode})
		return razorpayOrder{}, false, nil
	case resp.StatusCode >= http.StatusBadRequest:
		p.logger(ctx, "razorpay.order.fetch.failed", map[string]any{"providerOrderId": orderID, "status": resp.StatusCode})
		return razorpayOrder{}, false, fmt.Errorf("razorpay: fetch order: status %d", resp.StatusCode)
	}

	var order razorpayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return razorpayOrder{}, false, fmt.Errorf("razorpay: decode order: %w", err)
	}
	if order.ID != orderID {
		return razorpayOrder{}, false, nil
	}
	return order, true, nil
}

// Sign returns the hex signature the gateway would issue for the pair.
func (p *RazorpayProvider) Sign(providerOrderID, paymentID string) string {
	return hex.EncodeToString(p.sign(providerOrderID, paymentID))
}

func (p *RazorpayProvider) sign(providerOrderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	return mac.Sum(nil)
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) > limit {
		return value[:limit]
	}
	return value
}
