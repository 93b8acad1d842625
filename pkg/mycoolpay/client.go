package mycoolpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jemo-app/jemo-backend/pkg/config"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"
	"github.com/jemo-app/jemo-backend/pkg/metrics"
)

const currencyXAF = "XAF"

var (
	errPublicKeyRequired  = errors.New("mycoolpay public key is required")
	errPrivateKeyRequired = errors.New("mycoolpay private key is required")
	errBaseURLRequired    = errors.New("mycoolpay base URL is required")
	errLoggerRequired     = errors.New("mycoolpay logger is required")
)

// Client wraps the MyCoolPay HTTP API with centralized auth, logging,
// metrics, and error mapping. All amounts are XAF minor units.
type Client struct {
	httpc        *http.Client
	baseURL      string
	publicKey    string
	privateKey   string
	customerLang string
	logger       *logger.Logger
	metrics      *metrics.PaymentMetrics
}

// NewClient initializes the provider wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.MyCoolPayConfig, logg *logger.Logger, m *metrics.PaymentMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	publicKey := strings.TrimSpace(cfg.PublicKey)
	if publicKey == "" {
		return nil, errPublicKeyRequired
	}
	privateKey := strings.TrimSpace(cfg.PrivateKey)
	if privateKey == "" {
		return nil, errPrivateKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpc:        &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		publicKey:    publicKey,
		privateKey:   privateKey,
		customerLang: cfg.CustomerLng,
		logger:       logg,
		metrics:      m,
	}

	logg.Info(ctx, "mycoolpay client initialized")
	return c, nil
}

// Payin asks the provider to collect Amount from the customer's mobile-money
// account. The returned transaction carries the provider's own reference,
// which later status checks must use.
func (c *Client) Payin(ctx context.Context, params PayinParams) (*Transaction, error) {
	req := transferRequest{
		Amount:            params.Amount,
		Currency:          currencyXAF,
		Reason:            params.Reason,
		AppTransactionRef: params.AppTransactionRef,
		CustomerName:      params.CustomerName,
		CustomerPhone:     params.CustomerPhone,
		CustomerLang:      c.customerLang,
	}
	c.log(ctx, "request", "payin", map[string]any{
		"app_transaction_ref": params.AppTransactionRef,
		"amount":              params.Amount,
		"customer_phone":      params.CustomerPhone,
	})
	return c.do(ctx, "payin", http.MethodPost, c.endpoint("payin"), req, false)
}

// Payout asks the provider to transfer Amount to the destination's
// mobile-money account. Payouts are authenticated with the private key.
func (c *Client) Payout(ctx context.Context, params PayoutParams) (*Transaction, error) {
	req := transferRequest{
		Amount:            params.Amount,
		Currency:          currencyXAF,
		Reason:            params.Reason,
		AppTransactionRef: params.AppTransactionRef,
		CustomerName:      params.CustomerName,
		CustomerPhone:     params.CustomerPhone,
		CustomerLang:      c.customerLang,
	}
	c.log(ctx, "request", "payout", map[string]any{
		"app_transaction_ref": params.AppTransactionRef,
		"amount":              params.Amount,
		"customer_phone":      params.CustomerPhone,
	})
	return c.do(ctx, "payout", http.MethodPost, c.endpoint("payout"), req, true)
}

// CheckStatus polls the provider for a transaction's current state using the
// provider's transaction_ref, never the app's.
func (c *Client) CheckStatus(ctx context.Context, transactionRef string) (*Transaction, error) {
	ref := strings.TrimSpace(transactionRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction ref is required")
	}
	c.log(ctx, "request", "check_status", map[string]any{"transaction_ref": ref})
	return c.do(ctx, "check_status", http.MethodGet, c.endpoint("checkStatus", ref), nil, false)
}

func (c *Client) endpoint(parts ...string) string {
	segments := append([]string{c.baseURL, c.publicKey}, parts...)
	for i, s := range segments[1:] {
		segments[i+1] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body any, private bool) (*Transaction, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding provider request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building provider request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if private {
		httpReq.Header.Set("X-Private-Key", c.privateKey)
	}

	start := time.Now()
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		c.metrics.ObserveProviderCall(op, "transport_error", time.Since(start))
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("mycoolpay %s failed", op))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.metrics.ObserveProviderCall(op, "transport_error", time.Since(start))
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("mycoolpay %s failed", op))
	}

	var decoded providerResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			c.metrics.ObserveProviderCall(op, "decode_error", time.Since(start))
			c.log(ctx, "error", op, map[string]any{"error": err.Error(), "status_code": resp.StatusCode})
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("mycoolpay %s: decoding response", op))
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.ObserveProviderCall(op, "http_error", time.Since(start))
		c.log(ctx, "error", op, map[string]any{
			"error":       decoded.Message,
			"status_code": resp.StatusCode,
		})
		return nil, c.mapHTTPError(resp.StatusCode, decoded.Message, op)
	}

	if decoded.rejected() {
		c.metrics.ObserveProviderCall(op, "rejected", time.Since(start))
		c.log(ctx, "error", op, map[string]any{"error": decoded.Message})
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "mycoolpay %s rejected: %s", op, decoded.Message)
	}

	tx := decoded.normalize()
	c.metrics.ObserveProviderCall(op, "success", time.Since(start))
	c.log(ctx, "response", op, map[string]any{
		"transaction_ref": tx.TransactionRef,
		"status":          string(tx.Status),
	})
	return &tx, nil
}

func (c *Client) mapHTTPError(status int, message, op string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	code := pkgerrors.CodeDependency
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = pkgerrors.CodeValidation
	case http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case http.StatusConflict:
		code = pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		code = pkgerrors.CodeRateLimit
	}
	return pkgerrors.Newf(code, "mycoolpay %s failed: %s", op, message)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("mycoolpay %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("mycoolpay %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"phone", "name", "key", "secret", "token"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
