// Package payment は貸出料金のオンライン決済を提供する。
// 決済プロバイダ（Stripe Checkout）のREST APIをサーキットブレーカー越しに呼び出す。
package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	// DefaultAPIBase は決済プロバイダAPIの既定のベースURL。
	DefaultAPIBase = "https://api.stripe.com"
	// DefaultTimeout は決済プロバイダAPI呼び出しの既定のタイムアウト。
	DefaultTimeout = 10 * time.Second
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20
)

// ErrProviderUnavailable はサーキットブレーカーが開いている間に返される。
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// CheckoutParams はCheckoutセッション作成のパラメータ。
type CheckoutParams struct {
	AmountCents   int64
	Currency      string
	ProductName   string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession は決済プロバイダのCheckoutセッション。
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

// IsPaid は支払いが完了しているかどうかを返す。
func (s *CheckoutSession) IsPaid() bool {
	return s.PaymentStatus == "paid"
}

// ClientConfig は決済プロバイダクライアントの設定。
type ClientConfig struct {
	SecretKey string
	APIBase   string
	Timeout   time.Duration
}

// StripeClient はStripe REST APIのクライアント。
// 連続した失敗でサーキットを開き、一定時間プロバイダへの呼び出しを止める。
type StripeClient struct {
	secretKey  string
	apiBase    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*CheckoutSession]
	logger     *slog.Logger
}

// NewStripeClient はStripeClientを生成する。
func NewStripeClient(cfg ClientConfig, logger *slog.Logger) *StripeClient {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	breaker := gobreaker.NewCircuitBreaker[*CheckoutSession](gobreaker.Settings{
		Name:        "payment-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// プロバイダが4xxで応答した場合は呼び出し側の誤りなので失敗に数えない
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode < 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &StripeClient{
		secretKey:  cfg.SecretKey,
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// APIError は決済プロバイダがエラーステータスで応答したことを表す。
type APIError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("payment provider returned status %d: %s", e.StatusCode, e.Message)
}

// CreateCheckoutSession は1明細のCheckoutセッションを作成する。
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", p.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", p.ProductName)
	if p.Description != "" {
		form.Set("line_items[0][price_data][product_data][description]", p.Description)
	}
	if p.CustomerEmail != "" {
		form.Set("customer_email", p.CustomerEmail)
	}
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	for k, v := range p.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	return c.execute(ctx, http.MethodPost, "/v1/checkout/sessions", form)
}

// RetrieveCheckoutSession はCheckoutセッションを取得する。
func (c *StripeClient) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	return c.execute(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
}

func (c *StripeClient) execute(ctx context.Context, method, path string, form url.Values) (*CheckoutSession, error) {
	session, err := c.breaker.Execute(func() (*CheckoutSession, error) {
		return c.do(ctx, method, path, form)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("payment provider request rejected by circuit breaker",
			slog.String("path", path),
		)
		return nil, ErrProviderUnavailable
	}
	return session, err
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values) (*CheckoutSession, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("決済プロバイダの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to call payment provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &errBody)
		c.logger.Error("決済プロバイダがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", errBody.Error.Message),
		)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errBody.Error.Message}
	}

	var session CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return &session, nil
}
