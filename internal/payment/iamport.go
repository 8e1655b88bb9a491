package payment

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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultIamportBaseURL = "https://api.iamport.kr"

	statusPaid = "paid"

	// tokenLeeway is subtracted from the provider expiry so a token is never
	// used right at its deadline.
	tokenLeeway = 30 * time.Second
)

var tracer = otel.Tracer("github.com/fjod/go_cart/storefront/internal/payment")

type IamportConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string

	// Timeout bounds one Verify call, retries included.
	Timeout time.Duration

	MaxRetries    uint64
	RetryInterval time.Duration

	// BreakerThreshold consecutive provider failures open the breaker for BreakerCooldown.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration

	HTTPClient *http.Client
	Clock      func() time.Time
}

type IamportClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	timeout   time.Duration

	maxRetries    uint64
	retryInterval time.Duration

	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*ProviderRecord]
	clock   func() time.Time
	logger  *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewIamportClient(cfg IamportConfig, logger *zap.Logger) (*IamportClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, ErrGatewayNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultIamportBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid iamport base url: %w", err)
	}

	c := &IamportClient{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		apiSecret:     cfg.APISecret,
		timeout:       cfg.Timeout,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		http:          cfg.HTTPClient,
		clock:         cfg.Clock,
		logger:        logger,
	}
	if c.timeout <= 0 {
		c.timeout = 5 * time.Second
	}
	if c.retryInterval <= 0 {
		c.retryInterval = 100 * time.Millisecond
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if c.clock == nil {
		c.clock = time.Now
	}

	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	c.breaker = gobreaker.NewCircuitBreaker[*ProviderRecord](gobreaker.Settings{
		Name:        "iamport",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// business outcomes (not found, auth) say nothing about provider health
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrGatewayUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment gateway circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return c, nil
}

type tokenRequest struct {
	ImpKey    string `json:"imp_key"`
	ImpSecret string `json:"imp_secret"`
}

type tokenEnvelope struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Response *struct {
		AccessToken string `json:"access_token"`
		Now         int64  `json:"now"`
		ExpiredAt   int64  `json:"expired_at"`
	} `json:"response"`
}

type paymentEnvelope struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Response *struct {
		ImpUID      string `json:"imp_uid"`
		MerchantUID string `json:"merchant_uid"`
		Amount      int64  `json:"amount"`
		Status      string `json:"status"`
		PaidAt      int64  `json:"paid_at"`
	} `json:"response"`
}

func (c *IamportClient) Verify(ctx context.Context, claimID string, expectedAmount int64) (*ProviderRecord, error) {
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return nil, fmt.Errorf("%w: empty claim id", ErrPaymentNotFound)
	}

	ctx, span := tracer.Start(ctx, "iamport.Verify", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.provider", ProviderIamport),
		attribute.String("payment.claim_id", claimID),
		attribute.Int64("payment.expected_amount", expectedAmount),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	record, err := c.breaker.Execute(func() (*ProviderRecord, error) {
		return c.fetchPayment(ctx, claimID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: circuit breaker is open", ErrGatewayUnavailable)
	}
	if err == nil {
		switch {
		case record.Amount != expectedAmount:
			err = fmt.Errorf("%w: provider reports %d, order total is %d", ErrAmountMismatch, record.Amount, expectedAmount)
		case record.Status != statusPaid:
			err = fmt.Errorf("%w: provider status %q", ErrPaymentNotCompleted, record.Status)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("payment verification failed",
			zap.String("claim_id", claimID),
			zap.Int64("expected_amount", expectedAmount),
			zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.status", record.Status))
	return record, nil
}

func (c *IamportClient) fetchPayment(ctx context.Context, claimID string) (*ProviderRecord, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var env paymentEnvelope
	status, err := c.call(ctx, http.MethodGet, "/payments/"+url.PathEscape(claimID), token, nil, &env)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized:
		c.resetToken()
		return nil, fmt.Errorf("%w: token rejected", ErrGatewayAuth)
	case status == http.StatusNotFound:
		return nil, ErrPaymentNotFound
	case status < 200 || status > 299:
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrGateway, status)
	case env.Response == nil:
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, env.Message)
	}

	record := &ProviderRecord{
		ClaimID:     env.Response.ImpUID,
		MerchantUID: env.Response.MerchantUID,
		Amount:      env.Response.Amount,
		Status:      env.Response.Status,
	}
	if env.Response.PaidAt > 0 {
		record.PaidAt = time.Unix(env.Response.PaidAt, 0).UTC()
	}
	return record, nil
}

func (c *IamportClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.clock().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var env tokenEnvelope
	status, err := c.call(ctx, http.MethodPost, "/users/getToken", "", tokenRequest{
		ImpKey:    c.apiKey,
		ImpSecret: c.apiSecret,
	}, &env)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 || env.Code != 0 || env.Response == nil || env.Response.AccessToken == "" {
		return "", fmt.Errorf("%w: status %d: %s", ErrGatewayAuth, status, env.Message)
	}

	c.token = env.Response.AccessToken
	c.tokenExpiry = time.Unix(env.Response.ExpiredAt, 0).Add(-tokenLeeway)
	return c.token, nil
}

func (c *IamportClient) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// call performs one provider request, retrying transport failures and 5xx
// responses. Any other response is decoded into out and its status returned.
func (c *IamportClient) call(ctx context.Context, method, path, token string, payload interface{}, out interface{}) (int, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
	}

	var status int
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrGatewayUnavailable, err))
			}
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: provider returned %d", ErrGatewayUnavailable, resp.StatusCode)
		}

		status = resp.StatusCode
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && status >= 200 && status <= 299 {
			return backoff.Permanent(fmt.Errorf("%w: decode provider response: %v", domain.ErrGateway, err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	if err := backoff.Retry(attempt, retry); err != nil {
		if !errors.Is(err, domain.ErrGateway) {
			// deadline hit between attempts
			err = fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return 0, err
	}
	return status, nil
}
