package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"freelance/internal/config"
)

const (
	sandboxBaseURL = "https://sandbox.safaricom.co.ke"
	liveBaseURL    = "https://api.safaricom.co.ke"

	stkPushPath = "/mpesa/stkpush/v1/processrequest"
	b2cPath     = "/mpesa/b2c/v1/paymentrequest"

	defaultTimeout = 30 * time.Second
	retryWait      = 500 * time.Millisecond
)

// Operation names an M-Pesa API whose configuration can be checked.
type Operation int

const (
	OperationSTKPush Operation = iota
	OperationB2C
)

// Client talks to the Daraja API.
type Client struct {
	cfg     config.MpesaConfig
	http    *resty.Client
	tokens  *TokenProvider
	retries int
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client, e.g. one instrumented by New Relic.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc)
	}
}

// WithClock overrides the time source used for STK push timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Daraja client. cache may be nil, in which case every
// operation fetches a fresh token.
func NewClient(cfg config.MpesaConfig, cache TokenCache, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		retries: cfg.Retries,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = resty.New()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.http.SetBaseURL(BaseURL(cfg)).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	c.tokens = newTokenProvider(c.http, cfg.ConsumerKey, cfg.ConsumerSecret, cache, c.logger)
	return c
}

// BaseURL resolves the API host for the configured environment.
func BaseURL(cfg config.MpesaConfig) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Environment == "live" {
		return liveBaseURL
	}
	return sandboxBaseURL
}

// Tokens exposes the token provider.
func (c *Client) Tokens() *TokenProvider {
	return c.tokens
}

// Validate reports ErrConfigInvalid when a credential op needs is missing.
func (c *Client) Validate(op Operation) error {
	required := map[string]string{
		"MPESA_BUSINESS_SHORT_CODE": c.cfg.BusinessShortCode,
		"MPESA_CONSUMER_KEY":        c.cfg.ConsumerKey,
		"MPESA_CONSUMER_SECRET":     c.cfg.ConsumerSecret,
	}
	switch op {
	case OperationSTKPush:
		required["MPESA_PASSKEY"] = c.cfg.Passkey
	case OperationB2C:
		required["MPESA_SECURITY_CREDENTIAL"] = c.cfg.SecurityCredential
		required["MPESA_INITIATOR_NAME"] = c.initiatorName()
	}

	var missing []string
	for _, name := range []string{
		"MPESA_BUSINESS_SHORT_CODE", "MPESA_CONSUMER_KEY", "MPESA_CONSUMER_SECRET",
		"MPESA_PASSKEY", "MPESA_SECURITY_CREDENTIAL", "MPESA_INITIATOR_NAME",
	} {
		if v, ok := required[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfigInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// STKPush sends a Lipa na M-Pesa Online prompt to the payer's phone.
// A non-nil response may still carry a non-zero ResponseCode.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	if err := c.Validate(OperationSTKPush); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := Timestamp(c.now())
	body := stkPushBody{
		BusinessShortCode: c.cfg.BusinessShortCode,
		Password:          Password(c.cfg.BusinessShortCode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBillOnline,
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            c.cfg.BusinessShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.callbackURL(JobPaymentCallbackPath),
		AccountReference:  c.cfg.AccountReference,
		TransactionDesc:   c.cfg.TransactionDesc,
	}

	var out STKPushResponse
	if err := c.post(ctx, stkPushPath, token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// B2CPayment sends money from the business short code to a phone.
// The outcome arrives later on the result or queue timeout URL.
func (c *Client) B2CPayment(ctx context.Context, req B2CRequest) (*B2CResponse, error) {
	if err := c.Validate(OperationB2C); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	body := b2cBody{
		InitiatorName:      c.initiatorName(),
		SecurityCredential: c.cfg.SecurityCredential,
		CommandID:          commandBusinessPayment,
		Amount:             req.Amount,
		PartyA:             c.cfg.BusinessShortCode,
		PartyB:             req.Phone,
		Remarks:            req.Remarks,
		QueueTimeOutURL:    c.callbackURL(DispatchTimeoutCallbackPath),
		ResultURL:          c.callbackURL(DispatchResultCallbackPath),
	}

	var out B2CResponse
	if err := c.post(ctx, b2cPath, token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// post sends body and decodes the answer into out. Transport failures are
// retried up to c.retries times; provider answers never are.
func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	var (
		resp *resty.Response
		err  error
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying mpesa request after transport error",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
			case <-time.After(retryWait):
			}
		}

		resp, err = c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(path)
		if err == nil || errors.Is(err, context.Canceled) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	raw := resp.Body()

	var errBody errorBody
	if jsonErr := json.Unmarshal(raw, &errBody); jsonErr != nil {
		return fmt.Errorf("%w: unparseable response (status %d)", ErrTransport, resp.StatusCode())
	}
	if errBody.ErrorMessage != "" {
		return &ProviderError{
			StatusCode: resp.StatusCode(),
			Code:       errBody.ErrorCode,
			Message:    errBody.ErrorMessage,
		}
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return &ProviderError{
			StatusCode: resp.StatusCode(),
			Message:    fmt.Sprintf("mpesa returned status %d", resp.StatusCode()),
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (c *Client) callbackURL(path string) string {
	return strings.TrimRight(c.cfg.CallbackHost, "/") + path
}

// initiatorName falls back to the account reference when no initiator is configured.
func (c *Client) initiatorName() string {
	if c.cfg.InitiatorName != "" {
		return c.cfg.InitiatorName
	}
	return c.cfg.AccountReference
}
