package mpesa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	tokenPath = "/oauth/v1/generate"

	// Tokens are dropped from the cache this long before M-Pesa expires them.
	tokenExpiryMargin = 60 * time.Second
)

// TokenCache stores access tokens between requests.
// Get returns "" and no error on a miss.
type TokenCache interface {
	GetToken(ctx context.Context, key string) (string, error)
	SetToken(ctx context.Context, key, token string, ttl time.Duration) error
}

// TokenProvider exchanges the consumer key and secret for a bearer token.
type TokenProvider struct {
	client *resty.Client
	key    string
	secret string
	cache  TokenCache
	logger *zap.Logger
}

func newTokenProvider(client *resty.Client, key, secret string, cache TokenCache, logger *zap.Logger) *TokenProvider {
	return &TokenProvider{
		client: client,
		key:    key,
		secret: secret,
		cache:  cache,
		logger: logger,
	}
}

// Token returns a bearer token, from the cache when one is still valid.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	cacheKey := p.cacheKey()

	if p.cache != nil {
		token, err := p.cache.GetToken(ctx, cacheKey)
		if err != nil {
			p.logger.Warn("token cache read failed", zap.Error(err))
		} else if token != "" {
			return token, nil
		}
	}

	token, ttl, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}

	if p.cache != nil && ttl > 0 {
		if err := p.cache.SetToken(ctx, cacheKey, token, ttl); err != nil {
			p.logger.Warn("token cache write failed", zap.Error(err))
		}
	}

	return token, nil
}

func (p *TokenProvider) fetch(ctx context.Context) (string, time.Duration, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+basicCredentials(p.key, p.secret)).
		SetQueryParam("grant_type", "client_credentials").
		Get(tokenPath)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", 0, fmt.Errorf("%w: token endpoint returned status %d", ErrAuth, resp.StatusCode())
	}

	var body tokenBody
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", 0, fmt.Errorf("%w: unparseable token response: %v", ErrAuth, err)
	}
	if body.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: access_token missing from response", ErrAuth)
	}

	var ttl time.Duration
	if seconds, err := body.ExpiresIn.Int64(); err == nil {
		ttl = time.Duration(seconds)*time.Second - tokenExpiryMargin
	}

	return body.AccessToken, ttl, nil
}

// cacheKey avoids storing the consumer key in Redis in clear text.
func (p *TokenProvider) cacheKey() string {
	sum := sha256.Sum256([]byte(p.client.BaseURL + "|" + p.key))
	return hex.EncodeToString(sum[:8])
}
