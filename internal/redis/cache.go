package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"freelance/internal/domain"
)

// CallbackBufferTTL bounds how long a callback that arrived before its
// attempt was correlated is kept for replay.
const CallbackBufferTTL = 10 * time.Minute

// Key prefixes
const (
	tokenCachePrefix     = "mpesa:token:"
	stkCallbackPrefix    = "callback:stk:"
	resultCallbackPrefix = "callback:b2c:"
)

// CacheStore keeps short-lived M-Pesa state in Redis: access tokens and
// callbacks waiting for their attempt.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// bufferedCallback is the stored form of a domain.CallbackResult.
type bufferedCallback struct {
	ResultCode        int       `json:"result_code"`
	ResultDescription string    `json:"result_description"`
	ReceiptNumber     string    `json:"receipt_number,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}

// GetToken retrieves an access token. A miss returns "" and no error.
func (s *CacheStore) GetToken(ctx context.Context, key string) (string, error) {
	token, err := s.client.Get(ctx, tokenCachePrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// SetToken stores an access token until ttl elapses.
func (s *CacheStore) SetToken(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.client.Set(ctx, tokenCachePrefix+key, token, ttl).Err()
}

// BufferCallback keeps a callback whose correlation id is not recorded yet.
// A later delivery for the same id replaces the earlier one.
func (s *CacheStore) BufferCallback(ctx context.Context, dispatch bool, correlationID string, result domain.CallbackResult) error {
	data, err := json.Marshal(bufferedCallback{
		ResultCode:        result.ResultCode,
		ResultDescription: result.ResultDescription,
		ReceiptNumber:     result.ReceiptNumber,
		ReceivedAt:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, callbackKey(dispatch, correlationID), data, CallbackBufferTTL).Err()
}

// TakeBufferedCallback removes and returns a buffered callback.
// Returns nil and no error when nothing is buffered.
func (s *CacheStore) TakeBufferedCallback(ctx context.Context, dispatch bool, correlationID string) (*domain.CallbackResult, error) {
	data, err := s.client.GetDel(ctx, callbackKey(dispatch, correlationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cb bufferedCallback
	if err := json.Unmarshal(data, &cb); err != nil {
		return nil, err
	}
	return &domain.CallbackResult{
		ResultCode:        cb.ResultCode,
		ResultDescription: cb.ResultDescription,
		ReceiptNumber:     cb.ReceiptNumber,
	}, nil
}

func callbackKey(dispatch bool, correlationID string) string {
	if dispatch {
		return resultCallbackPrefix + correlationID
	}
	return stkCallbackPrefix + correlationID
}
