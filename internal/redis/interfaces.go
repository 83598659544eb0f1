package redis

import (
	"context"
	"time"

	"freelance/internal/domain"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquirePaymentLock(ctx context.Context, correlationID string, ttl time.Duration) (bool, error)
	ReleasePaymentLock(ctx context.Context, correlationID string) error
}

// CallbackBufferInterface defines the interface for holding callbacks that
// arrive before their attempt is correlated.
type CallbackBufferInterface interface {
	BufferCallback(ctx context.Context, dispatch bool, correlationID string, result domain.CallbackResult) error
	TakeBufferedCallback(ctx context.Context, dispatch bool, correlationID string) (*domain.CallbackResult, error)
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface      = (*LockStore)(nil)
	_ CallbackBufferInterface = (*CacheStore)(nil)
)
