package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freelance/internal/domain"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestLockStore_AcquireRelease(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewLockStore(client)
	ctx := context.Background()

	ok, err := store.AcquirePaymentLock(ctx, "29115-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquirePaymentLock(ctx, "29115-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the lock is held")

	ok, err = store.AcquirePaymentLock(ctx, "29115-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per correlation id")

	require.NoError(t, store.ReleasePaymentLock(ctx, "29115-1"))
	assert.False(t, mr.Exists("lock:payment:29115-1"))

	ok, err = store.AcquirePaymentLock(ctx, "29115-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockStore_Expires(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewLockStore(client)
	ctx := context.Background()

	ok, err := store.AcquirePaymentLock(ctx, "AG_1", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	ok, err = store.AcquirePaymentLock(ctx, "AG_1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheStore_Token(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewCacheStore(client)
	ctx := context.Background()

	token, err := store.GetToken(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.SetToken(ctx, "abc", "tok", 3539*time.Second))

	token, err = store.GetToken(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, 3539*time.Second, mr.TTL("mpesa:token:abc"))

	mr.FastForward(3540 * time.Second)

	token, err = store.GetToken(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestCacheStore_BufferedCallback(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewCacheStore(client)
	ctx := context.Background()

	result := domain.CallbackResult{
		ResultCode:        0,
		ResultDescription: "The service request is processed successfully.",
		ReceiptNumber:     "NLJ7RT61SV",
	}
	require.NoError(t, store.BufferCallback(ctx, false, "29115-1", result))
	assert.Equal(t, CallbackBufferTTL, mr.TTL("callback:stk:29115-1"))

	// Dispatch results live under their own namespace.
	got, err := store.TakeBufferedCallback(ctx, true, "29115-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.TakeBufferedCallback(ctx, false, "29115-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, result, *got)

	got, err = store.TakeBufferedCallback(ctx, false, "29115-1")
	require.NoError(t, err)
	assert.Nil(t, got, "a buffered callback is handed out once")
}

func TestCacheStore_BufferedCallbackExpires(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewCacheStore(client)
	ctx := context.Background()

	require.NoError(t, store.BufferCallback(ctx, true, "AG_1", domain.CallbackResult{ResultCode: 2001, ResultDescription: "The initiator information is invalid."}))

	mr.FastForward(CallbackBufferTTL + time.Second)

	got, err := store.TakeBufferedCallback(ctx, true, "AG_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
