package tests

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"freelance/internal/domain"
	"freelance/internal/mpesa"
	"freelance/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK JOB REPOSITORY
// ──────────────────────────────────────────────

// MockJobRepository is a mock implementation of JobRepository.
type MockJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job

	// Counters for verification
	CreateCallCount      int32
	MarkPaidCallCount    int32
	MarkSettledCallCount int32

	// Error injection
	CreateError   error
	MarkPaidError error
}

// NewMockJobRepository creates a new mock job repository.
func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{
		jobs: make(map[string]*domain.Job),
	}
}

// AddJob adds a job to the mock repository.
func (m *MockJobRepository) AddJob(job *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *job
	return &copy, nil
}

func (m *MockJobRepository) MarkPaid(ctx context.Context, id string, at time.Time) error {
	atomic.AddInt32(&m.MarkPaidCallCount, 1)
	if m.MarkPaidError != nil {
		return m.MarkPaidError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if job.PaidAt == nil {
		job.PaidAt = &at
	}
	return nil
}

func (m *MockJobRepository) MarkSettled(ctx context.Context, id string, at time.Time) error {
	atomic.AddInt32(&m.MarkSettledCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if job.SettledAt == nil {
		job.SettledAt = &at
	}
	return nil
}

// GetJob returns job for test assertions.
func (m *MockJobRepository) GetJob(id string) *domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository with
// the same transition rules as the PostgreSQL one.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	attempts map[string]*domain.PaymentAttempt

	// Counters for verification
	CreateCallCount        int32
	MarkSentCallCount      int32
	MarkFailedCallCount    int32
	ApplyCallbackCallCount int32
	AppliedCount           int32

	// Error injection
	CreateError   error
	MarkSentError error

	// RespectContext makes every call fail with ctx.Err() once ctx is done,
	// as database/sql does.
	RespectContext bool
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		attempts: make(map[string]*domain.PaymentAttempt),
	}
}

// AddAttempt adds an attempt to the mock repository.
func (m *MockPaymentRepository) AddAttempt(attempt *domain.PaymentAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attempt.ID] = attempt
}

func (m *MockPaymentRepository) Create(ctx context.Context, attempt *domain.PaymentAttempt) error {
	if err := m.contextErr(ctx); err != nil {
		return err
	}
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *attempt
	m.attempts[attempt.ID] = &copy
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	if err := m.contextErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *attempt
	return &copy, nil
}

func (m *MockPaymentRepository) ListByJobID(ctx context.Context, jobID string) ([]*domain.PaymentAttempt, error) {
	if err := m.contextErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.PaymentAttempt
	for _, a := range m.attempts {
		if a.JobID == jobID {
			copy := *a
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MockPaymentRepository) FindByCorrelationID(ctx context.Context, dispatch bool, correlationID string) (*domain.PaymentAttempt, error) {
	if err := m.contextErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	attempt := m.findLocked(dispatch, correlationID)
	if attempt == nil {
		return nil, repository.ErrNotFound
	}
	copy := *attempt
	return &copy, nil
}

func (m *MockPaymentRepository) MarkConfigInvalid(ctx context.Context, id string, reason string) error {
	if err := m.contextErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, err := m.createdLocked(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	attempt.Status = domain.PaymentStatusConfigInvalid
	attempt.FailureReason = &reason
	attempt.CompletedAt = &now
	attempt.UpdatedAt = now
	return nil
}

func (m *MockPaymentRepository) MarkFailed(ctx context.Context, id string, result *domain.InitiationResult, reason string) error {
	if err := m.contextErr(ctx); err != nil {
		return err
	}
	atomic.AddInt32(&m.MarkFailedCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, err := m.createdLocked(id)
	if err != nil {
		return err
	}
	if result != nil {
		setInitiation(attempt, *result)
	}
	now := time.Now().UTC()
	attempt.Status = domain.PaymentStatusFailed
	attempt.FailureReason = &reason
	attempt.CompletedAt = &now
	attempt.UpdatedAt = now
	return nil
}

func (m *MockPaymentRepository) MarkSent(ctx context.Context, id string, result domain.InitiationResult) error {
	if err := m.contextErr(ctx); err != nil {
		return err
	}
	atomic.AddInt32(&m.MarkSentCallCount, 1)
	if m.MarkSentError != nil {
		return m.MarkSentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, err := m.createdLocked(id)
	if err != nil {
		return err
	}
	if existing := m.findLocked(attempt.Kind.IsDispatch(), result.CorrelationID); existing != nil {
		return repository.ErrDuplicateCorrelationID
	}
	setInitiation(attempt, result)
	attempt.Status = domain.PaymentStatusPending
	attempt.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockPaymentRepository) ApplyCallback(ctx context.Context, dispatch bool, correlationID string, result domain.CallbackResult) (*domain.PaymentAttempt, error) {
	if err := m.contextErr(ctx); err != nil {
		return nil, err
	}
	atomic.AddInt32(&m.ApplyCallbackCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt := m.findLocked(dispatch, correlationID)
	if attempt == nil {
		return nil, repository.ErrNotFound
	}
	if attempt.Status != domain.PaymentStatusPending {
		copy := *attempt
		return &copy, repository.ErrAlreadyTerminal
	}

	atomic.AddInt32(&m.AppliedCount, 1)
	now := time.Now().UTC()
	code := result.ResultCode
	desc := result.ResultDescription
	attempt.ResultCode = &code
	attempt.ResultDescription = &desc
	if result.ReceiptNumber != "" {
		receipt := result.ReceiptNumber
		attempt.ReceiptNumber = &receipt
	}
	if result.Succeeded() {
		attempt.Status = domain.PaymentStatusSucceeded
	} else {
		attempt.Status = domain.PaymentStatusFailed
	}
	attempt.CompletedAt = &now
	attempt.UpdatedAt = now

	copy := *attempt
	return &copy, nil
}

// GetAttempt returns attempt for test assertions.
func (m *MockPaymentRepository) GetAttempt(id string) *domain.PaymentAttempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts[id]
}

// CountAttempts returns the number of stored attempts.
func (m *MockPaymentRepository) CountAttempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.attempts)
}

func (m *MockPaymentRepository) contextErr(ctx context.Context) error {
	if !m.RespectContext {
		return nil
	}
	return ctx.Err()
}

func (m *MockPaymentRepository) createdLocked(id string) (*domain.PaymentAttempt, error) {
	attempt, ok := m.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if attempt.Status != domain.PaymentStatusCreated {
		return nil, repository.ErrAlreadyTerminal
	}
	return attempt, nil
}

func (m *MockPaymentRepository) findLocked(dispatch bool, correlationID string) *domain.PaymentAttempt {
	for _, a := range m.attempts {
		if a.Kind.IsDispatch() != dispatch {
			continue
		}
		if a.CorrelationID() == correlationID && correlationID != "" {
			return a
		}
	}
	return nil
}

func setInitiation(attempt *domain.PaymentAttempt, result domain.InitiationResult) {
	attempt.ResponseCode = optional(result.ResponseCode)
	attempt.ResponseDescription = optional(result.ResponseDescription)
	if attempt.Kind.IsDispatch() {
		attempt.ConversationID = optional(result.CorrelationID)
		attempt.OriginatorConversationID = optional(result.SecondaryID)
	} else {
		attempt.MerchantRequestID = optional(result.CorrelationID)
		attempt.CheckoutRequestID = optional(result.SecondaryID)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ──────────────────────────────────────────────
// MOCK GATEWAY (M-Pesa)
// ──────────────────────────────────────────────

// MockGateway is a mock implementation of service.Gateway.
type MockGateway struct {
	mu sync.Mutex

	// Control behavior
	ValidateError error
	STKResponse   *mpesa.STKPushResponse
	STKError      error
	B2CResponse   *mpesa.B2CResponse
	B2CError      error

	// BeforeReturn runs after the request is "sent" and before the response
	// is handed back, to simulate callbacks racing the initiator.
	BeforeReturn func()

	// Recorded requests
	STKRequests []mpesa.STKPushRequest
	B2CRequests []mpesa.B2CRequest

	// Counters
	STKCallCount int32
	B2CCallCount int32
}

// NewMockGateway creates a gateway that accepts every request.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		STKResponse: &mpesa.STKPushResponse{
			MerchantRequestID:   "29115-1",
			CheckoutRequestID:   "ws_1",
			ResponseCode:        "0",
			ResponseDescription: "Success. Request accepted for processing",
			CustomerMessage:     "Success. Request accepted for processing",
		},
		B2CResponse: &mpesa.B2CResponse{
			ConversationID:           "AG_20220519_1",
			OriginatorConversationID: "45735-1",
			ResponseCode:             "0",
			ResponseDescription:      "Accept the service request successfully.",
		},
	}
}

func (m *MockGateway) Validate(op mpesa.Operation) error {
	return m.ValidateError
}

func (m *MockGateway) STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	atomic.AddInt32(&m.STKCallCount, 1)
	m.mu.Lock()
	m.STKRequests = append(m.STKRequests, req)
	resp, err, hook := m.STKResponse, m.STKError, m.BeforeReturn
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	copy := *resp
	return &copy, nil
}

func (m *MockGateway) B2CPayment(ctx context.Context, req mpesa.B2CRequest) (*mpesa.B2CResponse, error) {
	atomic.AddInt32(&m.B2CCallCount, 1)
	m.mu.Lock()
	m.B2CRequests = append(m.B2CRequests, req)
	resp, err, hook := m.B2CResponse, m.B2CError, m.BeforeReturn
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	copy := *resp
	return &copy, nil
}

// TotalCalls returns the number of outbound requests.
func (m *MockGateway) TotalCalls() int32 {
	return atomic.LoadInt32(&m.STKCallCount) + atomic.LoadInt32(&m.B2CCallCount)
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]time.Time),
	}
}

func (m *MockLockStore) AcquirePaymentLock(ctx context.Context, correlationID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:payment:" + correlationID
	if expiry, exists := m.locks[key]; exists {
		if time.Now().Before(expiry) {
			return false, nil // Lock still held.
		}
	}

	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLockStore) ReleasePaymentLock(ctx context.Context, correlationID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, "lock:payment:"+correlationID)
	return nil
}

// IsLocked checks if a correlation id is locked (for test assertions).
func (m *MockLockStore) IsLocked(correlationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, exists := m.locks["lock:payment:"+correlationID]
	return exists && time.Now().Before(expiry)
}

// ──────────────────────────────────────────────
// MOCK CALLBACK BUFFER
// ──────────────────────────────────────────────

// MockCallbackBuffer is a mock implementation of CallbackBuffer.
type MockCallbackBuffer struct {
	mu       sync.Mutex
	buffered map[string]domain.CallbackResult

	// Counters
	BufferCallCount int32
	TakeCallCount   int32
}

// NewMockCallbackBuffer creates a new mock callback buffer.
func NewMockCallbackBuffer() *MockCallbackBuffer {
	return &MockCallbackBuffer{
		buffered: make(map[string]domain.CallbackResult),
	}
}

func (m *MockCallbackBuffer) BufferCallback(ctx context.Context, dispatch bool, correlationID string, result domain.CallbackResult) error {
	atomic.AddInt32(&m.BufferCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered[bufferKey(dispatch, correlationID)] = result
	return nil
}

func (m *MockCallbackBuffer) TakeBufferedCallback(ctx context.Context, dispatch bool, correlationID string) (*domain.CallbackResult, error) {
	atomic.AddInt32(&m.TakeCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bufferKey(dispatch, correlationID)
	result, ok := m.buffered[key]
	if !ok {
		return nil, nil
	}
	delete(m.buffered, key)
	return &result, nil
}

// Has reports whether a callback is buffered (for test assertions).
func (m *MockCallbackBuffer) Has(dispatch bool, correlationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buffered[bufferKey(dispatch, correlationID)]
	return ok
}

func bufferKey(dispatch bool, correlationID string) string {
	if dispatch {
		return "b2c:" + correlationID
	}
	return "stk:" + correlationID
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockDBConstraint = errors.New("mock: unique constraint violation")
	ErrMockTimeout      = errors.New("mock: operation timeout")
)
