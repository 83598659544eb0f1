package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"freelance/internal/domain"
	"freelance/internal/mpesa"
	"freelance/internal/observability"
	"freelance/internal/redis"
	"freelance/internal/repository"
	"freelance/internal/repository/postgres"
)

const (
	paymentLockTTL  = 10 * time.Second
	paymentLockWait = 2 * time.Second
	paymentLockPoll = 50 * time.Millisecond

	queueTimeoutDescription = "request timed out in the M-Pesa queue"
)

// CallbackService applies asynchronous M-Pesa notifications to payment attempts.
type CallbackService struct {
	db                  *sql.DB
	paymentRepo         repository.PaymentRepository
	jobRepo             repository.JobRepository
	lockStore           redis.LockStoreInterface
	callbackBuffer      redis.CallbackBufferInterface
	notificationService *NotificationService
	logger              *zap.Logger
}

// NewCallbackService creates a new CallbackService. With a db the attempt
// update and the job stamp commit in one transaction; without one they go
// through paymentRepo and jobRepo directly. lockStore and callbackBuffer may
// be nil, which disables serialisation and early-callback replay respectively.
func NewCallbackService(
	db *sql.DB,
	paymentRepo repository.PaymentRepository,
	jobRepo repository.JobRepository,
	lockStore redis.LockStoreInterface,
	callbackBuffer redis.CallbackBufferInterface,
	notificationService *NotificationService,
	logger *zap.Logger,
) *CallbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackService{
		db:                  db,
		paymentRepo:         paymentRepo,
		jobRepo:             jobRepo,
		lockStore:           lockStore,
		callbackBuffer:      callbackBuffer,
		notificationService: notificationService,
		logger:              logger,
	}
}

// HandleSTKCallback applies the outcome of an STK push, correlated by MerchantRequestID.
// Re-delivery of a callback for a resolved attempt returns the stored attempt unchanged.
// An unknown MerchantRequestID yields repository.ErrNotFound; the callback is
// kept for replay once the attempt records that id.
func (s *CallbackService) HandleSTKCallback(ctx context.Context, cb mpesa.STKCallback) (*domain.PaymentAttempt, error) {
	correlationID := strings.TrimSpace(cb.MerchantRequestID)
	if correlationID == "" {
		return nil, ErrInvalidCallback
	}

	return s.handle(ctx, false, correlationID, domain.CallbackResult{
		ResultCode:        cb.ResultCode,
		ResultDescription: cb.ResultDesc,
		ReceiptNumber:     cb.ReceiptNumber(),
	})
}

// HandleDispatchResult applies the outcome of a B2C payment, correlated by ConversationID.
func (s *CallbackService) HandleDispatchResult(ctx context.Context, res mpesa.B2CResult) (*domain.PaymentAttempt, error) {
	correlationID := strings.TrimSpace(res.ConversationID)
	if correlationID == "" {
		return nil, ErrInvalidCallback
	}

	receipt := res.TransactionID
	if receipt == "" {
		receipt = res.Parameter("TransactionReceipt")
	}

	return s.handle(ctx, true, correlationID, domain.CallbackResult{
		ResultCode:        res.ResultCode,
		ResultDescription: res.ResultDesc,
		ReceiptNumber:     receipt,
	})
}

// HandleDispatchTimeout fails a B2C payment that expired in the M-Pesa queue.
func (s *CallbackService) HandleDispatchTimeout(ctx context.Context, res mpesa.B2CResult) (*domain.PaymentAttempt, error) {
	correlationID := strings.TrimSpace(res.ConversationID)
	if correlationID == "" {
		return nil, ErrInvalidCallback
	}

	description := res.ResultDesc
	if description == "" {
		description = queueTimeoutDescription
	}

	return s.handle(ctx, true, correlationID, domain.CallbackResult{
		ResultCode:        res.ResultCode,
		ResultDescription: description,
		TimedOut:          true,
	})
}

// ReplayBuffered applies a callback that arrived before the attempt recorded
// its correlation id. It returns nil when nothing was buffered.
func (s *CallbackService) ReplayBuffered(ctx context.Context, dispatch bool, correlationID string) (*domain.PaymentAttempt, error) {
	if s.callbackBuffer == nil || correlationID == "" {
		return nil, nil
	}

	var attempt *domain.PaymentAttempt
	err := s.withLock(ctx, correlationID, func() error {
		result, err := s.callbackBuffer.TakeBufferedCallback(ctx, dispatch, correlationID)
		if err != nil || result == nil {
			return err
		}

		attempt, _, err = s.apply(ctx, dispatch, correlationID, *result)
		if err != nil {
			// Keep the callback so a later delivery or replay can still apply it.
			if bufErr := s.callbackBuffer.BufferCallback(ctx, dispatch, correlationID, *result); bufErr != nil {
				s.log(ctx).Error("failed to re-buffer callback", zap.String("correlation_id", correlationID), zap.Error(bufErr))
			}
			return err
		}

		s.log(ctx).Info("replayed buffered callback",
			zap.String("correlation_id", correlationID),
			zap.String("payment_id", attempt.ID),
			zap.String("status", string(attempt.Status)),
		)
		return nil
	})
	return attempt, err
}

func (s *CallbackService) handle(ctx context.Context, dispatch bool, correlationID string, result domain.CallbackResult) (*domain.PaymentAttempt, error) {
	kind := callbackKind(dispatch)
	logger := s.log(ctx).With(
		zap.String("kind", kind),
		zap.String("correlation_id", correlationID),
		zap.Int("result_code", result.ResultCode),
	)

	var (
		attempt *domain.PaymentAttempt
		applied bool
	)
	err := s.withLock(ctx, correlationID, func() error {
		var err error
		attempt, applied, err = s.apply(ctx, dispatch, correlationID, result)
		if errors.Is(err, repository.ErrNotFound) && s.callbackBuffer != nil {
			if bufErr := s.callbackBuffer.BufferCallback(ctx, dispatch, correlationID, result); bufErr != nil {
				logger.Error("failed to buffer callback", zap.Error(bufErr))
			}
		}
		return err
	})

	switch {
	case errors.Is(err, ErrPaymentBusy):
		observability.RecordCallback(kind, observability.OutcomeBusy)
		logger.Warn("callback arrived while payment is locked")
		return nil, err
	case errors.Is(err, repository.ErrNotFound):
		observability.RecordCallback(kind, observability.OutcomeBuffered)
		logger.Warn("callback for unknown payment")
		return nil, err
	case err != nil:
		observability.RecordCallback(kind, observability.OutcomeError)
		logger.Error("failed to apply callback", zap.Error(err))
		return nil, err
	case !applied:
		observability.RecordCallback(kind, observability.OutcomeDuplicate)
		logger.Info("duplicate callback ignored",
			zap.String("payment_id", attempt.ID),
			zap.String("status", string(attempt.Status)),
		)
		return attempt, nil
	default:
		observability.RecordCallback(kind, observability.OutcomeApplied)
		logger.Info("callback applied",
			zap.String("payment_id", attempt.ID),
			zap.String("status", string(attempt.Status)),
		)
		return attempt, nil
	}
}

// apply resolves the attempt and settles its job. applied is false when the
// attempt was already terminal.
func (s *CallbackService) apply(ctx context.Context, dispatch bool, correlationID string, result domain.CallbackResult) (attempt *domain.PaymentAttempt, applied bool, err error) {
	if s.db == nil {
		attempt, applied, err = resolve(ctx, s.paymentRepo, s.jobRepo, dispatch, correlationID, result)
		if err != nil {
			return nil, false, err
		}
		s.notify(ctx, attempt, applied)
		return attempt, applied, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Create transaction-scoped repositories.
	txPaymentRepo := postgres.NewPaymentRepositoryWithTx(tx)
	txJobRepo := postgres.NewJobRepositoryWithTx(tx)

	attempt, applied, err = resolve(ctx, txPaymentRepo, txJobRepo, dispatch, correlationID, result)
	if err != nil {
		return nil, false, err
	}

	if err = tx.Commit(); err != nil {
		return nil, false, err
	}

	s.notify(ctx, attempt, applied)
	return attempt, applied, nil
}

// resolve applies the callback and stamps the job of a successful attempt.
// A duplicate still stamps the job, which is a no-op once it is set.
func resolve(
	ctx context.Context,
	paymentRepo repository.PaymentRepository,
	jobRepo repository.JobRepository,
	dispatch bool,
	correlationID string,
	result domain.CallbackResult,
) (*domain.PaymentAttempt, bool, error) {
	attempt, err := paymentRepo.ApplyCallback(ctx, dispatch, correlationID, result)
	duplicate := errors.Is(err, repository.ErrAlreadyTerminal)
	if err != nil && !duplicate {
		return nil, false, err
	}

	if attempt.Status == domain.PaymentStatusSucceeded {
		at := time.Now().UTC()
		if attempt.CompletedAt != nil {
			at = *attempt.CompletedAt
		}

		if attempt.Kind.IsDispatch() {
			err = jobRepo.MarkSettled(ctx, attempt.JobID, at)
		} else {
			err = jobRepo.MarkPaid(ctx, attempt.JobID, at)
		}
		if err != nil {
			return nil, false, fmt.Errorf("settle job %s: %w", attempt.JobID, err)
		}
	}

	return attempt, !duplicate, nil
}

func (s *CallbackService) notify(ctx context.Context, attempt *domain.PaymentAttempt, applied bool) {
	if !applied || s.notificationService == nil {
		return
	}

	job, err := s.jobRepo.GetByID(ctx, attempt.JobID)
	if err != nil {
		s.log(ctx).Warn("failed to load job for notification", zap.String("job_id", attempt.JobID), zap.Error(err))
		return
	}
	if attempt.Kind.IsDispatch() {
		_ = s.notificationService.NotifyDispatchResult(ctx, attempt, job)
	} else {
		_ = s.notificationService.NotifyPaymentResult(ctx, attempt, job)
	}
}

// withLock runs fn while holding the Redis lock for key, waiting up to
// paymentLockWait for a concurrent holder to finish.
func (s *CallbackService) withLock(ctx context.Context, key string, fn func() error) error {
	if s.lockStore == nil {
		return fn()
	}

	deadline := time.Now().Add(paymentLockWait)
	for {
		ok, err := s.lockStore.AcquirePaymentLock(ctx, key, paymentLockTTL)
		if err != nil {
			return fmt.Errorf("acquire payment lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrPaymentBusy
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(paymentLockPoll):
		}
	}

	defer func() {
		if err := s.lockStore.ReleasePaymentLock(context.WithoutCancel(ctx), key); err != nil {
			s.log(ctx).Warn("failed to release payment lock", zap.String("key", key), zap.Error(err))
		}
	}()

	return fn()
}

func (s *CallbackService) log(ctx context.Context) *zap.Logger {
	return observability.WithContextLogger(s.logger, ctx)
}

func callbackKind(dispatch bool) string {
	if dispatch {
		return "B2C"
	}
	return string(domain.PaymentKindSTKPush)
}
