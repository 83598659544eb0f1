package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"freelance/internal/domain"
	"freelance/internal/mpesa"
	"freelance/internal/observability"
	"freelance/internal/repository"
)

// pendingPaymentWindow bounds how long an unanswered STK push blocks another
// one for the same job. M-Pesa expires an unanswered prompt well within it.
const pendingPaymentWindow = 3 * time.Minute

// Gateway is the M-Pesa API as seen by the payment service.
type Gateway interface {
	Validate(op mpesa.Operation) error
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
	B2CPayment(ctx context.Context, req mpesa.B2CRequest) (*mpesa.B2CResponse, error)
}

// PaymentService sends payment requests to M-Pesa and records every attempt.
type PaymentService struct {
	paymentRepo         repository.PaymentRepository
	jobRepo             repository.JobRepository
	gateway             Gateway
	callbackService     *CallbackService
	notificationService *NotificationService
	fixedAmount         int64
	logger              *zap.Logger
}

// NewPaymentService creates a new PaymentService. A positive fixedAmount
// replaces the job budget as the amount requested.
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	jobRepo repository.JobRepository,
	gateway Gateway,
	callbackService *CallbackService,
	notificationService *NotificationService,
	fixedAmount int64,
	logger *zap.Logger,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		paymentRepo:         paymentRepo,
		jobRepo:             jobRepo,
		gateway:             gateway,
		callbackService:     callbackService,
		notificationService: notificationService,
		fixedAmount:         fixedAmount,
		logger:              logger,
	}
}

// InitiatePaymentRequest contains the parameters for requesting a job payment.
type InitiatePaymentRequest struct {
	JobID string
	Phone string
}

// InitiateJobPayment prompts the client's phone to pay for a job.
//
// The attempt is recorded before M-Pesa is contacted. When the request fails
// after that point the recorded attempt is returned together with the error.
// A job with a recent unanswered prompt yields ErrPaymentInProgress.
func (s *PaymentService) InitiateJobPayment(ctx context.Context, req InitiatePaymentRequest) (*domain.PaymentAttempt, error) {
	if req.JobID == "" {
		return nil, ErrInvalidJobID
	}

	phone, err := mpesa.NormalizePhone(req.Phone)
	if err != nil {
		return nil, ErrInvalidPhone
	}

	var (
		job     *domain.Job
		attempt *domain.PaymentAttempt
	)
	// Serialise requests per job so two prompts cannot both be sent.
	err = s.lockJob(ctx, req.JobID, func() error {
		var err error
		job, err = s.jobRepo.GetByID(ctx, req.JobID)
		if err != nil {
			return err
		}

		if job.HasBeenPaidFor() {
			return ErrAlreadyPaid
		}

		if err := s.checkNoPendingPayment(ctx, job.ID); err != nil {
			return err
		}

		attempt, err = s.createAttempt(ctx, job, domain.PaymentKindSTKPush, phone)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Once the attempt exists its outcome is recorded even if the caller goes away.
	persistCtx := context.WithoutCancel(ctx)

	logger := s.log(ctx).With(
		zap.String("payment_id", attempt.ID),
		zap.String("job_id", job.ID),
		zap.String("kind", string(attempt.Kind)),
	)

	if err := s.gateway.Validate(mpesa.OperationSTKPush); err != nil {
		return s.fail(persistCtx, logger, attempt, nil, err)
	}

	resp, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{Phone: phone, Amount: attempt.Amount})
	if err != nil {
		return s.fail(persistCtx, logger, attempt, nil, err)
	}

	result := domain.InitiationResult{
		ResponseCode:        resp.ResponseCode,
		ResponseDescription: resp.ResponseDescription,
		CorrelationID:       resp.MerchantRequestID,
		SecondaryID:         resp.CheckoutRequestID,
	}
	attempt, err = s.recordResult(persistCtx, logger, attempt, result)
	if err != nil {
		return attempt, err
	}

	if s.notificationService != nil {
		_ = s.notificationService.NotifyPaymentRequested(persistCtx, attempt, job)
	}

	return attempt, nil
}

// DispatchRequest contains the parameters for a payout or refund.
type DispatchRequest struct {
	JobID    string
	IsRefund bool
	Phone    string
	Remarks  string
}

// DispatchJobPayment sends a paid job's funds to the freelancer, or back to
// the client when IsRefund is set.
func (s *PaymentService) DispatchJobPayment(ctx context.Context, req DispatchRequest) (*domain.PaymentAttempt, error) {
	if req.JobID == "" {
		return nil, ErrInvalidJobID
	}

	phone, err := mpesa.NormalizePhone(req.Phone)
	if err != nil {
		return nil, ErrInvalidPhone
	}

	kind := domain.PaymentKindPayout
	if req.IsRefund {
		kind = domain.PaymentKindRefund
	}

	var (
		job     *domain.Job
		attempt *domain.PaymentAttempt
	)
	// Serialise dispatches per job so two requests cannot both pass the checks.
	err = s.lockJob(ctx, req.JobID, func() error {
		var err error
		job, err = s.jobRepo.GetByID(ctx, req.JobID)
		if err != nil {
			return err
		}

		if !job.HasBeenPaidFor() {
			return ErrJobNotPaid
		}

		if err := s.checkNotDispatched(ctx, job.ID); err != nil {
			return err
		}

		attempt, err = s.createAttempt(ctx, job, kind, phone)
		return err
	})
	if err != nil {
		return nil, err
	}

	persistCtx := context.WithoutCancel(ctx)

	logger := s.log(ctx).With(
		zap.String("payment_id", attempt.ID),
		zap.String("job_id", job.ID),
		zap.String("kind", string(attempt.Kind)),
	)

	if err := s.gateway.Validate(mpesa.OperationB2C); err != nil {
		return s.fail(persistCtx, logger, attempt, nil, err)
	}

	remarks := strings.TrimSpace(req.Remarks)
	if remarks == "" {
		remarks = defaultRemarks(kind, job)
	}

	resp, err := s.gateway.B2CPayment(ctx, mpesa.B2CRequest{Phone: phone, Amount: attempt.Amount, Remarks: remarks})
	if err != nil {
		return s.fail(persistCtx, logger, attempt, nil, err)
	}

	result := domain.InitiationResult{
		ResponseCode:        resp.ResponseCode,
		ResponseDescription: resp.ResponseDescription,
		CorrelationID:       resp.ConversationID,
		SecondaryID:         resp.OriginatorConversationID,
	}
	attempt, err = s.recordResult(persistCtx, logger, attempt, result)
	if err != nil {
		return attempt, err
	}

	if s.notificationService != nil {
		_ = s.notificationService.NotifyDispatchRequested(persistCtx, attempt, job)
	}

	return attempt, nil
}

// GetPayment retrieves a payment attempt by ID.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*domain.PaymentAttempt, error) {
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	return s.paymentRepo.GetByID(ctx, paymentID)
}

// ListJobPayments returns every attempt recorded for a job, oldest first.
func (s *PaymentService) ListJobPayments(ctx context.Context, jobID string) ([]*domain.PaymentAttempt, error) {
	if jobID == "" {
		return nil, ErrInvalidJobID
	}

	if _, err := s.jobRepo.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	return s.paymentRepo.ListByJobID(ctx, jobID)
}

func (s *PaymentService) createAttempt(ctx context.Context, job *domain.Job, kind domain.PaymentKind, phone string) (*domain.PaymentAttempt, error) {
	amount := job.Budget
	if s.fixedAmount > 0 {
		amount = s.fixedAmount
	}
	if amount <= 0 {
		return nil, ErrInvalidPaymentAmount
	}

	now := time.Now().UTC()
	attempt := &domain.PaymentAttempt{
		ID:        uuid.New().String(),
		JobID:     job.ID,
		Kind:      kind,
		Phone:     phone,
		Amount:    amount,
		Status:    domain.PaymentStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.paymentRepo.Create(ctx, attempt); err != nil {
		return nil, err
	}

	return attempt, nil
}

// recordResult stores the synchronous answer. A non-zero ResponseCode fails
// the attempt and is reported as a ProviderError.
func (s *PaymentService) recordResult(ctx context.Context, logger *zap.Logger, attempt *domain.PaymentAttempt, result domain.InitiationResult) (*domain.PaymentAttempt, error) {
	if !result.Accepted() {
		return s.fail(ctx, logger, attempt, &result, &mpesa.ProviderError{
			StatusCode: http.StatusOK,
			Code:       result.ResponseCode,
			Message:    result.ResponseDescription,
		})
	}

	if err := s.paymentRepo.MarkSent(ctx, attempt.ID, result); err != nil {
		if errors.Is(err, repository.ErrDuplicateCorrelationID) {
			return s.fail(ctx, logger, attempt, nil, err)
		}
		logger.Error("failed to record accepted payment request",
			zap.String("correlation_id", result.CorrelationID),
			zap.Error(err),
		)
		return attempt, err
	}

	observability.RecordInitiation(string(attempt.Kind), observability.OutcomeAccepted)
	logger.Info("payment request accepted",
		zap.String("correlation_id", result.CorrelationID),
		zap.Int64("amount", attempt.Amount),
	)

	if s.callbackService != nil {
		if _, err := s.callbackService.ReplayBuffered(ctx, attempt.Kind.IsDispatch(), result.CorrelationID); err != nil {
			logger.Warn("failed to replay buffered callback", zap.Error(err))
		}
	}

	stored, err := s.paymentRepo.GetByID(ctx, attempt.ID)
	if err != nil {
		return attempt, err
	}
	return stored, nil
}

// fail records why an attempt did not reach M-Pesa, or why M-Pesa refused it,
// and returns cause to the caller.
func (s *PaymentService) fail(ctx context.Context, logger *zap.Logger, attempt *domain.PaymentAttempt, result *domain.InitiationResult, cause error) (*domain.PaymentAttempt, error) {
	var recordErr error
	if errors.Is(cause, mpesa.ErrConfigInvalid) {
		recordErr = s.paymentRepo.MarkConfigInvalid(ctx, attempt.ID, cause.Error())
	} else {
		recordErr = s.paymentRepo.MarkFailed(ctx, attempt.ID, result, cause.Error())
	}
	if recordErr != nil {
		logger.Error("failed to record payment failure", zap.NamedError("cause", cause), zap.Error(recordErr))
	}

	observability.RecordInitiation(string(attempt.Kind), initiationOutcome(cause))
	logger.Warn("payment request failed", zap.Error(cause))

	if stored, err := s.paymentRepo.GetByID(ctx, attempt.ID); err == nil {
		attempt = stored
	}
	return attempt, cause
}

// checkNoPendingPayment refuses a new STK push while an earlier prompt for the
// job may still be answered. Prompts older than pendingPaymentWindow no
// longer block, so a lost callback cannot lock the job forever.
func (s *PaymentService) checkNoPendingPayment(ctx context.Context, jobID string) error {
	attempts, err := s.paymentRepo.ListByJobID(ctx, jobID)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-pendingPaymentWindow)
	for _, a := range attempts {
		if a.Kind != domain.PaymentKindSTKPush || a.CreatedAt.Before(cutoff) {
			continue
		}
		switch a.Status {
		case domain.PaymentStatusCreated, domain.PaymentStatusPending:
			return ErrPaymentInProgress
		}
	}
	return nil
}

func (s *PaymentService) checkNotDispatched(ctx context.Context, jobID string) error {
	attempts, err := s.paymentRepo.ListByJobID(ctx, jobID)
	if err != nil {
		return err
	}

	for _, a := range attempts {
		if !a.Kind.IsDispatch() {
			continue
		}
		switch a.Status {
		case domain.PaymentStatusCreated, domain.PaymentStatusPending, domain.PaymentStatusSucceeded:
			return ErrAlreadyDispatched
		}
	}
	return nil
}

func (s *PaymentService) lockJob(ctx context.Context, jobID string, fn func() error) error {
	if s.callbackService == nil {
		return fn()
	}
	return s.callbackService.withLock(ctx, "job:"+jobID, fn)
}

func (s *PaymentService) log(ctx context.Context) *zap.Logger {
	return observability.WithContextLogger(s.logger, ctx)
}

func defaultRemarks(kind domain.PaymentKind, job *domain.Job) string {
	if kind == domain.PaymentKindRefund {
		return fmt.Sprintf("Refund for %s", job.Title)
	}
	return fmt.Sprintf("Payment for %s", job.Title)
}

func initiationOutcome(err error) string {
	switch {
	case errors.Is(err, mpesa.ErrConfigInvalid):
		return observability.OutcomeConfigInvalid
	case errors.Is(err, mpesa.ErrAuth):
		return observability.OutcomeAuthFailed
	case mpesa.IsProviderError(err):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeTransport
	}
}
