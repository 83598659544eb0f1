package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"freelance/internal/domain"
	"freelance/internal/repository"
)

const paymentColumns = `
	id, job_id, kind, phone, amount, status,
	response_code, response_description,
	merchant_request_id, checkout_request_id,
	conversation_id, originator_conversation_id,
	result_code, result_description, receipt_number,
	failure_reason, created_at, updated_at, completed_at`

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

// Create persists a new attempt.
func (r *PaymentRepository) Create(ctx context.Context, attempt *domain.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (id, job_id, kind, phone, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`

	_, err := r.q.ExecContext(ctx, query,
		attempt.ID,
		attempt.JobID,
		attempt.Kind,
		attempt.Phone,
		attempt.Amount,
		attempt.Status,
		attempt.CreatedAt,
	)
	return err
}

// GetByID retrieves an attempt by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_attempts WHERE id = $1`

	attempt, err := scanAttempt(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return attempt, nil
}

// ListByJobID returns every attempt recorded for a job, oldest first.
func (r *PaymentRepository) ListByJobID(ctx context.Context, jobID string) ([]*domain.PaymentAttempt, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_attempts WHERE job_id = $1 ORDER BY created_at ASC`

	rows, err := r.q.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*domain.PaymentAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// FindByCorrelationID retrieves the attempt carrying the given provider identifier.
func (r *PaymentRepository) FindByCorrelationID(ctx context.Context, dispatch bool, correlationID string) (*domain.PaymentAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_attempts WHERE %s = $1`, paymentColumns, correlationColumn(dispatch))

	attempt, err := scanAttempt(r.q.QueryRowContext(ctx, query, correlationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return attempt, nil
}

// MarkConfigInvalid moves a CREATED attempt to CONFIG_INVALID.
func (r *PaymentRepository) MarkConfigInvalid(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE payment_attempts
		SET status = $2, failure_reason = $3, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4
	`

	result, err := r.q.ExecContext(ctx, query, id, domain.PaymentStatusConfigInvalid, reason, domain.PaymentStatusCreated)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, id, result)
}

// MarkFailed moves a CREATED attempt to FAILED.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id string, result *domain.InitiationResult, reason string) error {
	var res domain.InitiationResult
	if result != nil {
		res = *result
	}
	return r.recordInitiation(ctx, id, domain.PaymentStatusFailed, res, reason)
}

// MarkSent moves a CREATED attempt to PENDING with the provider identifiers.
func (r *PaymentRepository) MarkSent(ctx context.Context, id string, result domain.InitiationResult) error {
	return r.recordInitiation(ctx, id, domain.PaymentStatusPending, result, "")
}

func (r *PaymentRepository) recordInitiation(ctx context.Context, id string, status domain.PaymentStatus, res domain.InitiationResult, reason string) error {
	// Identifiers land in the C2B or B2C columns depending on the attempt kind.
	query := `
		UPDATE payment_attempts
		SET status = $2,
			response_code = NULLIF($3::text, ''),
			response_description = NULLIF($4::text, ''),
			merchant_request_id = CASE WHEN kind = 'STK_PUSH' THEN NULLIF($5::text, '') END,
			checkout_request_id = CASE WHEN kind = 'STK_PUSH' THEN NULLIF($6::text, '') END,
			conversation_id = CASE WHEN kind <> 'STK_PUSH' THEN NULLIF($5::text, '') END,
			originator_conversation_id = CASE WHEN kind <> 'STK_PUSH' THEN NULLIF($6::text, '') END,
			failure_reason = NULLIF($7::text, ''),
			completed_at = CASE WHEN $2 = 'FAILED' THEN now() END,
			updated_at = now()
		WHERE id = $1 AND status = $8
	`

	result, err := r.q.ExecContext(ctx, query,
		id,
		status,
		res.ResponseCode,
		res.ResponseDescription,
		res.CorrelationID,
		res.SecondaryID,
		reason,
		domain.PaymentStatusCreated,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateCorrelationID
		}
		return err
	}
	return r.checkTransition(ctx, id, result)
}

// ApplyCallback moves a PENDING attempt to its terminal status exactly once.
// The status predicate makes the update a compare-and-set, so concurrent
// deliveries of the same notification cannot both apply.
func (r *PaymentRepository) ApplyCallback(ctx context.Context, dispatch bool, correlationID string, res domain.CallbackResult) (*domain.PaymentAttempt, error) {
	status := domain.PaymentStatusFailed
	if res.Succeeded() {
		status = domain.PaymentStatusSucceeded
	}

	query := fmt.Sprintf(`
		UPDATE payment_attempts
		SET status = $1,
			result_code = $2,
			result_description = $3,
			receipt_number = NULLIF($4::text, ''),
			completed_at = now(),
			updated_at = now()
		WHERE %s = $5 AND status = $6
		RETURNING %s
	`, correlationColumn(dispatch), paymentColumns)

	attempt, err := scanAttempt(r.q.QueryRowContext(ctx, query,
		status,
		res.ResultCode,
		res.ResultDescription,
		res.ReceiptNumber,
		correlationID,
		domain.PaymentStatusPending,
	))
	if err == nil {
		return attempt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	existing, err := r.FindByCorrelationID(ctx, dispatch, correlationID)
	if err != nil {
		return nil, err
	}
	return existing, repository.ErrAlreadyTerminal
}

func (r *PaymentRepository) checkTransition(ctx context.Context, id string, result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return repository.ErrAlreadyTerminal
}

func correlationColumn(dispatch bool) string {
	if dispatch {
		return "conversation_id"
	}
	return "merchant_request_id"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*domain.PaymentAttempt, error) {
	var (
		attempt                                   domain.PaymentAttempt
		responseCode, responseDescription         sql.NullString
		merchantRequestID, checkoutRequestID      sql.NullString
		conversationID, originatorConversationID  sql.NullString
		resultCode                                sql.NullInt64
		resultDescription, receipt, failureReason sql.NullString
		completedAt                               sql.NullTime
	)

	err := row.Scan(
		&attempt.ID,
		&attempt.JobID,
		&attempt.Kind,
		&attempt.Phone,
		&attempt.Amount,
		&attempt.Status,
		&responseCode,
		&responseDescription,
		&merchantRequestID,
		&checkoutRequestID,
		&conversationID,
		&originatorConversationID,
		&resultCode,
		&resultDescription,
		&receipt,
		&failureReason,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	attempt.ResponseCode = nullString(responseCode)
	attempt.ResponseDescription = nullString(responseDescription)
	attempt.MerchantRequestID = nullString(merchantRequestID)
	attempt.CheckoutRequestID = nullString(checkoutRequestID)
	attempt.ConversationID = nullString(conversationID)
	attempt.OriginatorConversationID = nullString(originatorConversationID)
	attempt.ResultDescription = nullString(resultDescription)
	attempt.ReceiptNumber = nullString(receipt)
	attempt.FailureReason = nullString(failureReason)
	if resultCode.Valid {
		code := int(resultCode.Int64)
		attempt.ResultCode = &code
	}
	if completedAt.Valid {
		attempt.CompletedAt = &completedAt.Time
	}

	return &attempt, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
