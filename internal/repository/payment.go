package repository

import (
	"context"

	"freelance/internal/domain"
)

// PaymentRepository defines the persistence operations for payment attempts.
type PaymentRepository interface {
	// Create persists a new attempt in CREATED status.
	Create(ctx context.Context, attempt *domain.PaymentAttempt) error

	// GetByID retrieves an attempt by ID.
	GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error)

	// ListByJobID returns every attempt recorded for a job, oldest first.
	ListByJobID(ctx context.Context, jobID string) ([]*domain.PaymentAttempt, error)

	// FindByCorrelationID retrieves the attempt of the given kind family whose
	// provider identifier matches. STK attempts match on MerchantRequestID,
	// dispatches on ConversationID.
	FindByCorrelationID(ctx context.Context, dispatch bool, correlationID string) (*domain.PaymentAttempt, error)

	// MarkConfigInvalid moves a CREATED attempt to CONFIG_INVALID.
	MarkConfigInvalid(ctx context.Context, id string, reason string) error

	// MarkFailed moves a CREATED attempt to FAILED with a local failure reason.
	// The initiation result may be nil when no response was received.
	MarkFailed(ctx context.Context, id string, result *domain.InitiationResult, reason string) error

	// MarkSent records the provider identifiers of an accepted request and
	// moves a CREATED attempt to PENDING.
	MarkSent(ctx context.Context, id string, result domain.InitiationResult) error

	// ApplyCallback moves a PENDING attempt to SUCCEEDED or FAILED exactly once.
	// Returns ErrNotFound when nothing matches and ErrAlreadyTerminal, together
	// with the stored attempt, when the attempt was already resolved.
	ApplyCallback(ctx context.Context, dispatch bool, correlationID string, result domain.CallbackResult) (*domain.PaymentAttempt, error)
}
