package repository

import (
	"context"
	"time"

	"freelance/internal/domain"
)

// JobRepository defines the persistence operations for jobs.
type JobRepository interface {
	// Create persists a new job.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id string) (*domain.Job, error)

	// MarkPaid records the client's confirmed payment. Calling it again is a no-op.
	MarkPaid(ctx context.Context, id string, at time.Time) error

	// MarkSettled records a completed payout or refund. Calling it again is a no-op.
	MarkSettled(ctx context.Context, id string, at time.Time) error
}
