package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"freelance/internal/domain"
	"freelance/internal/repository"
)

// JobRepository is a PostgreSQL implementation of repository.JobRepository.
type JobRepository struct {
	q Querier
}

// NewJobRepository creates a new PostgreSQL job repository.
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{q: db}
}

// NewJobRepositoryWithTx creates a job repository using a transaction.
func NewJobRepositoryWithTx(tx *sql.Tx) *JobRepository {
	return &JobRepository{q: tx}
}

// Create persists a new job.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, title, client_id, freelancer_id, budget, created_at)
		VALUES ($1, $2, $3, NULLIF($4::text, ''), $5, $6)
	`

	_, err := r.q.ExecContext(ctx, query,
		job.ID,
		job.Title,
		job.ClientID,
		job.FreelancerID,
		job.Budget,
		job.CreatedAt,
	)
	return err
}

// GetByID retrieves a job by ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `
		SELECT id, title, client_id, freelancer_id, budget, paid_at, settled_at, created_at
		FROM jobs WHERE id = $1
	`

	var (
		job          domain.Job
		freelancerID sql.NullString
		paidAt       sql.NullTime
		settledAt    sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.Title,
		&job.ClientID,
		&freelancerID,
		&job.Budget,
		&paidAt,
		&settledAt,
		&job.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	job.FreelancerID = freelancerID.String
	if paidAt.Valid {
		job.PaidAt = &paidAt.Time
	}
	if settledAt.Valid {
		job.SettledAt = &settledAt.Time
	}

	return &job, nil
}

// MarkPaid records the client's confirmed payment.
func (r *JobRepository) MarkPaid(ctx context.Context, id string, at time.Time) error {
	return r.stamp(ctx, `UPDATE jobs SET paid_at = COALESCE(paid_at, $2) WHERE id = $1`, id, at)
}

// MarkSettled records a completed payout or refund.
func (r *JobRepository) MarkSettled(ctx context.Context, id string, at time.Time) error {
	return r.stamp(ctx, `UPDATE jobs SET settled_at = COALESCE(settled_at, $2) WHERE id = $1`, id, at)
}

func (r *JobRepository) stamp(ctx context.Context, query, id string, at time.Time) error {
	result, err := r.q.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
