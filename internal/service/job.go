package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"freelance/internal/domain"
	"freelance/internal/repository"
)

// JobService handles job operations.
type JobService struct {
	jobRepo repository.JobRepository
}

// NewJobService creates a new JobService.
func NewJobService(jobRepo repository.JobRepository) *JobService {
	return &JobService{jobRepo: jobRepo}
}

// CreateJobRequest contains the parameters for posting a job.
type CreateJobRequest struct {
	Title        string
	ClientID     string
	FreelancerID string
	Budget       int64
}

// CreateJob posts a new job.
func (s *JobService) CreateJob(ctx context.Context, req CreateJobRequest) (*domain.Job, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrInvalidJobTitle
	}

	if req.ClientID == "" {
		return nil, ErrInvalidClientID
	}

	if req.Budget <= 0 {
		return nil, ErrInvalidPaymentAmount
	}

	job := &domain.Job{
		ID:           uuid.New().String(),
		Title:        strings.TrimSpace(req.Title),
		ClientID:     req.ClientID,
		FreelancerID: req.FreelancerID,
		Budget:       req.Budget,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if jobID == "" {
		return nil, ErrInvalidJobID
	}

	return s.jobRepo.GetByID(ctx, jobID)
}
