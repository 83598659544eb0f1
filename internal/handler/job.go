package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"freelance/internal/domain"
	"freelance/internal/service"
)

// JobHandler handles HTTP requests for jobs.
type JobHandler struct {
	jobService *service.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobService *service.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// CreateJobRequest is the HTTP request body for posting a job.
type CreateJobRequest struct {
	Title        string `json:"title"`
	ClientID     string `json:"client_id"`
	FreelancerID string `json:"freelancer_id"`
	Budget       int64  `json:"budget"`
}

// JobResponse is the HTTP response for job data.
type JobResponse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	ClientID     string     `json:"client_id"`
	FreelancerID string     `json:"freelancer_id,omitempty"`
	Budget       int64      `json:"budget"`
	Paid         bool       `json:"paid"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CreateJob handles POST /v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	job, err := h.jobService.CreateJob(c.Request.Context(), service.CreateJobRequest{
		Title:        req.Title,
		ClientID:     req.ClientID,
		FreelancerID: req.FreelancerID,
		Budget:       req.Budget,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toJobResponse(job))
}

// GetJob handles GET /v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobService.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toJobResponse(job))
}

func toJobResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:           job.ID,
		Title:        job.Title,
		ClientID:     job.ClientID,
		FreelancerID: job.FreelancerID,
		Budget:       job.Budget,
		Paid:         job.HasBeenPaidFor(),
		PaidAt:       job.PaidAt,
		SettledAt:    job.SettledAt,
		CreatedAt:    job.CreatedAt,
	}
}
