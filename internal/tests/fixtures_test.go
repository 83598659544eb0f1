package tests

import (
	"time"

	"freelance/internal/domain"
	"freelance/internal/service"
)

type fixture struct {
	jobRepo         *MockJobRepository
	paymentRepo     *MockPaymentRepository
	gateway         *MockGateway
	lockStore       *MockLockStore
	callbackBuffer  *MockCallbackBuffer
	callbackService *service.CallbackService
	paymentService  *service.PaymentService
	jobService      *service.JobService
}

func newFixture(fixedAmount int64) *fixture {
	f := &fixture{
		jobRepo:        NewMockJobRepository(),
		paymentRepo:    NewMockPaymentRepository(),
		gateway:        NewMockGateway(),
		lockStore:      NewMockLockStore(),
		callbackBuffer: NewMockCallbackBuffer(),
	}

	notificationService := service.NewNotificationService(nil)
	f.callbackService = service.NewCallbackService(nil, f.paymentRepo, f.jobRepo, f.lockStore, f.callbackBuffer, notificationService, nil)
	f.paymentService = service.NewPaymentService(f.paymentRepo, f.jobRepo, f.gateway, f.callbackService, notificationService, fixedAmount, nil)
	f.jobService = service.NewJobService(f.jobRepo)
	return f
}

// seedJob stores an unpaid job, or a paid one when paid is set.
func (f *fixture) seedJob(id string, paid bool) *domain.Job {
	job := &domain.Job{
		ID:           id,
		Title:        "Logo design",
		ClientID:     "client-1",
		FreelancerID: "freelancer-1",
		Budget:       1500,
		CreatedAt:    time.Now().UTC(),
	}
	if paid {
		paidAt := time.Now().UTC()
		job.PaidAt = &paidAt
	}
	f.jobRepo.AddJob(job)
	return job
}

// seedPending stores a PENDING STK attempt correlated by merchantRequestID.
func (f *fixture) seedPending(id, jobID, merchantRequestID string) *domain.PaymentAttempt {
	code, desc, checkout := "0", "Success. Request accepted for processing", "ws_"+id
	attempt := &domain.PaymentAttempt{
		ID:                  id,
		JobID:               jobID,
		Kind:                domain.PaymentKindSTKPush,
		Phone:               "254712345678",
		Amount:              1,
		Status:              domain.PaymentStatusPending,
		ResponseCode:        &code,
		ResponseDescription: &desc,
		MerchantRequestID:   &merchantRequestID,
		CheckoutRequestID:   &checkout,
		CreatedAt:           time.Now().UTC(),
		UpdatedAt:           time.Now().UTC(),
	}
	f.paymentRepo.AddAttempt(attempt)
	return attempt
}

// seedPendingDispatch stores a PENDING payout correlated by conversationID.
func (f *fixture) seedPendingDispatch(id, jobID, conversationID string) *domain.PaymentAttempt {
	code := "0"
	attempt := &domain.PaymentAttempt{
		ID:             id,
		JobID:          jobID,
		Kind:           domain.PaymentKindPayout,
		Phone:          "254712345678",
		Amount:         1500,
		Status:         domain.PaymentStatusPending,
		ResponseCode:   &code,
		ConversationID: &conversationID,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	f.paymentRepo.AddAttempt(attempt)
	return attempt
}
