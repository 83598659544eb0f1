package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"freelance/internal/domain"
	"freelance/internal/observability"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPaymentRequested  NotificationType = "PAYMENT_REQUESTED"
	NotificationPaymentSuccess    NotificationType = "PAYMENT_SUCCESS"
	NotificationPaymentFailed     NotificationType = "PAYMENT_FAILED"
	NotificationDispatchRequested NotificationType = "DISPATCH_REQUESTED"
	NotificationDispatchSuccess   NotificationType = "DISPATCH_SUCCESS"
	NotificationDispatchFailed    NotificationType = "DISPATCH_FAILED"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type        NotificationType
	RecipientID string // Client or freelancer ID
	Title       string
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// NotificationService tells clients and freelancers how their payments went.
// Delivery is a structured log line.
type NotificationService struct {
	logger *zap.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{logger: logger}
}

// NotifyPaymentRequested tells the client an M-Pesa prompt is on its way to their phone.
func (s *NotificationService) NotifyPaymentRequested(ctx context.Context, attempt *domain.PaymentAttempt, job *domain.Job) error {
	return s.send(ctx, Notification{
		Type:        NotificationPaymentRequested,
		RecipientID: job.ClientID,
		Title:       "Confirm Payment",
		Message:     fmt.Sprintf("Enter your M-Pesa PIN on %s to pay KES %d for %q", attempt.Phone, attempt.Amount, job.Title),
		Data:        attemptData(attempt),
		CreatedAt:   time.Now(),
	})
}

// NotifyPaymentResult tells the client whether their payment went through.
func (s *NotificationService) NotifyPaymentResult(ctx context.Context, attempt *domain.PaymentAttempt, job *domain.Job) error {
	notification := Notification{
		RecipientID: job.ClientID,
		Data:        attemptData(attempt),
		CreatedAt:   time.Now(),
	}
	if attempt.Status == domain.PaymentStatusSucceeded {
		notification.Type = NotificationPaymentSuccess
		notification.Title = "Payment Successful"
		notification.Message = fmt.Sprintf("Payment of KES %d for %q was received", attempt.Amount, job.Title)
	} else {
		notification.Type = NotificationPaymentFailed
		notification.Title = "Payment Failed"
		notification.Message = fmt.Sprintf("Payment of KES %d for %q failed. Please try again.", attempt.Amount, job.Title)
	}
	return s.send(ctx, notification)
}

// NotifyDispatchRequested tells the recipient a payout or refund was sent to M-Pesa.
func (s *NotificationService) NotifyDispatchRequested(ctx context.Context, attempt *domain.PaymentAttempt, job *domain.Job) error {
	return s.send(ctx, Notification{
		Type:        NotificationDispatchRequested,
		RecipientID: dispatchRecipient(attempt, job),
		Title:       "Transfer Initiated",
		Message:     fmt.Sprintf("KES %d is on its way to %s", attempt.Amount, attempt.Phone),
		Data:        attemptData(attempt),
		CreatedAt:   time.Now(),
	})
}

// NotifyDispatchResult tells the recipient whether the payout or refund arrived.
func (s *NotificationService) NotifyDispatchResult(ctx context.Context, attempt *domain.PaymentAttempt, job *domain.Job) error {
	notification := Notification{
		RecipientID: dispatchRecipient(attempt, job),
		Data:        attemptData(attempt),
		CreatedAt:   time.Now(),
	}
	if attempt.Status == domain.PaymentStatusSucceeded {
		notification.Type = NotificationDispatchSuccess
		notification.Title = "Transfer Completed"
		notification.Message = fmt.Sprintf("KES %d was sent to %s", attempt.Amount, attempt.Phone)
	} else {
		notification.Type = NotificationDispatchFailed
		notification.Title = "Transfer Failed"
		notification.Message = fmt.Sprintf("Sending KES %d to %s failed", attempt.Amount, attempt.Phone)
	}
	return s.send(ctx, notification)
}

func dispatchRecipient(attempt *domain.PaymentAttempt, job *domain.Job) string {
	if attempt.Kind == domain.PaymentKindRefund || job.FreelancerID == "" {
		return job.ClientID
	}
	return job.FreelancerID
}

func attemptData(attempt *domain.PaymentAttempt) map[string]interface{} {
	return map[string]interface{}{
		"payment_id": attempt.ID,
		"job_id":     attempt.JobID,
		"kind":       attempt.Kind,
		"amount":     attempt.Amount,
		"status":     attempt.Status,
	}
}

// send delivers a notification.
func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	observability.WithContextLogger(s.logger, ctx).Info("notification",
		zap.String("type", string(notification.Type)),
		zap.String("recipient", notification.RecipientID),
		zap.String("title", notification.Title),
		zap.String("message", notification.Message),
		zap.Any("data", notification.Data),
	)
	return nil
}
