package tests

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"freelance/internal/domain"
	"freelance/internal/mpesa"
	"freelance/internal/service"
)

// ──────────────────────────────────────────────
// 4. B2C DISPATCH
// ──────────────────────────────────────────────

func TestDispatchJobPayment_Payout(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.seedJob("42", true)

	attempt, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{
		JobID: "42",
		Phone: "0722000000",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if attempt.Kind != domain.PaymentKindPayout {
		t.Errorf("expected PAYOUT, got %s", attempt.Kind)
	}
	if attempt.Status != domain.PaymentStatusPending {
		t.Errorf("expected PENDING, got %s", attempt.Status)
	}
	if attempt.ConversationID == nil || *attempt.ConversationID != "AG_20220519_1" {
		t.Errorf("expected conversation id AG_20220519_1, got %v", attempt.ConversationID)
	}
	if attempt.OriginatorConversationID == nil || *attempt.OriginatorConversationID != "45735-1" {
		t.Errorf("expected originator conversation id 45735-1, got %v", attempt.OriginatorConversationID)
	}
	if attempt.MerchantRequestID != nil {
		t.Error("expected no merchant request id on a payout")
	}

	if len(f.gateway.B2CRequests) != 1 {
		t.Fatalf("expected 1 B2C request, got %d", len(f.gateway.B2CRequests))
	}
	req := f.gateway.B2CRequests[0]
	if req.Phone != "254722000000" || req.Amount != 1500 {
		t.Errorf("unexpected B2C request: %+v", req)
	}
	if req.Remarks != "Payment for Logo design" {
		t.Errorf("expected default remarks, got %q", req.Remarks)
	}
}

func TestDispatchJobPayment_Refund(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.seedJob("42", true)

	attempt, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{
		JobID:    "42",
		Phone:    "254712345678",
		IsRefund: true,
		Remarks:  "Job cancelled",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if attempt.Kind != domain.PaymentKindRefund {
		t.Errorf("expected REFUND, got %s", attempt.Kind)
	}
	if got := f.gateway.B2CRequests[0].Remarks; got != "Job cancelled" {
		t.Errorf("expected caller remarks, got %q", got)
	}
}

func TestDispatchJobPayment_JobNotPaid(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.seedJob("42", false)

	_, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{JobID: "42", Phone: "254712345678"})
	if !errors.Is(err, service.ErrJobNotPaid) {
		t.Fatalf("expected ErrJobNotPaid, got: %v", err)
	}
	if f.gateway.TotalCalls() != 0 || f.paymentRepo.CountAttempts() != 0 {
		t.Error("expected no call and no attempt")
	}
}

func TestDispatchJobPayment_AlreadyDispatched(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.seedJob("42", true)

	if _, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{JobID: "42", Phone: "254712345678"}); err != nil {
		t.Fatalf("expected first dispatch to succeed, got: %v", err)
	}

	_, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{JobID: "42", Phone: "254712345678", IsRefund: true})
	if !errors.Is(err, service.ErrAlreadyDispatched) {
		t.Fatalf("expected ErrAlreadyDispatched, got: %v", err)
	}
	if f.gateway.B2CCallCount != 1 {
		t.Errorf("expected 1 B2C call, got %d", f.gateway.B2CCallCount)
	}
	if f.lockStore.IsLocked("job:42") {
		t.Error("expected job lock to be released")
	}
}

func TestDispatchJobPayment_RetryAfterFailedDispatch(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.seedJob("42", true)
	f.seedPendingDispatch("pay-1", "42", "AG_1")

	if _, err := f.callbackService.HandleDispatchTimeout(context.Background(), mpesa.B2CResult{ConversationID: "AG_1"}); err != nil {
		t.Fatalf("expected timeout to apply, got: %v", err)
	}

	attempt, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{JobID: "42", Phone: "254712345678"})
	if err != nil {
		t.Fatalf("expected a new dispatch after failure, got: %v", err)
	}
	if attempt.ID == "pay-1" {
		t.Error("expected a new attempt")
	}
}

func TestDispatchJobPayment_ConfigInvalid(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.seedJob("42", true)
	f.gateway.ValidateError = fmt.Errorf("%w: missing MPESA_SECURITY_CREDENTIAL", mpesa.ErrConfigInvalid)

	attempt, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{JobID: "42", Phone: "254712345678"})
	if !errors.Is(err, mpesa.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got: %v", err)
	}
	if attempt.Status != domain.PaymentStatusConfigInvalid {
		t.Errorf("expected CONFIG_INVALID, got %s", attempt.Status)
	}
	if f.gateway.TotalCalls() != 0 {
		t.Error("expected no outbound call")
	}

	// A config failure does not block a later dispatch.
	f.gateway.ValidateError = nil
	if _, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{JobID: "42", Phone: "254712345678"}); err != nil {
		t.Fatalf("expected dispatch to succeed once configured, got: %v", err)
	}
}

func TestDispatchJobPayment_RejectedByProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.seedJob("42", true)
	f.gateway.B2CResponse = &mpesa.B2CResponse{
		ConversationID:      "AG_2",
		ResponseCode:        "2001",
		ResponseDescription: "The initiator information is invalid.",
	}

	attempt, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{JobID: "42", Phone: "254712345678"})

	var providerErr *mpesa.ProviderError
	if !errors.As(err, &providerErr) || providerErr.Code != "2001" {
		t.Fatalf("expected ProviderError with code 2001, got: %v", err)
	}
	if attempt.Status != domain.PaymentStatusFailed {
		t.Errorf("expected FAILED, got %s", attempt.Status)
	}
}

func TestDispatchJobPayment_EndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.seedJob("42", true)

	attempt, err := f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{JobID: "42", Phone: "254712345678"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	resolved, err := f.callbackService.HandleDispatchResult(context.Background(), mpesa.B2CResult{
		ConversationID: *attempt.ConversationID,
		ResultCode:     0,
		TransactionID:  "NLJ41HAY6Q",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if resolved.ID != attempt.ID {
		t.Errorf("expected callback to resolve %s, got %s", attempt.ID, resolved.ID)
	}
	if !f.jobRepo.GetJob("42").IsSettled() {
		t.Error("expected job to be settled")
	}

	_, err = f.paymentService.DispatchJobPayment(context.Background(), service.DispatchRequest{JobID: "42", Phone: "254712345678", IsRefund: true})
	if !errors.Is(err, service.ErrAlreadyDispatched) {
		t.Fatalf("expected ErrAlreadyDispatched after settlement, got: %v", err)
	}
}

func TestDispatchJobPayment_CallerGoneAfterAccept_RecordsIdentifiers(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.seedJob("42", true)
	f.paymentRepo.RespectContext = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gateway.BeforeReturn = cancel

	attempt, err := f.paymentService.DispatchJobPayment(ctx, service.DispatchRequest{JobID: "42", Phone: "254712345678"})
	if err != nil {
		t.Fatalf("expected accepted dispatch to be recorded, got: %v", err)
	}

	stored := f.paymentRepo.GetAttempt(attempt.ID)
	if stored.Status != domain.PaymentStatusPending {
		t.Fatalf("expected PENDING, got %s", stored.Status)
	}
	if stored.ConversationID == nil || *stored.ConversationID != "AG_20220519_1" {
		t.Fatalf("expected conversation id AG_20220519_1, got %v", stored.ConversationID)
	}
}
