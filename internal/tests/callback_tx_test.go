package tests

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"freelance/internal/domain"
	"freelance/internal/mpesa"
	"freelance/internal/repository"
	"freelance/internal/repository/postgres"
	"freelance/internal/service"
)

var attemptColumns = []string{
	"id", "job_id", "kind", "phone", "amount", "status",
	"response_code", "response_description",
	"merchant_request_id", "checkout_request_id",
	"conversation_id", "originator_conversation_id",
	"result_code", "result_description", "receipt_number",
	"failure_reason", "created_at", "updated_at", "completed_at",
}

func newTxCallbackService(t *testing.T) (*service.CallbackService, sqlmock.Sqlmock, *MockCallbackBuffer) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	buffer := NewMockCallbackBuffer()
	callbackService := service.NewCallbackService(db,
		postgres.NewPaymentRepository(db),
		postgres.NewJobRepository(db),
		NewMockLockStore(), buffer, nil, nil)
	return callbackService, mock, buffer
}

func resolvedRow(kind domain.PaymentKind, status domain.PaymentStatus, resultCode int64) *sqlmock.Rows {
	now := time.Now().UTC()
	row := []any{
		"pay-1", "42", string(kind), "254712345678", int64(1), string(status),
		"0", "accepted",
		nil, nil, nil, nil,
		resultCode, "done", "NLJ7RT61SV",
		nil, now, now, now,
	}
	if kind.IsDispatch() {
		row[10], row[11] = "AG_1", "45735-1"
	} else {
		row[8], row[9] = "29115-1", "ws_1"
	}
	return sqlmock.NewRows(attemptColumns).AddRow(row...)
}

func TestCallbackTx_SuccessCommitsAttemptAndJob(t *testing.T) {
	t.Parallel()

	callbackService, mock, _ := newTxCallbackService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE payment_attempts .*WHERE merchant_request_id = \$5 AND status = \$6 RETURNING`).
		WillReturnRows(resolvedRow(domain.PaymentKindSTKPush, domain.PaymentStatusSucceeded, 0))
	mock.ExpectExec(`UPDATE jobs SET paid_at`).
		WithArgs("42", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempt, err := callbackService.HandleSTKCallback(context.Background(), successCallback("29115-1"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if attempt.Status != domain.PaymentStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", attempt.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCallbackTx_SettleFailureRollsBack(t *testing.T) {
	t.Parallel()

	callbackService, mock, _ := newTxCallbackService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE payment_attempts .*RETURNING`).
		WillReturnRows(resolvedRow(domain.PaymentKindSTKPush, domain.PaymentStatusSucceeded, 0))
	mock.ExpectExec(`UPDATE jobs SET paid_at`).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := callbackService.HandleSTKCallback(context.Background(), successCallback("29115-1"))
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected settle error, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected the attempt update to be rolled back: %v", err)
	}
}

func TestCallbackTx_FailedResultSkipsJob(t *testing.T) {
	t.Parallel()

	callbackService, mock, _ := newTxCallbackService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE payment_attempts .*WHERE conversation_id = \$5 AND status = \$6 RETURNING`).
		WillReturnRows(resolvedRow(domain.PaymentKindPayout, domain.PaymentStatusFailed, 0))
	mock.ExpectCommit()

	attempt, err := callbackService.HandleDispatchTimeout(context.Background(), mpesa.B2CResult{ConversationID: "AG_1"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if attempt.Status != domain.PaymentStatusFailed {
		t.Errorf("expected FAILED, got %s", attempt.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCallbackTx_DispatchSuccessSettlesJob(t *testing.T) {
	t.Parallel()

	callbackService, mock, _ := newTxCallbackService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE payment_attempts .*WHERE conversation_id = \$5`).
		WillReturnRows(resolvedRow(domain.PaymentKindPayout, domain.PaymentStatusSucceeded, 0))
	mock.ExpectExec(`UPDATE jobs SET settled_at`).
		WithArgs("42", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if _, err := callbackService.HandleDispatchResult(context.Background(), mpesa.B2CResult{ConversationID: "AG_1", TransactionID: "NLJ41HAY6Q"}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCallbackTx_UnknownIDRollsBackAndBuffers(t *testing.T) {
	t.Parallel()

	callbackService, mock, buffer := newTxCallbackService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE payment_attempts .*RETURNING`).
		WillReturnRows(sqlmock.NewRows(attemptColumns))
	mock.ExpectQuery(`SELECT .* FROM payment_attempts WHERE merchant_request_id = \$1`).
		WithArgs("99999-9").
		WillReturnRows(sqlmock.NewRows(attemptColumns))
	mock.ExpectRollback()

	_, err := callbackService.HandleSTKCallback(context.Background(), successCallback("99999-9"))
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	if !buffer.Has(false, "99999-9") {
		t.Error("expected callback to be buffered")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
