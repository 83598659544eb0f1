package domain

import "time"

// PaymentKind distinguishes the M-Pesa API an attempt was sent through.
type PaymentKind string

const (
	PaymentKindSTKPush PaymentKind = "STK_PUSH" // C2B, client pays for a job
	PaymentKindPayout  PaymentKind = "PAYOUT"   // B2C, freelancer is paid
	PaymentKindRefund  PaymentKind = "REFUND"   // B2C, client is refunded
)

// IsDispatch reports whether the kind is a business-to-customer transfer.
func (k PaymentKind) IsDispatch() bool {
	return k == PaymentKindPayout || k == PaymentKindRefund
}

// PaymentStatus represents the lifecycle of a payment attempt.
//
//	CREATED -> PENDING -> SUCCEEDED | FAILED
//	CREATED -> CONFIG_INVALID
//	CREATED -> FAILED
type PaymentStatus string

const (
	PaymentStatusCreated       PaymentStatus = "CREATED"
	PaymentStatusConfigInvalid PaymentStatus = "CONFIG_INVALID"
	PaymentStatusPending       PaymentStatus = "PENDING"
	PaymentStatusSucceeded     PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed        PaymentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusConfigInvalid:
		return true
	default:
		return false
	}
}

// PaymentAttempt is one request sent (or attempted) to M-Pesa for a job.
type PaymentAttempt struct {
	ID     string
	JobID  string
	Kind   PaymentKind
	Phone  string
	Amount int64
	Status PaymentStatus

	// Synchronous initiation response.
	ResponseCode        *string
	ResponseDescription *string

	// C2B correlation. MerchantRequestID is echoed by the STK callback.
	MerchantRequestID *string
	CheckoutRequestID *string

	// B2C correlation. ConversationID is echoed by the result callback.
	ConversationID           *string
	OriginatorConversationID *string

	// Asynchronous callback outcome.
	ResultCode        *int
	ResultDescription *string
	ReceiptNumber     *string

	FailureReason *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// IsSuccessful returns nil until a callback has been applied. Attempts that
// failed before M-Pesa queued them never receive one and stay unknown.
func (p *PaymentAttempt) IsSuccessful() *bool {
	if p.ResultCode == nil {
		return nil
	}
	v := p.Status == PaymentStatusSucceeded
	return &v
}

// CorrelationID returns the provider identifier a callback for this attempt will carry.
func (p *PaymentAttempt) CorrelationID() string {
	var id *string
	if p.Kind.IsDispatch() {
		id = p.ConversationID
	} else {
		id = p.MerchantRequestID
	}
	if id == nil {
		return ""
	}
	return *id
}

// CallbackResult is the outcome carried by an asynchronous M-Pesa notification.
type CallbackResult struct {
	ResultCode        int
	ResultDescription string
	ReceiptNumber     string
	// TimedOut marks a B2C queue timeout, which fails the attempt whatever its code.
	TimedOut bool
}

// Succeeded reports whether M-Pesa completed the transaction.
func (r CallbackResult) Succeeded() bool {
	return r.ResultCode == 0 && !r.TimedOut
}

// InitiationResult is the synchronous M-Pesa response recorded on an attempt.
type InitiationResult struct {
	ResponseCode        string
	ResponseDescription string
	// MerchantRequestID / ConversationID depending on kind.
	CorrelationID string
	// CheckoutRequestID / OriginatorConversationID depending on kind.
	SecondaryID string
}

// Accepted reports whether M-Pesa queued the request.
func (r InitiationResult) Accepted() bool {
	return r.ResponseCode == "0"
}
