package service

import "errors"

var (
	// ErrInvalidJobID is returned when job ID is empty.
	ErrInvalidJobID = errors.New("invalid job id")

	// ErrInvalidJobTitle is returned when a job is created without a title.
	ErrInvalidJobTitle = errors.New("invalid job title")

	// ErrInvalidClientID is returned when client ID is empty.
	ErrInvalidClientID = errors.New("invalid client id")

	// ErrInvalidPhone is returned when a phone number cannot be normalised to 254XXXXXXXXX.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidPaymentAmount is returned when payment amount is invalid.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrInvalidPaymentID is returned when payment ID is empty.
	ErrInvalidPaymentID = errors.New("invalid payment id")

	// ErrInvalidCallback is returned when a callback carries no correlation id.
	ErrInvalidCallback = errors.New("invalid callback payload")

	// ErrAlreadyPaid is returned when a payment is requested for a job that has been paid for.
	ErrAlreadyPaid = errors.New("job has already been paid for")

	// ErrPaymentInProgress is returned when an earlier payment prompt for the job is still unanswered.
	ErrPaymentInProgress = errors.New("a payment request for this job is still pending")

	// ErrJobNotPaid is returned when a payout or refund is requested for an unpaid job.
	ErrJobNotPaid = errors.New("job has not been paid for")

	// ErrAlreadyDispatched is returned when a payout or refund is pending or completed for the job.
	ErrAlreadyDispatched = errors.New("job payment already dispatched")

	// ErrPaymentBusy is returned when another delivery holds the correlation lock.
	ErrPaymentBusy = errors.New("payment is being updated, retry later")
)
