package domain

import "time"

// Job represents a job posted by a client on the marketplace.
type Job struct {
	ID           string
	Title        string
	ClientID     string
	FreelancerID string
	Budget       int64 // Whole KES.
	PaidAt       *time.Time
	SettledAt    *time.Time // Payout to the freelancer or refund to the client completed.
	CreatedAt    time.Time
}

// HasBeenPaidFor reports whether the client's payment for the job has been confirmed.
func (j *Job) HasBeenPaidFor() bool {
	return j.PaidAt != nil
}

// IsSettled reports whether the held funds have left the marketplace.
func (j *Job) IsSettled() bool {
	return j.SettledAt != nil
}
