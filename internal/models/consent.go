package models

import "time"

// OTPStatus is the state of one OTP generation.
type OTPStatus string

const (
	OTPActive   OTPStatus = "active"
	OTPVerified OTPStatus = "verified"
	OTPFailed   OTPStatus = "failed"
)

// ConsentOTP is the current one-time code for a submission. Each send bumps
// Generation and resets Attempts.
type ConsentOTP struct {
	SubmissionID string     `db:"submission_id" json:"submission_id"`
	CodeHash     string     `db:"code_hash" json:"-"`
	Generation   int        `db:"generation" json:"generation"`
	Attempts     int        `db:"attempts" json:"attempts"`
	MaxAttempts  int        `db:"max_attempts" json:"max_attempts"`
	Status       OTPStatus  `db:"status" json:"status"`
	SentTo       string     `db:"sent_to" json:"-"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	VerifiedAt   *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Remaining returns how many verification attempts are left.
func (o *ConsentOTP) Remaining() int {
	if o == nil || o.Status != OTPActive {
		return 0
	}
	if left := o.MaxAttempts - o.Attempts; left > 0 {
		return left
	}
	return 0
}
