package dto

import (
	"time"

	"github.com/noah-isme/doctor-voice-api/internal/models"
)

// VerifyConsentRequest carries the code typed in by the doctor.
type VerifyConsentRequest struct {
	Code string `json:"code" validate:"required,numeric,min=4,max=10"`
}

// SendConsentResponse describes a freshly issued code.
type SendConsentResponse struct {
	SubmissionID string    `json:"submission_id"`
	Generation   int       `json:"generation"`
	SentTo       string    `json:"sent_to"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// VerifyConsentResponse is returned by a successful verification.
type VerifyConsentResponse struct {
	SubmissionID      string                  `json:"submission_id"`
	Verified          bool                    `json:"verified"`
	ConsentStatus     models.ConsentStatus    `json:"consent_status"`
	Status            models.SubmissionStatus `json:"status"`
	ConsentVerifiedAt *time.Time              `json:"consent_verified_at,omitempty"`
	AttemptsRemaining int                     `json:"attempts_remaining"`
}

// ConsentStatusResponse summarises the consent state of a submission.
type ConsentStatusResponse struct {
	SubmissionID      string                  `json:"submission_id"`
	ConsentStatus     models.ConsentStatus    `json:"consent_status"`
	ConsentVerifiedAt *time.Time              `json:"consent_verified_at,omitempty"`
	Status            models.SubmissionStatus `json:"status"`
	OTPStatus         *models.OTPStatus       `json:"otp_status,omitempty"`
	Generation        int                     `json:"generation"`
	AttemptsUsed      int                     `json:"attempts_used"`
	AttemptsRemaining int                     `json:"attempts_remaining"`
	ExpiresAt         *time.Time              `json:"expires_at,omitempty"`
}
