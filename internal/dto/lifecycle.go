package dto

import "github.com/noah-isme/doctor-voice-api/internal/models"

// FailSubmissionRequest marks a submission failed.
type FailSubmissionRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// RetrySubmissionsRequest lists submissions to move out of failed.
type RetrySubmissionsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=200,dive,uuid"`
}

// RetriedSubmission is one successfully retried id.
type RetriedSubmission struct {
	ID     string                  `json:"id"`
	Status models.SubmissionStatus `json:"status"`
}

// SkippedSubmission is one id the retry left alone.
type SkippedSubmission struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// RetrySubmissionsResponse reports a bulk retry.
type RetrySubmissionsResponse struct {
	Retried []RetriedSubmission `json:"retried"`
	Skipped []SkippedSubmission `json:"skipped"`
}

// PurgeResponse reports a hard delete.
type PurgeResponse struct {
	SubmissionID   string   `json:"submission_id"`
	ObjectsRemoved int      `json:"objects_removed"`
	ObjectsFailed  []string `json:"objects_failed,omitempty"`
}
