package dto

import (
	"time"

	"github.com/noah-isme/doctor-voice-api/internal/models"
)

// QCActionRequest is the body of every QC endpoint.
type QCActionRequest struct {
	ReviewerName string   `json:"reviewer_name" validate:"required,max=120"`
	Notes        string   `json:"notes" validate:"omitempty,max=2000"`
	Reasons      []string `json:"reasons" validate:"omitempty,dive,required,max=120"`
}

// QCResponse echoes the QC state after a transition.
type QCResponse struct {
	SubmissionID     string                  `json:"submission_id"`
	Status           models.SubmissionStatus `json:"status"`
	QCStatus         models.QCStatus         `json:"qc_status"`
	QCReviewer       *string                 `json:"qc_reviewer,omitempty"`
	QCLeaseExpiresAt *time.Time              `json:"qc_lease_expires_at,omitempty"`
	QCReviewedAt     *time.Time              `json:"qc_reviewed_at,omitempty"`
	History          *models.QCHistory       `json:"history"`
}
