package models

import (
	"time"

	"github.com/lib/pq"
)

// SubmissionStatus is the aggregate workflow stage of a submission.
type SubmissionStatus string

const (
	StatusPendingConsent  SubmissionStatus = "pending_consent"
	StatusConsentVerified SubmissionStatus = "consent_verified"
	StatusProcessing      SubmissionStatus = "processing"
	StatusPendingQC       SubmissionStatus = "pending_qc"
	StatusQCApproved      SubmissionStatus = "qc_approved"
	StatusQCRejected      SubmissionStatus = "qc_rejected"
	StatusPendingChanges  SubmissionStatus = "pending_changes"
	StatusCompleted       SubmissionStatus = "completed"
	StatusFailed          SubmissionStatus = "failed"
	StatusDeleted         SubmissionStatus = "deleted"
)

// ConsentStatus tracks doctor consent.
type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "pending"
	ConsentVerified ConsentStatus = "verified"
)

// VoiceCloneStatus tracks the provider-side clone.
type VoiceCloneStatus string

const (
	VoiceClonePending   VoiceCloneStatus = "pending"
	VoiceCloneCompleted VoiceCloneStatus = "completed"
	VoiceCloneFailed    VoiceCloneStatus = "failed"
	VoiceCloneDeleted   VoiceCloneStatus = "deleted"
)

// QCStatus tracks the review gate.
type QCStatus string

const (
	QCPending  QCStatus = "pending"
	QCInReview QCStatus = "in_review"
	QCApproved QCStatus = "approved"
	QCRejected QCStatus = "rejected"
)

// Submission is one doctor intake. Doctor and MR fields are a snapshot taken
// at creation time.
type Submission struct {
	ID                string           `db:"id" json:"id"`
	DoctorName        string           `db:"doctor_name" json:"doctor_name"`
	DoctorPhone       string           `db:"doctor_phone" json:"doctor_phone"`
	DoctorEmail       *string          `db:"doctor_email" json:"doctor_email,omitempty"`
	DoctorSpecialty   *string          `db:"doctor_specialty" json:"doctor_specialty,omitempty"`
	DoctorCity        *string          `db:"doctor_city" json:"doctor_city,omitempty"`
	MRCode            string           `db:"mr_code" json:"mr_code"`
	MRName            string           `db:"mr_name" json:"mr_name"`
	MRPhone           *string          `db:"mr_phone" json:"mr_phone,omitempty"`
	CreatedBy         *string          `db:"created_by" json:"created_by,omitempty"`
	ImagePath         string           `db:"image_path" json:"image_path"`
	AudioPaths        pq.StringArray   `db:"audio_paths" json:"audio_paths"`
	SelectedLanguages pq.StringArray   `db:"selected_languages" json:"selected_languages"`
	Status            SubmissionStatus `db:"status" json:"status"`
	ConsentStatus     ConsentStatus    `db:"consent_status" json:"consent_status"`
	ConsentVerifiedAt *time.Time       `db:"consent_verified_at" json:"consent_verified_at,omitempty"`
	VoiceCloneStatus  VoiceCloneStatus `db:"voice_clone_status" json:"voice_clone_status"`
	VoiceID           *string          `db:"voice_id" json:"voice_id,omitempty"`
	VoiceCloneError   *string          `db:"voice_clone_error" json:"voice_clone_error,omitempty"`
	VoiceClonedAt     *time.Time       `db:"voice_cloned_at" json:"voice_cloned_at,omitempty"`
	VoiceReleasedAt   *time.Time       `db:"voice_released_at" json:"voice_released_at,omitempty"`
	QCStatus          QCStatus         `db:"qc_status" json:"qc_status"`
	QCReviewer        *string          `db:"qc_reviewer" json:"qc_reviewer,omitempty"`
	QCLeaseExpiresAt  *time.Time       `db:"qc_lease_expires_at" json:"qc_lease_expires_at,omitempty"`
	QCReviewedAt      *time.Time       `db:"qc_reviewed_at" json:"qc_reviewed_at,omitempty"`
	QCNotes           *string          `db:"qc_notes" json:"qc_notes,omitempty"`
	FailureReason     *string          `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
	CompletedAt       *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	DeletedAt         *time.Time       `db:"deleted_at" json:"deleted_at,omitempty"`
}

// HasLanguage reports whether code is one of the selected languages.
func (s *Submission) HasLanguage(code string) bool {
	for _, lang := range s.SelectedLanguages {
		if lang == code {
			return true
		}
	}
	return false
}

// SubmissionFilter narrows list queries.
type SubmissionFilter struct {
	Status    []SubmissionStatus
	QCStatus  string
	MRCode    string
	Search    string
	Page      int
	PageSize  int
	SortOrder string
}
