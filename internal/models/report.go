package models

import "time"

// LanguageReportRow is the denormalised per-language projection consumed by
// the spreadsheet sync and exports.
type LanguageReportRow struct {
	SubmissionID     string     `db:"submission_id" json:"submission_id"`
	DoctorName       string     `db:"doctor_name" json:"doctor_name"`
	DoctorPhone      string     `db:"doctor_phone" json:"doctor_phone"`
	MRCode           string     `db:"mr_code" json:"mr_code"`
	MRName           string     `db:"mr_name" json:"mr_name"`
	LanguageCode     string     `db:"language_code" json:"language_code"`
	SubmissionStatus string     `db:"submission_status" json:"submission_status"`
	ConsentStatus    string     `db:"consent_status" json:"consent_status"`
	VoiceCloneStatus string     `db:"voice_clone_status" json:"voice_clone_status"`
	QCStatus         string     `db:"qc_status" json:"qc_status"`
	AudioStatus      *string    `db:"audio_status" json:"audio_status,omitempty"`
	AudioURL         *string    `db:"audio_url" json:"audio_url,omitempty"`
	VideoStatus      *string    `db:"video_status" json:"video_status,omitempty"`
	VideoURL         *string    `db:"video_url" json:"video_url,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	QCReviewedAt     *time.Time `db:"qc_reviewed_at" json:"qc_reviewed_at,omitempty"`
}

// StatusCount is a grouped count row.
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}

// DashboardSummary aggregates submission counts for the dashboard.
type DashboardSummary struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	ByQCStatus      map[string]int `json:"by_qc_status"`
	ByVoiceStatus   map[string]int `json:"by_voice_clone_status"`
	PendingQC       int            `json:"pending_qc"`
	VideosCompleted int            `json:"videos_completed"`
	VideosFailed    int            `json:"videos_failed"`
	GeneratedAt     time.Time      `json:"generated_at"`

	// FromCache is set when the summary was served from the cache.
	FromCache bool `json:"-"`
}
