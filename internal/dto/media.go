package dto

import (
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
)

// RegisterMediaRequest records an externally produced audio or video result.
// Status defaults to completed when a path is given. A body without a path
// must name a status other than completed.
type RegisterMediaRequest struct {
	GCSPath         string   `json:"gcsPath" validate:"omitempty,max=512"`
	PublicURL       string   `json:"publicUrl" validate:"omitempty,url"`
	DurationSeconds *float64 `json:"duration_seconds" validate:"omitempty,gte=0"`
	Status          string   `json:"status" validate:"omitempty,oneof=pending processing completed failed"`
	ErrorMessage    string   `json:"error_message" validate:"omitempty,max=1000"`
}

// RegisterVideoResponse echoes the video row and aggregate progress.
type RegisterVideoResponse struct {
	SubmissionID      string                  `json:"submission_id"`
	LanguageCode      string                  `json:"language_code"`
	Video             *models.GeneratedVideo  `json:"video"`
	Status            models.SubmissionStatus `json:"status"`
	QCStatus          models.QCStatus         `json:"qc_status"`
	AllVideosComplete bool                    `json:"all_videos_complete"`
	CompletedVideos   int                     `json:"completed_videos"`
	TotalLanguages    int                     `json:"total_languages"`
}

// RegisterAudioResponse echoes the audio row.
type RegisterAudioResponse struct {
	SubmissionID string                 `json:"submission_id"`
	LanguageCode string                 `json:"language_code"`
	Audio        *models.GeneratedAudio `json:"audio"`
}

// LanguagesResponse is the per-language progress view of a submission.
type LanguagesResponse struct {
	SubmissionID string                   `json:"submission_id"`
	Status       models.SubmissionStatus  `json:"status"`
	QCStatus     models.QCStatus          `json:"qc_status"`
	Languages    []workflow.LanguageState `json:"languages"`
	Summary      workflow.LanguageSummary `json:"summary"`
}
